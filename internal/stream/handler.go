package stream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/store"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingEvery       = (pongWait * 9) / 10
	defaultPollTick = time.Second
)

// CloseReasonFinished — причина закрытия соединения после финального события.
const CloseReasonFinished = "run finished"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Handler отдаёт события run по WebSocket.
//
// Клиент сначала получает снимок текущих статусов из хранилища, затем
// изменения. Изменения приходят из Hub (раннеры этого процесса) и из
// периодического опроса хранилища (раннеры других процессов, например
// воркеров). Каждый статус отправляется один раз. Соединение закрывается
// после финального статуса run.
type Handler struct {
	hub     *Hub
	results store.ResultStore
	poll    time.Duration
	logger  *slog.Logger
}

// NewHandler создаёт Handler. hub может быть nil — тогда только опрос.
func NewHandler(hub *Hub, results store.ResultStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{hub: hub, results: results, poll: defaultPollTick, logger: logger}
}

// WithPollInterval задаёт период опроса хранилища.
func (h *Handler) WithPollInterval(d time.Duration) *Handler {
	if d > 0 {
		h.poll = d
	}
	return h
}

// Serve переводит запрос в WebSocket и транслирует события run.
// Run должен существовать: вызывающий проверяет это до Serve.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, pipelineID, runID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	logger := telemetry.WithRun(telemetry.FromContext(r.Context(), h.logger), pipelineID, runID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var events <-chan Event
	if h.hub != nil {
		var unsubscribe func()
		events, unsubscribe = h.hub.Subscribe(runID)
		defer unsubscribe()
	}

	// Чтение нужно только для pong и обнаружения закрытия
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s := &session{conn: conn, seen: make(map[string]domain.Status)}

	finished, err := h.sync(ctx, s, pipelineID, runID)
	if err != nil {
		logger.Debug("stream closed", "error", err)
		return
	}

	poll := time.NewTicker(h.poll)
	defer poll.Stop()
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()

	for !finished {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := s.send(ev); err != nil {
				logger.Debug("stream closed", "error", err)
				return
			}
			finished = ev.Terminal()
		case <-poll.C:
			if finished, err = h.sync(ctx, s, pipelineID, runID); err != nil {
				logger.Debug("stream closed", "error", err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, CloseReasonFinished))
}

// sync отправляет изменения из хранилища: сначала задачи, затем run.
// Возвращает true, если run завершён.
func (h *Handler) sync(ctx context.Context, s *session, pipelineID, runID string) (bool, error) {
	results, err := h.results.ListTaskResults(ctx, pipelineID, runID)
	if err != nil {
		return false, err
	}
	for _, r := range results {
		err := s.send(Event{
			Type:         EventTask,
			PipelineID:   r.PipelineID,
			RunID:        r.RunID,
			PipelineTask: r.PipelineTask,
			TaskID:       r.TaskID,
			Status:       r.Status,
			Message:      r.Message,
			Timestamp:    r.UpdatedAt,
		})
		if err != nil {
			return false, err
		}
	}

	run, err := h.results.GetRun(ctx, pipelineID, runID)
	if err != nil {
		return false, err
	}
	ev := Event{
		Type:       EventPipeline,
		PipelineID: run.PipelineID,
		RunID:      run.RunID,
		Status:     run.Status,
		Message:    run.Message,
		Timestamp:  time.Now(),
	}
	if err := s.send(ev); err != nil {
		return false, err
	}
	return run.IsFinished(), nil
}

// errClosed — соединение уже закрыто.
var errClosed = errors.New("connection closed")

// session — одно WebSocket-соединение с дедупликацией статусов.
type session struct {
	conn   *websocket.Conn
	seen   map[string]domain.Status
	closed bool
}

// send отправляет событие, если его статус ещё не отправлялся.
func (s *session) send(ev Event) error {
	if s.closed {
		return errClosed
	}

	key := ev.Type + ":" + ev.PipelineTask
	if s.seen[key] == ev.Status {
		return nil
	}
	s.seen[key] = ev.Status

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(ev); err != nil {
		s.closed = true
		return err
	}
	return nil
}
