// Package stream рассылает события выполнения подписчикам по WebSocket.
package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/reporter"
)

// Типы событий.
const (
	EventPipeline = "pipeline"
	EventTask     = "task"
)

const defaultBuffer = 64

// Event — событие, отправляемое клиенту.
type Event struct {
	Type         string        `json:"type"`
	PipelineID   string        `json:"pipeline_id"`
	RunID        string        `json:"run_id"`
	PipelineTask string        `json:"pipeline_task,omitempty"`
	TaskID       string        `json:"task_id,omitempty"`
	Status       domain.Status `json:"status"`
	Message      string        `json:"message,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Terminal возвращает true для финального события pipeline.
func (e Event) Terminal() bool {
	return e.Type == EventPipeline && e.Status.IsTerminal()
}

// FromPipelineEvent конвертирует событие pipeline.
func FromPipelineEvent(ev domain.PipelineEvent) Event {
	return Event{
		Type:       EventPipeline,
		PipelineID: ev.PipelineID,
		RunID:      ev.RunID,
		Status:     ev.Status,
		Message:    ev.Message,
		Timestamp:  ev.Timestamp,
	}
}

// FromTaskEvent конвертирует событие задачи.
func FromTaskEvent(ev domain.TaskEvent) Event {
	return Event{
		Type:         EventTask,
		PipelineID:   ev.PipelineID,
		RunID:        ev.RunID,
		PipelineTask: ev.PipelineTask,
		TaskID:       ev.TaskID,
		Status:       ev.Status,
		Message:      ev.Message,
		Timestamp:    ev.Timestamp,
	}
}

var _ reporter.Reporter = (*Hub)(nil)

// Hub раздаёт события подписчикам run.
//
// Hub — reporter.Reporter: события попадают в него из раннеров того же
// процесса. Медленный подписчик теряет события, а не блокирует раннер.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Event]struct{}
	buffer int
	logger *slog.Logger
}

// NewHub создаёт Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[chan Event]struct{}),
		buffer: defaultBuffer,
		logger: logger,
	}
}

// Subscribe подписывается на события run. Вызов cancel закрывает канал.
func (h *Hub) Subscribe(runID string) (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[chan Event]struct{})
	}
	h.subs[runID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[runID], ch)
			if len(h.subs[runID]) == 0 {
				delete(h.subs, runID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers возвращает количество подписчиков run.
func (h *Hub) Subscribers(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[runID])
}

// Publish отправляет событие подписчикам его run.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[ev.RunID] {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("stream subscriber is slow, event dropped",
				"run_id", ev.RunID,
				"type", ev.Type,
				"status", ev.Status,
			)
		}
	}
}

// ReportPipeline реализует reporter.Reporter.
func (h *Hub) ReportPipeline(_ context.Context, event domain.PipelineEvent) {
	h.Publish(FromPipelineEvent(event))
}

// ReportTask реализует reporter.Reporter.
func (h *Hub) ReportTask(_ context.Context, event domain.TaskEvent) {
	h.Publish(FromTaskEvent(event))
}
