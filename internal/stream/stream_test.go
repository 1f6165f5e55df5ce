package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHub_SubscribeAndPublish(t *testing.T) {
	hub := NewHub(quietLogger())

	events, cancel := hub.Subscribe("r1")
	other, cancelOther := hub.Subscribe("r2")
	defer cancelOther()

	hub.ReportTask(context.Background(), domain.TaskEvent{RunID: "r1", PipelineTask: "a", Status: domain.StatusRunning})

	select {
	case ev := <-events:
		if ev.Type != EventTask || ev.PipelineTask != "a" || ev.Status != domain.StatusRunning {
			t.Errorf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected event for r1")
	}
	select {
	case ev := <-other:
		t.Errorf("r2 should not receive r1 events, got %+v", ev)
	default:
	}

	if hub.Subscribers("r1") != 1 {
		t.Errorf("expected 1 subscriber, got %d", hub.Subscribers("r1"))
	}
	cancel()
	cancel()
	if hub.Subscribers("r1") != 0 {
		t.Errorf("expected 0 subscribers after cancel, got %d", hub.Subscribers("r1"))
	}
	if _, ok := <-events; ok {
		t.Error("channel should be closed after cancel")
	}
}

func TestHub_SlowSubscriberDropsEvents(t *testing.T) {
	hub := NewHub(quietLogger())
	events, cancel := hub.Subscribe("r1")
	defer cancel()

	// Publish не блокируется на переполненном буфере
	for i := 0; i < defaultBuffer+10; i++ {
		hub.ReportPipeline(context.Background(), domain.PipelineEvent{RunID: "r1", Status: domain.StatusRunning})
	}
	if len(events) != defaultBuffer {
		t.Errorf("expected %d buffered events, got %d", defaultBuffer, len(events))
	}
}

func TestEvent_Terminal(t *testing.T) {
	if !FromPipelineEvent(domain.PipelineEvent{Status: domain.StatusDone}).Terminal() {
		t.Error("pipeline DONE should be terminal")
	}
	if FromPipelineEvent(domain.PipelineEvent{Status: domain.StatusRunning}).Terminal() {
		t.Error("pipeline RUNNING should not be terminal")
	}
	if FromTaskEvent(domain.TaskEvent{Status: domain.StatusDone}).Terminal() {
		t.Error("task events are never terminal")
	}
}

// dial подключается к Handler для run p/r1.
func dial(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Serve(w, r, "p", "r1")
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func read(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type == EventTask {
		return ev.PipelineTask + " " + ev.Status.String()
	}
	return "pipeline " + ev.Status.String()
}

func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	var ev Event
	err := conn.ReadJSON(&ev)
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseNormalClosure {
		t.Fatalf("expected normal close, got %v (%+v)", err, ev)
	}
	if closeErr.Text != CloseReasonFinished {
		t.Errorf("unexpected close reason: %q", closeErr.Text)
	}
}

func seed(t *testing.T, mem *store.Memory, tasks ...string) {
	t.Helper()
	ctx := context.Background()
	if err := mem.CreateRun(ctx, &domain.PipelineRun{PipelineID: "p", RunID: "r1"}); err != nil {
		t.Fatalf("create run: %v", err)
	}
	for _, name := range tasks {
		_, _ = mem.SaveTaskResult(ctx, &domain.TaskResult{PipelineID: "p", RunID: "r1", PipelineTask: name, Status: domain.StatusPending})
	}
}

func TestHandler_SnapshotOfFinishedRun(t *testing.T) {
	mem := store.NewMemory()
	seed(t, mem, "a", "b")
	ctx := context.Background()
	for _, name := range []string{"a", "b"} {
		_, _ = mem.SaveTaskResult(ctx, &domain.TaskResult{PipelineID: "p", RunID: "r1", PipelineTask: name, Status: domain.StatusRunning})
		_, _ = mem.SaveTaskResult(ctx, &domain.TaskResult{PipelineID: "p", RunID: "r1", PipelineTask: name, Status: domain.StatusDone})
	}

	conn := dial(t, NewHandler(nil, mem, quietLogger()))

	for _, want := range []string{"a DONE", "b DONE", "pipeline DONE"} {
		if got := read(t, conn); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
	expectClosed(t, conn)
}

func TestHandler_LiveEvents(t *testing.T) {
	mem := store.NewMemory()
	seed(t, mem, "a")
	hub := NewHub(quietLogger())

	// Опрос не мешает: события приходят только из Hub
	conn := dial(t, NewHandler(hub, mem, quietLogger()).WithPollInterval(time.Hour))

	if got := read(t, conn); got != "a PENDING" {
		t.Fatalf("unexpected snapshot: %q", got)
	}
	if got := read(t, conn); got != "pipeline PENDING" {
		t.Fatalf("unexpected snapshot: %q", got)
	}

	ctx := context.Background()
	hub.ReportPipeline(ctx, domain.PipelineEvent{PipelineID: "p", RunID: "r1", Status: domain.StatusRunning})
	hub.ReportTask(ctx, domain.TaskEvent{PipelineID: "p", RunID: "r1", PipelineTask: "a", Status: domain.StatusRunning})
	// Повтор статуса не отправляется
	hub.ReportTask(ctx, domain.TaskEvent{PipelineID: "p", RunID: "r1", PipelineTask: "a", Status: domain.StatusRunning})
	hub.ReportTask(ctx, domain.TaskEvent{PipelineID: "p", RunID: "r1", PipelineTask: "a", Status: domain.StatusDone})
	hub.ReportPipeline(ctx, domain.PipelineEvent{PipelineID: "p", RunID: "r1", Status: domain.StatusDone})

	for _, want := range []string{"pipeline RUNNING", "a RUNNING", "a DONE", "pipeline DONE"} {
		if got := read(t, conn); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
	expectClosed(t, conn)
}

func TestHandler_PollsStore(t *testing.T) {
	mem := store.NewMemory()
	seed(t, mem, "a")

	conn := dial(t, NewHandler(nil, mem, quietLogger()).WithPollInterval(20*time.Millisecond))
	read(t, conn)
	read(t, conn)

	// Изменения другого процесса видны только через хранилище
	ctx := context.Background()
	_, _ = mem.SaveTaskResult(ctx, &domain.TaskResult{PipelineID: "p", RunID: "r1", PipelineTask: "a", Status: domain.StatusRunning})
	_, _ = mem.SaveTaskResult(ctx, &domain.TaskResult{PipelineID: "p", RunID: "r1", PipelineTask: "a", Status: domain.StatusDone})

	// Опрос может застать промежуточный RUNNING
	var got []string
	for len(got) == 0 || got[len(got)-1] != "pipeline DONE" {
		got = append(got, read(t, conn))
	}
	if len(got) < 2 || got[len(got)-2] != "a DONE" {
		t.Errorf("expected a DONE before pipeline DONE, got %v", got)
	}
	expectClosed(t, conn)
}
