package reporter

import (
	"context"
	"sync"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Entry — одно записанное событие.
// Ровно одно из полей Pipeline / Task заполнено.
type Entry struct {
	Pipeline *domain.PipelineEvent
	Task     *domain.TaskEvent
}

// String возвращает краткую форму: "pipeline RUNNING" или "save_message DONE".
func (e Entry) String() string {
	if e.Pipeline != nil {
		return "pipeline " + e.Pipeline.Status.String()
	}
	return e.Task.PipelineTask + " " + e.Task.Status.String()
}

// Recorder сохраняет события в памяти в порядке поступления.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// ReportPipeline реализует Reporter.
func (r *Recorder) ReportPipeline(_ context.Context, event domain.PipelineEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Pipeline: &event})
}

// ReportTask реализует Reporter.
func (r *Recorder) ReportTask(_ context.Context, event domain.TaskEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Task: &event})
}

// Entries возвращает копию записанных событий.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Trace возвращает события в краткой форме (см. Entry.String).
func (r *Recorder) Trace() []string {
	entries := r.Entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.String()
	}
	return out
}

// Reset очищает записанные события.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}
