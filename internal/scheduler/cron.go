package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule — расписание не удалось разобрать.
var ErrInvalidSchedule = errors.New("invalid schedule")

// cronParser — парсер cron-выражений (5 полей и дескрипторы вида @every).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Entry — расписание одного pipeline.
type Entry struct {
	PipelineID string
	// Runner — стратегия запуска; пустая означает стратегию по умолчанию.
	Runner string
	Expr   string

	schedule cron.Schedule
}

// Next возвращает время следующего запуска после from.
func (e Entry) Next(from time.Time) time.Time {
	return e.schedule.Next(from)
}

// ParseSchedules разбирает список расписаний вида
// "pipeline_id|runner|cron;pipeline_id|runner|cron".
//
// Пустая строка — пустой список.
func ParseSchedules(raw string) ([]Entry, error) {
	var entries []Entry
	for _, item := range strings.Split(raw, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		parts := strings.Split(item, "|")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: %q: expected pipeline_id|runner|cron", ErrInvalidSchedule, item)
		}

		entry, err := NewEntry(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// NewEntry создаёт расписание и проверяет cron-выражение.
func NewEntry(pipelineID, runnerName, expr string) (Entry, error) {
	if pipelineID == "" {
		return Entry{}, fmt.Errorf("%w: empty pipeline id", ErrInvalidSchedule)
	}

	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: cron expression %q: %v", ErrInvalidSchedule, expr, err)
	}

	return Entry{
		PipelineID: pipelineID,
		Runner:     strings.ToLower(runnerName),
		Expr:       expr,
		schedule:   schedule,
	}, nil
}
