package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/pipeline"
	"github.com/shaiso/Conveyor/internal/runner"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Submitter запускает pipeline. Реализуется runner.Submitter.
type Submitter interface {
	Submit(ctx context.Context, def *pipeline.Definition, strategy string, input map[string]any) (*runner.Submission, error)
}

// Leader — выбор лидера между экземплярами scheduler.
type Leader interface {
	// TryAcquire пытается стать лидером (или подтверждает лидерство).
	TryAcquire(ctx context.Context) (bool, error)
	// Release снимает лидерство.
	Release(ctx context.Context) error
}

// Config — конфигурация Scheduler.
type Config struct {
	Submitter Submitter
	Pipelines *pipeline.Registry
	Entries   []Entry

	// DefaultRunner — стратегия для расписаний без явного runner.
	DefaultRunner string

	// Leader — опционально; без него тики выполняет каждый экземпляр.
	Leader Leader

	Interval time.Duration // период тика (default: 1s)
	Logger   *slog.Logger
}

// Scheduler запускает pipeline по cron-расписаниям.
type Scheduler struct {
	submitter     Submitter
	pipelines     *pipeline.Registry
	defaultRunner string
	leader        Leader
	interval      time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	entries []*scheduled

	wg         sync.WaitGroup
	cancelFunc context.CancelFunc
}

type scheduled struct {
	Entry
	next time.Time
}

// New создаёт Scheduler. Первый запуск каждого расписания вычисляется
// от момента создания.
func New(cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaultRunner := cfg.DefaultRunner
	if defaultRunner == "" {
		defaultRunner = runner.NameEager
	}

	s := &Scheduler{
		submitter:     cfg.Submitter,
		pipelines:     cfg.Pipelines,
		defaultRunner: defaultRunner,
		leader:        cfg.Leader,
		interval:      interval,
		logger:        logger.With("component", "scheduler"),
	}

	now := time.Now()
	for _, e := range cfg.Entries {
		s.entries = append(s.entries, &scheduled{Entry: e, next: e.Next(now)})
	}
	return s
}

// Start запускает цикл тиков в фоне.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	s.logger.Info("scheduler started", "schedules", len(s.entries), "interval", s.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

// Stop останавливает цикл и снимает лидерство.
func (s *Scheduler) Stop() {
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	tk := time.NewTicker(s.interval)
	defer tk.Stop()

	var isLeader bool
	defer func() {
		if isLeader && s.leader != nil {
			if err := s.leader.Release(context.Background()); err != nil {
				s.logger.Warn("failed to release leadership", "error", err)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-tk.C:
			if s.leader != nil {
				ok, err := s.leader.TryAcquire(ctx)
				if err != nil {
					s.logger.Warn("leader election failed", "error", err)
					continue
				}
				if ok != isLeader {
					s.logger.Info("leadership changed", "leader", ok)
				}
				isLeader = ok
				if !isLeader {
					// не лидер — пропускаем тик
					continue
				}
			}
			s.Tick(ctx, t)
		}
	}
}

// Tick запускает все расписания, время которых наступило к now,
// и возвращает количество созданных submissions.
//
// Ошибка одного расписания не блокирует остальные. Пропущенные
// за время простоя запуски не догоняются: следующий считается от now.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	var due []*scheduled
	for _, e := range s.entries {
		if !e.next.After(now) {
			due = append(due, e)
			e.next = e.Next(now)
		}
	}
	s.mu.Unlock()

	var submitted int
	for _, e := range due {
		if err := s.submit(ctx, e.Entry); err != nil {
			telemetry.ScheduledRuns.WithLabelValues(e.PipelineID, "error").Inc()
			s.logger.Error("scheduled submission failed",
				"pipeline_id", e.PipelineID,
				"cron", e.Expr,
				"error", err,
			)
			continue
		}
		telemetry.ScheduledRuns.WithLabelValues(e.PipelineID, "ok").Inc()
		submitted++
	}

	if len(due) > 0 {
		s.logger.Info("scheduler tick completed", "due", len(due), "submitted", submitted)
	}
	return submitted
}

func (s *Scheduler) submit(ctx context.Context, e Entry) error {
	def, err := s.pipelines.Get(e.PipelineID)
	if err != nil {
		return err
	}

	strategy := e.Runner
	if strategy == "" {
		strategy = s.defaultRunner
	}

	sub, err := s.submitter.Submit(ctx, def, strategy, nil)
	if err != nil {
		return err
	}
	if sub == nil {
		return errors.New("empty submission")
	}

	for _, r := range sub.Runs {
		s.logger.Info("run submitted by schedule",
			"pipeline_id", sub.PipelineID,
			"run_id", r.RunID,
			"runner", sub.Runner,
			"iteration", r.Iteration,
			"cron", e.Expr,
		)
	}
	return nil
}

// NextRuns возвращает время следующего запуска каждого расписания.
func (s *Scheduler) NextRuns() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]time.Time, len(s.entries))
	for _, e := range s.entries {
		key := e.PipelineID + "|" + e.Expr
		out[key] = e.next
	}
	return out
}
