// Conveyor Scheduler — запускает pipelines по cron-расписаниям
// из PIPELINE_SCHEDULES.
//
// При Postgres-хранилище тики выполняет только лидер
// (pg_try_advisory_lock), поэтому экземпляров может быть несколько.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Conveyor/internal/app"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/scheduler"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conveyor-scheduler")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	entries, err := scheduler.ParseSchedules(cfg.PipelineSchedules)
	if err != nil {
		logger.Error("failed to parse PIPELINE_SCHEDULES", "error", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		logger.Warn("no schedules configured")
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger, app.Options{Name: "conveyor-scheduler"})
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	schedCfg := scheduler.Config{
		Submitter:     a.Submitter,
		Pipelines:     a.Pipelines,
		Entries:       entries,
		DefaultRunner: cfg.DefaultRunner,
		Logger:        logger,
	}
	if pool := a.Pool(); pool != nil {
		schedCfg.Leader = repo.NewAdvisoryLock(pool, repo.SchedulerLockKey)
	}

	sched := scheduler.New(schedCfg)
	sched.Start(ctx)

	// HTTP mux: /healthz + /metrics
	if err := app.Serve(ctx, cfg.SchedulerPort, app.HealthMux(), logger); err != nil {
		logger.Error("http server error", "error", err)
	}

	sched.Stop()
	logger.Info("conveyor-scheduler stopped")
}
