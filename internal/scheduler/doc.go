// Package scheduler запускает pipeline по cron-расписаниям.
//
// Расписания задаются строкой PIPELINE_SCHEDULES:
//
//	basic|eager|*/5 * * * *;iterator|distributed|@every 1m
//
// Структура:
//   - scheduler.go — цикл тиков, запуск через runner.Submitter
//   - cron.go      — разбор расписаний и cron-выражений
//
// Использование:
//
//	entries, err := scheduler.ParseSchedules(cfg.PipelineSchedules)
//	sched := scheduler.New(scheduler.Config{
//	    Submitter: submitter,
//	    Pipelines: pipelines,
//	    Entries:   entries,
//	    Leader:    repo.NewAdvisoryLock(pool, key), // опционально
//	    Logger:    logger,
//	})
//	sched.Start(ctx)
//	defer sched.Stop()
//
// Leader Election:
//
// При нескольких экземплярах тики выполняет только лидер. Лидерство
// держится через pg_try_advisory_lock (repo.AdvisoryLock).
package scheduler
