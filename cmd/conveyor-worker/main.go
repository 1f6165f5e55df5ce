// Conveyor Worker — выполняет шаги распределённых цепочек.
//
// Worker:
//   - Получает шаги цепочек из RabbitMQ (chains.steps)
//   - Выполняет элемент: отчёт pipeline, задачу или обработчик ошибки
//   - Публикует следующий шаг цепочки
//   - Пишет статусы в общее хранилище (Postgres)
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Conveyor/internal/app"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conveyor-worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Store == config.StoreMemory {
		logger.Warn("memory store is local to this process, run results are not visible to the API")
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger, app.Options{Name: "conveyor-worker", RequireBroker: true})
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Создаём worker
	w := worker.New(worker.Config{
		Conn:      a.Conn,
		Handlers:  a.Distributed.Handlers(),
		Publisher: a.Publisher,
		Prefetch:  cfg.WorkerPrefetch,
		Logger:    logger,
	})

	// Запускаем worker
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	if err := app.Serve(ctx, cfg.WorkerPort, app.HealthMux(), logger); err != nil {
		logger.Error("http server error", "error", err)
	}

	// Останавливаем worker
	w.Stop()
	logger.Info("conveyor-worker stopped")
}
