// Conveyor API — HTTP API для запуска pipelines и просмотра результатов.
//
// API:
//   - Отдаёт каталог pipelines
//   - Запускает runs стратегией eager (в процессе) или distributed (RabbitMQ)
//   - Отдаёт runs и результаты задач из хранилища
//   - Транслирует события run по WebSocket
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Conveyor/internal/api"
	"github.com/shaiso/Conveyor/internal/app"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/stream"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conveyor-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger, app.Options{Name: "conveyor-api", Hub: true})
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Создаём API handler
	handler := api.NewHandler(api.Config{
		Pipelines:     a.Pipelines,
		Results:       a.Store,
		Submitter:     a.Submitter,
		DefaultRunner: cfg.DefaultRunner,
		Events:        stream.NewHandler(a.Hub, a.Store, logger),
		Logger:        logger,
	})

	// Health и metrics
	mux := app.HealthMux()

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	if err := app.Serve(ctx, cfg.APIPort, mux, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("conveyor-api stopped")
}
