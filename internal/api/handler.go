package api

import (
	"log/slog"

	"github.com/shaiso/Conveyor/internal/pipeline"
	"github.com/shaiso/Conveyor/internal/runner"
	"github.com/shaiso/Conveyor/internal/store"
	"github.com/shaiso/Conveyor/internal/stream"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	pipelines     *pipeline.Registry
	results       store.ResultStore
	submitter     *runner.Submitter
	defaultRunner string
	events        *stream.Handler
	logger        *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Pipelines *pipeline.Registry
	Results   store.ResultStore
	Submitter *runner.Submitter

	// DefaultRunner — стратегия, если запрос её не указал.
	DefaultRunner string

	// Events — WebSocket-трансляция событий (опционально).
	Events *stream.Handler

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaultRunner := cfg.DefaultRunner
	if defaultRunner == "" {
		defaultRunner = runner.NameEager
	}

	return &Handler{
		pipelines:     cfg.Pipelines,
		results:       cfg.Results,
		submitter:     cfg.Submitter,
		defaultRunner: defaultRunner,
		events:        cfg.Events,
		logger:        logger,
	}
}
