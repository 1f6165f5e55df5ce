package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel переводит DEBUG, INFO, WARN или ERROR в slog.Level.
// Неизвестное значение — INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogLevel — уровень из LOG_LEVEL.
func LogLevel() slog.Level {
	return ParseLevel(os.Getenv("LOG_LEVEL"))
}

// SetupLogger создаёт логгер процесса и делает его глобальным.
//
// LOG_FORMAT=text включает текстовый формат, иначе JSON.
func SetupLogger() *slog.Logger {
	return setDefault(NewLogger(os.Stdout, os.Getenv("LOG_FORMAT"), LogLevel()))
}

// SetupCLILogger — логгер для CLI: текстовый формат в stderr,
// чтобы не смешиваться с выводом данных в stdout.
func SetupCLILogger() *slog.Logger {
	return setDefault(NewLogger(os.Stderr, "text", LogLevel()))
}

// NewLogger создаёт логгер в формате json или text.
// На уровне DEBUG в записи добавляется место вызова.
func NewLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func setDefault(logger *slog.Logger) *slog.Logger {
	slog.SetDefault(logger)
	return logger
}

type ctxKey string

// CtxLogger — ключ логгера в контексте.
const CtxLogger ctxKey = "logger"

// WithLogger добавляет логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, CtxLogger, logger)
}

// FromContext извлекает логгер из контекста, иначе возвращает fallback
// (или глобальный, если fallback nil).
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(CtxLogger).(*slog.Logger); ok {
		return logger
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}

// WithRun возвращает логгер с pipeline_id и run_id.
func WithRun(logger *slog.Logger, pipelineID, runID string) *slog.Logger {
	return logger.With("pipeline_id", pipelineID, "run_id", runID)
}

// WithTask возвращает логгер с именем задачи и её task_id.
func WithTask(logger *slog.Logger, pipelineTask, taskID string) *slog.Logger {
	return logger.With("pipeline_task", pipelineTask, "task_id", taskID)
}
