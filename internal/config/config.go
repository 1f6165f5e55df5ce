// Package config читает конфигурацию процессов Conveyor из окружения.
//
// Переменные можно задать в файле .env в рабочей директории: он
// загружается через godotenv и не перекрывает уже заданные переменные.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/runner"
	"github.com/shaiso/Conveyor/internal/scheduler"
)

// Хранилища результатов.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// ErrInvalidConfig — некорректное значение переменной окружения.
var ErrInvalidConfig = errors.New("invalid config")

// Config — конфигурация процессов Conveyor.
type Config struct {
	// DBURL — строка подключения к Postgres (DB_URL).
	DBURL string

	// RabbitMQURL — адрес брокера (RABBITMQ_URL).
	RabbitMQURL string

	// Store — хранилище результатов: postgres или memory (STORE).
	Store string

	// Порты HTTP-серверов (API_PORT, WORKER_PORT, SCHEDULER_PORT).
	APIPort       string
	WorkerPort    string
	SchedulerPort string

	// DefaultRunner — стратегия по умолчанию (DEFAULT_RUNNER).
	DefaultRunner string

	// APIURL — адрес API для CLI (API_URL).
	APIURL string

	// PipelineSchedules — расписания scheduler'а (PIPELINE_SCHEDULES).
	PipelineSchedules string

	// WorkerPrefetch — prefetch consumer'а воркера (WORKER_PREFETCH).
	WorkerPrefetch int

	// RunCacheSize — размер кэша завершённых runs (RUN_CACHE_SIZE).
	RunCacheSize int
}

// Load загружает .env (или переданные файлы) и читает конфигурацию.
// Отсутствие файлов не ошибка.
func Load(files ...string) (*Config, error) {
	_ = godotenv.Load(files...)

	cfg := &Config{
		DBURL:             env("DB_URL", repo.DefaultDSN),
		RabbitMQURL:       env("RABBITMQ_URL", mq.DefaultURL()),
		Store:             strings.ToLower(env("STORE", StorePostgres)),
		APIPort:           port(env("API_PORT", "8080")),
		WorkerPort:        port(env("WORKER_PORT", "8082")),
		SchedulerPort:     port(env("SCHEDULER_PORT", "8083")),
		DefaultRunner:     strings.ToLower(env("DEFAULT_RUNNER", runner.NameEager)),
		APIURL:            strings.TrimRight(env("API_URL", "http://localhost:8080"), "/"),
		PipelineSchedules: env("PIPELINE_SCHEDULES", ""),
	}

	var err error
	if cfg.WorkerPrefetch, err = intEnv("WORKER_PREFETCH", 5); err != nil {
		return nil, err
	}
	if cfg.RunCacheSize, err = intEnv("RUN_CACHE_SIZE", repo.DefaultCacheSize); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет значения перечислимых параметров и расписания.
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("%w: STORE=%q (want %s or %s)", ErrInvalidConfig, c.Store, StorePostgres, StoreMemory)
	}

	switch c.DefaultRunner {
	case runner.NameEager, runner.NameDistributed:
	default:
		return fmt.Errorf("%w: DEFAULT_RUNNER=%q (want %s or %s)",
			ErrInvalidConfig, c.DefaultRunner, runner.NameEager, runner.NameDistributed)
	}

	if _, err := scheduler.ParseSchedules(c.PipelineSchedules); err != nil {
		return fmt.Errorf("%w: PIPELINE_SCHEDULES: %w", ErrInvalidConfig, err)
	}
	return nil
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, raw)
	}
	return v, nil
}

// port приводит "8080" и ":8080" к адресу ":8080".
func port(v string) string {
	if strings.HasPrefix(v, ":") {
		return v
	}
	return ":" + v
}
