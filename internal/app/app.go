// Package app собирает зависимости процессов Conveyor: хранилище,
// каталог pipeline, репортеры, RabbitMQ и раннеры.
//
// API, worker и scheduler различаются только тем, что они запускают
// поверх App.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conveyor/internal/catalog"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/pipeline"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/reporter"
	"github.com/shaiso/Conveyor/internal/runner"
	"github.com/shaiso/Conveyor/internal/store"
	"github.com/shaiso/Conveyor/internal/stream"
	"github.com/shaiso/Conveyor/internal/task"
)

// ErrBrokerRequired — процессу нужен RabbitMQ, а он недоступен.
var ErrBrokerRequired = errors.New("rabbitmq connection required")

// Options — что нужно конкретному процессу.
type Options struct {
	// Name — имя процесса (логи, client properties RabbitMQ).
	Name string

	// Hub — подключить stream.Hub к репортерам (процесс API).
	Hub bool

	// RequireBroker — без RabbitMQ процесс не стартует (worker).
	RequireBroker bool
}

// App — собранные зависимости процесса.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Tasks     *task.Registry
	Pipelines *pipeline.Registry

	Store    store.Store
	Reporter reporter.Reporter
	Hub      *stream.Hub

	Conn      *mq.Connection
	Publisher *mq.Publisher

	Eager       *runner.Eager
	Distributed *runner.Distributed
	Submitter   *runner.Submitter

	pool  *pgxpool.Pool
	local *executor.Local
}

// New собирает App по конфигурации.
//
// Распределённые runs уходят в RabbitMQ, только если брокер доступен
// и хранилище общее (postgres). Иначе цепочки выполняются в процессе
// через executor.Local.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	var err error
	if a.Tasks, a.Pipelines, err = catalog.New(); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	if err := a.openBroker(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}

	reporters := reporter.Multi{
		reporter.NewLog(logger),
		reporter.NewStore(a.Store, logger),
		reporter.Metrics{},
	}
	if opts.Hub {
		a.Hub = stream.NewHub(logger)
		reporters = append(reporters, a.Hub)
	}
	a.Reporter = reporters

	runnerCfg := runner.Config{
		Results:  a.Store,
		Values:   a.Store,
		Reporter: a.Reporter,
		Logger:   logger,
	}

	var exec executor.Executor
	if a.Publisher != nil && cfg.Store == config.StorePostgres {
		exec = executor.NewAMQP(a.Publisher, logger)
	} else {
		a.local = executor.NewLocal(nil, logger)
		exec = a.local
		logger.Info("distributed runs execute in-process", "store", cfg.Store, "broker", a.Publisher != nil)
	}

	a.Eager = runner.NewEager(runnerCfg)
	a.Distributed = runner.NewDistributed(runnerCfg, exec, a.Pipelines)
	if a.local != nil {
		a.local.SetHandlers(a.Distributed.Handlers())
	}
	a.Submitter = runner.NewSubmitter(a.Store, logger, a.Eager, a.Distributed)

	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.Store {
	case config.StoreMemory:
		a.Store = store.NewMemory()
		a.Logger.Warn("using in-memory store, results are lost on restart")
		return nil
	default:
		pool, err := repo.NewPool(ctx, a.Config.DBURL)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if err := repo.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return err
		}
		s, err := repo.NewStore(pool, a.Config.RunCacheSize)
		if err != nil {
			pool.Close()
			return err
		}
		a.pool = pool
		a.Store = s
		a.Logger.Info("database connected")
		return nil
	}
}

func (a *App) openBroker(ctx context.Context, opts Options) error {
	conn, err := mq.NewConnection(a.Config.RabbitMQURL, opts.Name, a.Logger)
	if err != nil {
		if opts.RequireBroker {
			return fmt.Errorf("%w: %v", ErrBrokerRequired, err)
		}
		a.Logger.Warn("RabbitMQ not available", "error", err)
		return nil
	}
	a.Logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, conn); err != nil {
		conn.Close()
		if opts.RequireBroker {
			return fmt.Errorf("setup topology: %w", err)
		}
		a.Logger.Warn("failed to setup topology", "error", err)
		return nil
	}

	a.Conn = conn
	a.Publisher = mq.NewPublisher(conn, a.Logger)
	return nil
}

// Pool возвращает пул Postgres или nil для хранилища в памяти.
func (a *App) Pool() *pgxpool.Pool {
	return a.pool
}

// Close освобождает ресурсы: ждёт локальные цепочки, закрывает брокер и БД.
func (a *App) Close() {
	if a.local != nil {
		a.local.Close()
	}
	if a.Conn != nil {
		if err := a.Conn.Close(); err != nil {
			a.Logger.Warn("failed to close RabbitMQ connection", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// HealthMux возвращает mux с /healthz и /metrics.
func HealthMux() *http.ServeMux {
	startTime := time.Now()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime).Round(time.Second))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Serve обслуживает HTTP до отмены ctx, затем выполняет graceful shutdown.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
