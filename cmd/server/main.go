// Command server runs the synthetic chart generation service: an HTTP API
// that reconciles each patient's on-disk chart against what was requested
// and drives a language model to fill the gaps.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chartforge/internal/audit"
	auditkafka "chartforge/internal/audit/kafka"
	"chartforge/internal/docstore"
	docstorefs "chartforge/internal/docstore/fs"
	docstorememory "chartforge/internal/docstore/memory"
	docstorepostgres "chartforge/internal/docstore/postgres"
	"chartforge/internal/generate"
	"chartforge/internal/generate/llm"
	"chartforge/internal/history"
	historymemory "chartforge/internal/history/store/memory"
	historyredis "chartforge/internal/history/store/redis"
	"chartforge/internal/inventory"
	"chartforge/internal/persist"
	"chartforge/internal/platform/config"
	"chartforge/internal/platform/httpserver"
	"chartforge/internal/platform/logger"
	"chartforge/internal/platform/postgres"
	platformredis "chartforge/internal/platform/redis"
	"chartforge/internal/purge"
	"chartforge/internal/registry"
	registrymemory "chartforge/internal/registry/store/memory"
	registrypostgres "chartforge/internal/registry/store/postgres"
	registryredis "chartforge/internal/registry/store/redis"
	"chartforge/internal/render"
	httptransport "chartforge/internal/transport/http"
	"chartforge/internal/validation"
	"chartforge/internal/workflow"
	"chartforge/internal/workflow/metrics"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx := context.Background()

	store, err := newStore(cfg.Docstore)
	if err != nil {
		return err
	}

	db, err := postgres.Open(ctx, cfg.Docstore.PostgresURL)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	index, err := newIndex(ctx, db)
	if err != nil {
		return err
	}

	reg, err := newRegistry(ctx, db, redisClient, log)
	if err != nil {
		return err
	}

	histSvc, err := newHistory(redisClient, log)
	if err != nil {
		return err
	}

	auditSink, closeAudit, err := newAudit(ctx, cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer closeAudit()

	model, err := llm.NewModel(llm.ModelConfig{
		Provider: cfg.Model.Provider,
		Model:    cfg.Model.Model,
		APIKey:   cfg.Model.APIKey,
		TestMode: cfg.Model.TestMode,
	})
	if err != nil {
		return err
	}
	client, err := llm.New(model, llm.WithLogger(log))
	if err != nil {
		return err
	}
	collaborator := generate.NewRetrying(client, client,
		generate.WithRetryLogger(log),
		generate.WithRetryConfig(generate.RetryConfig{
			MaxRetries:      uint64(cfg.Model.MaxRetries),
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		}),
	)

	scanner, err := inventory.New(store, inventory.WithLogger(log))
	if err != nil {
		return err
	}

	loop, err := validation.NewLoop(
		validation.NewValidator(validation.Config{AllowMarkdownBold: cfg.Workflow.AllowMarkdownBold}),
		validation.WithMaxAttempts(cfg.Workflow.RepairAttempts),
		validation.WithLoopLogger(log),
	)
	if err != nil {
		return err
	}

	writer, err := persist.New(store, index, render.NewText(), persist.WithLogger(log))
	if err != nil {
		return err
	}

	wf, err := workflow.New(scanner, reg, collaborator, loop, writer,
		workflow.WithLogger(log),
		workflow.WithRepairer(collaborator),
		workflow.WithHistory(histSvc),
		workflow.WithAudit(auditSink),
		workflow.WithMetrics(metrics.New()),
	)
	if err != nil {
		return err
	}

	purger, err := purge.New(store, index, reg,
		purge.WithLogger(log),
		purge.WithHistory(histSvc),
		purge.WithAudit(auditSink),
	)
	if err != nil {
		return err
	}

	handlerOpts := []httptransport.Option{
		httptransport.WithLogger(log),
		httptransport.WithHistory(histSvc),
		httptransport.WithDefaultWorkerLimit(cfg.Workflow.WorkerLimit),
	}
	if cfg.Server.JWTSigningKey != "" {
		validator, err := httptransport.NewHMACValidator(cfg.Server.JWTSigningKey)
		if err != nil {
			return err
		}
		handlerOpts = append(handlerOpts, httptransport.WithAuth(
			httptransport.RequireAuth(validator, log)))
	} else {
		log.Warn("CHARTFORGE_JWT_SIGNING_KEY is unset, purge endpoints are unauthenticated")
	}

	handler, err := httptransport.New(wf, purger, scanner, handlerOpts...)
	if err != nil {
		return err
	}
	router := httptransport.NewRouter(handler, log, httptransport.RouterConfig{
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting chartforge", "addr", cfg.Server.Addr,
			"provider", cfg.Model.Provider, "docstore", cfg.Docstore.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newStore(cfg config.Docstore) (docstore.Store, error) {
	if cfg.Backend == "memory" {
		return docstorememory.New(), nil
	}
	return docstorefs.New(cfg.Root)
}

func newIndex(ctx context.Context, db *sql.DB) (docstore.Index, error) {
	if db == nil {
		return docstorememory.NewIndex(), nil
	}
	index := docstorepostgres.NewIndex(db)
	if err := index.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return index, nil
}

func newRegistry(ctx context.Context, db *sql.DB, redisClient *platformredis.Client, log *slog.Logger) (*registry.Service, error) {
	var store registry.Store
	switch {
	case db != nil:
		pg := registrypostgres.New(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		store = pg
	case redisClient != nil:
		store = registryredis.New(redisClient.Client)
	default:
		store = registrymemory.New()
	}
	return registry.New(store, registry.WithLogger(log))
}

func newHistory(redisClient *platformredis.Client, log *slog.Logger) (*history.Service, error) {
	var store history.Store
	if redisClient != nil {
		store = historyredis.New(redisClient.Client)
	} else {
		store = historymemory.New()
	}
	return history.New(store, history.WithLogger(log))
}

// newAudit connects the Kafka sink when brokers are configured, falling
// back to a no-op publisher otherwise.
func newAudit(ctx context.Context, cfg config.Kafka, log *slog.Logger) (audit.Publisher, func(), error) {
	if len(cfg.Brokers) == 0 {
		return audit.Nop{}, func() {}, nil
	}
	pub, err := auditkafka.New(auditkafka.Config{
		Brokers:           cfg.Brokers,
		Topic:             cfg.Topic,
		Partitions:        cfg.Partitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}, auditkafka.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}
	if err := pub.EnsureTopic(ctx, auditkafka.Config{
		Partitions:        cfg.Partitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}); err != nil {
		pub.Close()
		return nil, nil, err
	}
	return pub, func() { pub.Close() }, nil
}
