package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	votingledger "votingledger/contexts/governance/voting-ledger"
	"votingledger/contexts/governance/voting-ledger/adapters/memory"
	postgresadapter "votingledger/contexts/governance/voting-ledger/adapters/postgres"
	workerapp "votingledger/contexts/governance/voting-ledger/application/workers"
	"votingledger/contexts/governance/voting-ledger/ports"
	"votingledger/internal/platform/config"
	"votingledger/internal/platform/db"
	"votingledger/internal/platform/httpserver"
	"votingledger/internal/platform/messaging"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger

	// Set only on the memory ledger, which no separate worker can reach.
	relay        *workerapp.OutboxRelay
	consumer     *workerapp.LedgerEventConsumer
	pollInterval time.Duration
}

type WorkerApp struct {
	postgres     *db.Postgres
	outboxRelay  workerapp.OutboxRelay
	consumer     *workerapp.LedgerEventConsumer
	pollInterval time.Duration
	logger       *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := NewLogger(cfg).With("service", cfg.ServiceName, "process", "api")
	logger.Info("api configuration loaded",
		"event", "bootstrap_api_config_loaded",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"config", cfg.DebugString(),
	)

	var (
		ledger ports.Ledger
		clock  ports.Clock
		idGen  ports.IDGenerator
		pg     *db.Postgres
		app    = &APIApp{logger: logger, pollInterval: cfg.OutboxPollInterval}
	)
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		logger.Warn("POSTGRES_DSN is empty; ledger state lives in memory and is lost on restart",
			"event", "bootstrap_api_memory_ledger",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
		store := memory.NewStore()
		ledger, clock, idGen = store, store, store

		kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
		if err != nil {
			return nil, err
		}
		app.relay = &workerapp.OutboxRelay{
			Outbox:    store,
			Publisher: kafka,
			Clock:     store,
			BatchSize: 100,
			Logger:    logger,
		}
		app.consumer = &workerapp.LedgerEventConsumer{Subscriber: kafka, Logger: logger}
	} else {
		pg, err = db.Connect(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		repo := postgresadapter.NewRepository(pg.DB, logger)
		if err := repo.Migrate(context.Background()); err != nil {
			_ = pg.Close()
			return nil, err
		}
		ledger, clock, idGen = repo, postgresadapter.SystemClock{}, postgresadapter.UUIDGenerator{}
	}

	registry, err := ledger.InitRegistry(context.Background(), cfg.LedgerOwner, clock.Now())
	if err != nil {
		if pg != nil {
			_ = pg.Close()
		}
		return nil, err
	}
	logger.Info("ledger registry ready",
		"event", "bootstrap_registry_ready",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"owner", registry.Owner.Hex(),
		"next_round_id", registry.NextRoundID,
	)

	module := votingledger.NewModule(votingledger.Dependencies{
		Ledger:        ledger,
		Clock:         clock,
		IDGen:         idGen,
		EntryFee:      cfg.EntryFeeWei,
		CommissionBps: cfg.CommissionBps,
		Logger:        logger,
	})
	app.server = httpserver.New(module, logger, normalizeAddr(cfg.HTTPPort))
	app.postgres = pg
	return app, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := NewLogger(cfg).With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	if err := repo.Migrate(context.Background()); err != nil {
		_ = pg.Close()
		return nil, err
	}
	return &WorkerApp{
		postgres: pg,
		outboxRelay: workerapp.OutboxRelay{
			Outbox:    repo,
			Publisher: kafka,
			Clock:     postgresadapter.SystemClock{},
			BatchSize: 100,
			Logger:    logger,
		},
		consumer: &workerapp.LedgerEventConsumer{
			Subscriber: kafka,
			Logger:     logger,
		},
		pollInterval: cfg.OutboxPollInterval,
		logger:       logger,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then shuts the server down.
func (a *APIApp) Run(ctx context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	if a.relay != nil {
		if err := a.consumer.Start(ctx); err != nil {
			return err
		}
		go func() {
			_ = a.relay.Run(ctx, a.pollInterval)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	}
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	if err := w.consumer.Start(ctx); err != nil {
		return err
	}

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	err := w.outboxRelay.Run(ctx, w.pollInterval)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
