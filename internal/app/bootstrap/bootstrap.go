// Package bootstrap composes configuration, storage, messaging and context
// modules into runnable API and worker processes.
package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	vetoengine "civitas/contexts/civic-governance/veto-window-engine"
	vetopostgres "civitas/contexts/civic-governance/veto-window-engine/adapters/postgres"
	vetoworkers "civitas/contexts/civic-governance/veto-window-engine/application/workers"
	sigverify "civitas/contexts/identity-access/signature-verifier"
	sigpostgres "civitas/contexts/identity-access/signature-verifier/adapters/postgres"
	digest "civitas/contexts/member-experience/digest-service"
	digestpostgres "civitas/contexts/member-experience/digest-service/adapters/postgres"
	digestworkers "civitas/contexts/member-experience/digest-service/application/workers"
	playledger "civitas/contexts/treasury-finance/play-ledger-service"
	ledgerpostgres "civitas/contexts/treasury-finance/play-ledger-service/adapters/postgres"
	ledgerworkers "civitas/contexts/treasury-finance/play-ledger-service/application/workers"
	"civitas/internal/platform/config"
	"civitas/internal/platform/db"
	"civitas/internal/platform/httpserver"
	"civitas/internal/platform/messaging"
)

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres *db.Postgres

	ledgerConsumer ledgerworkers.ProposalClosedConsumer
	ledgerRelay    ledgerworkers.OutboxRelay
	vetoRelay      vetoworkers.OutboxRelay
	digestConsumer digestworkers.DigestJobConsumer
	digestSchedule digestworkers.DigestScheduler
	digestRelay    digestworkers.OutboxRelay

	pollInterval time.Duration
	logger       *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	bus, err := messaging.NewBus(cfg.BusBrokers, logger)
	if err != nil {
		return nil, err
	}

	verifier := sigverify.NewModule(sigverify.Dependencies{
		Keys:   sigpostgres.NewRepository(pg.DB, logger),
		Logger: logger,
	})

	vetoRepo := vetopostgres.NewRepository(pg.DB, logger)
	governance := vetoengine.NewModule(vetoengine.Dependencies{
		Votes:          vetoRepo,
		Proposals:      vetoRepo,
		Agents:         vetoRepo,
		Verifier:       verifier.Verifier,
		Idempotency:    vetoRepo,
		Outbox:         vetoRepo,
		Clock:          vetopostgres.SystemClock{},
		IDGen:          vetopostgres.UUIDGenerator{},
		IdempotencyTTL: 7 * 24 * time.Hour,
		Logger:         logger,
	})

	ledgerRepo := ledgerpostgres.NewRepository(pg.DB, logger)
	ledger := playledger.NewModule(playledger.Dependencies{
		Proposals:    ledgerRepo,
		Ledger:       ledgerRepo,
		Outbox:       ledgerRepo,
		Clock:        ledgerpostgres.SystemClock{},
		TreasurySeed: cfg.TreasurySeed,
		Logger:       logger,
	})

	digestRepo := digestpostgres.NewRepository(pg.DB, logger)
	digests := digest.NewModule(digest.Dependencies{
		Users:      digestRepo,
		Agents:     digestRepo,
		Governance: digestRepo,
		Digests:    digestRepo,
		Outbox:     digestRepo,
		Publisher:  bus,
		Clock:      digestpostgres.SystemClock{},
		IDGen:      digestpostgres.UUIDGenerator{},
		Logger:     logger,
		Lookahead:  time.Duration(cfg.DigestLookaheadHours) * time.Hour,
	})

	server := httpserver.New(governance, ledger, digests, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	bus, err := messaging.NewBus(cfg.BusBrokers, logger)
	if err != nil {
		return nil, err
	}

	ledgerRepo := ledgerpostgres.NewRepository(pg.DB, logger)
	ledgerService := playledger.NewModule(playledger.Dependencies{
		Proposals:    ledgerRepo,
		Ledger:       ledgerRepo,
		Outbox:       ledgerRepo,
		Clock:        ledgerpostgres.SystemClock{},
		TreasurySeed: cfg.TreasurySeed,
		Logger:       logger,
	}).Service

	vetoRepo := vetopostgres.NewRepository(pg.DB, logger)

	digestRepo := digestpostgres.NewRepository(pg.DB, logger)
	digestService := digest.NewModule(digest.Dependencies{
		Users:      digestRepo,
		Agents:     digestRepo,
		Governance: digestRepo,
		Digests:    digestRepo,
		Outbox:     digestRepo,
		Publisher:  bus,
		Clock:      digestpostgres.SystemClock{},
		IDGen:      digestpostgres.UUIDGenerator{},
		Logger:     logger,
		Lookahead:  time.Duration(cfg.DigestLookaheadHours) * time.Hour,
	}).Service

	return &WorkerApp{
		postgres: pg,
		ledgerConsumer: ledgerworkers.ProposalClosedConsumer{
			Subscriber: bus,
			Dedup:      ledgerRepo,
			Service:    ledgerService,
			Clock:      ledgerpostgres.SystemClock{},
			DedupTTL:   7 * 24 * time.Hour,
			Disabled:   !cfg.EnableProposalClosedConsumer,
			Logger:     logger,
		},
		ledgerRelay: ledgerworkers.OutboxRelay{
			Outbox:    ledgerRepo,
			Publisher: bus,
			Clock:     ledgerpostgres.SystemClock{},
			BatchSize: 100,
			Logger:    logger,
		},
		vetoRelay: vetoworkers.OutboxRelay{
			Outbox:    vetoRepo,
			Publisher: bus,
			Clock:     vetopostgres.SystemClock{},
			BatchSize: 100,
			Logger:    logger,
		},
		digestConsumer: digestworkers.DigestJobConsumer{
			Subscriber: bus,
			Dedup:      digestRepo,
			Service:    digestService,
			Clock:      digestpostgres.SystemClock{},
			DedupTTL:   7 * 24 * time.Hour,
			Disabled:   !cfg.EnableDigestConsumer,
			Logger:     logger,
		},
		digestSchedule: digestworkers.DigestScheduler{
			Users:     digestRepo,
			Digests:   digestRepo,
			Publisher: bus,
			Clock:     digestpostgres.SystemClock{},
			IDGen:     digestpostgres.UUIDGenerator{},
			Disabled:  !cfg.EnableDigestScheduler,
			Logger:    logger,
		},
		digestRelay: digestworkers.OutboxRelay{
			Outbox:    digestRepo,
			Publisher: bus,
			Clock:     digestpostgres.SystemClock{},
			BatchSize: 100,
			Logger:    logger,
		},
		pollInterval: cfg.WorkerPollInterval,
		logger:       logger,
	}, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	if err := w.ledgerConsumer.Start(ctx); err != nil {
		return err
	}
	if err := w.digestConsumer.Start(ctx); err != nil {
		return err
	}

	interval := w.pollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", interval.String(),
	)

	for {
		if err := w.digestSchedule.RunOnce(ctx); err != nil {
			return err
		}
		if err := w.ledgerRelay.RunOnce(ctx); err != nil {
			return err
		}
		if err := w.vetoRelay.RunOnce(ctx); err != nil {
			return err
		}
		if err := w.digestRelay.RunOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
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
