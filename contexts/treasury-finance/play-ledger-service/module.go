package playledger

import (
	"log/slog"

	httpadapter "civitas/contexts/treasury-finance/play-ledger-service/adapters/http"
	"civitas/contexts/treasury-finance/play-ledger-service/adapters/memory"
	"civitas/contexts/treasury-finance/play-ledger-service/application"
	"civitas/contexts/treasury-finance/play-ledger-service/ports"
)

type Module struct {
	Service application.Service
	Handler httpadapter.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Proposals    ports.ProposalReader
	Ledger       ports.LedgerRepository
	Outbox       ports.OutboxWriter
	Clock        ports.Clock
	TreasurySeed float64
	Logger       *slog.Logger
}

func NewModule(deps Dependencies) Module {
	service := application.Service{
		Proposals:    deps.Proposals,
		Ledger:       deps.Ledger,
		Outbox:       deps.Outbox,
		Clock:        deps.Clock,
		TreasurySeed: deps.TreasurySeed,
		Logger:       deps.Logger,
	}
	return Module{
		Service: service,
		Handler: httpadapter.Handler{
			Service: service,
			Logger:  deps.Logger,
		},
	}
}

func NewInMemoryModule(treasurySeed float64, logger *slog.Logger) Module {
	store := memory.NewStore()
	store.SeedTreasury(treasurySeed)
	module := NewModule(Dependencies{
		Proposals:    store,
		Ledger:       store,
		Outbox:       store,
		Clock:        store,
		TreasurySeed: treasurySeed,
		Logger:       logger,
	})
	module.Store = store
	return module
}
