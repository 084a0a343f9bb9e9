package vetoengine

import (
	"log/slog"
	"time"

	httpadapter "civitas/contexts/civic-governance/veto-window-engine/adapters/http"
	"civitas/contexts/civic-governance/veto-window-engine/adapters/memory"
	"civitas/contexts/civic-governance/veto-window-engine/application/commands"
	"civitas/contexts/civic-governance/veto-window-engine/application/queries"
	"civitas/contexts/civic-governance/veto-window-engine/ports"
)

type Module struct {
	Votes   commands.VoteUseCase
	Queries queries.PendingVetoUseCase
	Handler httpadapter.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Votes          ports.VoteRepository
	Proposals      ports.ProposalReader
	Agents         ports.AgentReader
	Verifier       ports.SignatureVerifier
	Idempotency    ports.IdempotencyStore
	Outbox         ports.OutboxWriter
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

func NewModule(deps Dependencies) Module {
	votes := commands.VoteUseCase{
		Votes:          deps.Votes,
		Proposals:      deps.Proposals,
		Agents:         deps.Agents,
		Verifier:       deps.Verifier,
		Idempotency:    deps.Idempotency,
		Outbox:         deps.Outbox,
		Clock:          deps.Clock,
		IDGen:          deps.IDGen,
		IdempotencyTTL: deps.IdempotencyTTL,
		Logger:         deps.Logger,
	}
	pending := queries.PendingVetoUseCase{
		Votes: deps.Votes,
		Clock: deps.Clock,
	}
	return Module{
		Votes:   votes,
		Queries: pending,
		Handler: httpadapter.Handler{
			Votes:     votes,
			Queries:   pending,
			Proposals: deps.Proposals,
			Clock:     deps.Clock,
			Logger:    deps.Logger,
		},
	}
}

func NewInMemoryModule(verifier ports.SignatureVerifier, logger *slog.Logger) Module {
	store := memory.NewStore(nil)
	module := NewModule(Dependencies{
		Votes:       store,
		Proposals:   store,
		Agents:      store,
		Verifier:    verifier,
		Idempotency: store,
		Outbox:      store,
		Clock:       store,
		IDGen:       store,
		Logger:      logger,
	})
	module.Store = store
	return module
}
