package digest

import (
	"log/slog"
	"time"

	httpadapter "civitas/contexts/member-experience/digest-service/adapters/http"
	"civitas/contexts/member-experience/digest-service/adapters/memory"
	"civitas/contexts/member-experience/digest-service/application"
	"civitas/contexts/member-experience/digest-service/ports"
)

type Module struct {
	Service application.Service
	Handler httpadapter.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Users      ports.UserReader
	Agents     ports.AgentReader
	Governance ports.GovernanceReader
	Digests    ports.DigestRepository
	Renderer   ports.DigestRenderer
	Outbox     ports.OutboxWriter
	Publisher  ports.EventPublisher
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Logger     *slog.Logger
	Lookahead  time.Duration
}

func NewModule(deps Dependencies) Module {
	renderer := deps.Renderer
	if renderer == nil {
		renderer = application.RenderDigest
	}
	service := application.Service{
		Users:      deps.Users,
		Agents:     deps.Agents,
		Governance: deps.Governance,
		Digests:    deps.Digests,
		Renderer:   renderer,
		Outbox:     deps.Outbox,
		Clock:      deps.Clock,
		IDGen:      deps.IDGen,
		Logger:     deps.Logger,
		Lookahead:  deps.Lookahead,
	}
	return Module{
		Service: service,
		Handler: httpadapter.Handler{
			Service:   service,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			IDGen:     deps.IDGen,
			Logger:    deps.Logger,
		},
	}
}

func NewInMemoryModule(publisher ports.EventPublisher, logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Users:      store,
		Agents:     store,
		Governance: store,
		Digests:    store,
		Outbox:     store,
		Publisher:  publisher,
		Clock:      store,
		IDGen:      store,
		Logger:     logger,
	})
	module.Store = store
	return module
}
