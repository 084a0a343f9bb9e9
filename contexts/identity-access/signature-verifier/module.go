package sigverify

import (
	"log/slog"

	"civitas/contexts/identity-access/signature-verifier/adapters/memory"
	"civitas/contexts/identity-access/signature-verifier/application"
	"civitas/contexts/identity-access/signature-verifier/ports"
)

type Module struct {
	Verifier application.Verifier
	Store    *memory.Store
}

type Dependencies struct {
	Keys   ports.KeyReader
	Logger *slog.Logger
}

func NewModule(deps Dependencies) Module {
	return Module{
		Verifier: application.Verifier{
			Keys:   deps.Keys,
			Logger: deps.Logger,
		},
	}
}

func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Keys:   store,
		Logger: logger,
	})
	module.Store = store
	return module
}
