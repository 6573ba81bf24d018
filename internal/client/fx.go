package client

import (
	"go.uber.org/fx"

	"github.com/atelierhq/atelier/internal/client/domain"
	"github.com/atelierhq/atelier/internal/client/service"
	"github.com/atelierhq/atelier/pkg/repository"
)

var Module = fx.Module("client.service",
	fx.Provide(repository.ProvideStore[domain.Client]),
	fx.Provide(service.New),
)
