package project

import (
	"go.uber.org/fx"

	"github.com/atelierhq/atelier/internal/project/domain"
	"github.com/atelierhq/atelier/internal/project/service"
	"github.com/atelierhq/atelier/pkg/repository"
)

var Module = fx.Module("project.service",
	fx.Provide(repository.ProvideStore[domain.Project]),
	fx.Provide(service.New),
)
