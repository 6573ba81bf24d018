package overview

import (
	"go.uber.org/fx"

	"github.com/atelierhq/atelier/internal/overview/service"
)

var Module = fx.Module("overview.service",
	fx.Provide(service.NewService),
)
