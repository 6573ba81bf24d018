package recurring

import (
	"github.com/atelierhq/atelier/internal/recurring/service"
	"go.uber.org/fx"
)

var Module = fx.Module("recurring.service",
	fx.Provide(service.NewService),
)
