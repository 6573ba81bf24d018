package providers

import (
	"go.uber.org/fx"

	"github.com/atelierhq/atelier/internal/config"
	"github.com/atelierhq/atelier/internal/providers/email"
	"github.com/atelierhq/atelier/internal/providers/pdf"
)

var Module = fx.Module("providers",
	email.Module,
	fx.Provide(providePDF),
)

func providePDF(cfg config.Config) pdf.Provider {
	return pdf.New(cfg.AppName)
}
