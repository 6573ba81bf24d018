package reminder

import (
	invoicedomain "github.com/atelierhq/atelier/internal/invoice/domain"
	reminderdomain "github.com/atelierhq/atelier/internal/reminder/domain"
	"github.com/atelierhq/atelier/internal/reminder/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reminder.service",
	fx.Provide(
		service.NewService,
		func(s *service.Service) reminderdomain.Service { return s },
		func(s *service.Service) invoicedomain.ReminderScheduler { return s },
	),
)
