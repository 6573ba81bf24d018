package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/atelierhq/atelier/internal/observability/metrics"
)

var Module = fx.Module("observability",
	fx.Provide(
		provideRegisterer,
		metrics.NewSchedulerMetrics,
		metrics.NewHTTPMetrics,
	),
)

func provideRegisterer() prometheus.Registerer {
	return prometheus.DefaultRegisterer
}
