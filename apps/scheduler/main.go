package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/atelierhq/atelier/internal/clock"
	"github.com/atelierhq/atelier/internal/config"
	"github.com/atelierhq/atelier/internal/invoice"
	"github.com/atelierhq/atelier/internal/latefee"
	"github.com/atelierhq/atelier/internal/logger"
	"github.com/atelierhq/atelier/internal/migration"
	"github.com/atelierhq/atelier/internal/observability"
	"github.com/atelierhq/atelier/internal/providers"
	"github.com/atelierhq/atelier/internal/recurring"
	"github.com/atelierhq/atelier/internal/reminder"
	"github.com/atelierhq/atelier/internal/scheduler"
	"github.com/atelierhq/atelier/pkg/db"
)

// The scheduler binary runs the periodic jobs without the HTTP server.
// Point it at the same database file as the api binary and use
// SCHEDULER_ENABLED_JOBS to split jobs across processes.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		providers.Module,

		// Domain services the jobs sweep over.
		invoice.Module,
		reminder.Module,
		recurring.Module,
		latefee.Module,

		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
