package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/atelierhq/atelier/internal/client"
	"github.com/atelierhq/atelier/internal/clock"
	"github.com/atelierhq/atelier/internal/config"
	"github.com/atelierhq/atelier/internal/invoice"
	"github.com/atelierhq/atelier/internal/latefee"
	"github.com/atelierhq/atelier/internal/logger"
	"github.com/atelierhq/atelier/internal/migration"
	"github.com/atelierhq/atelier/internal/observability"
	"github.com/atelierhq/atelier/internal/overview"
	"github.com/atelierhq/atelier/internal/project"
	"github.com/atelierhq/atelier/internal/providers"
	"github.com/atelierhq/atelier/internal/recurring"
	"github.com/atelierhq/atelier/internal/reminder"
	"github.com/atelierhq/atelier/internal/scheduler"
	"github.com/atelierhq/atelier/internal/server"
	"github.com/atelierhq/atelier/pkg/db"
)

// The api binary is the monolith: REST API plus the in-process scheduler.
// Set SCHEDULER_ENABLED=false to run it API-only next to a dedicated
// scheduler process.
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

		client.Module,
		project.Module,
		invoice.Module,
		reminder.Module,
		recurring.Module,
		latefee.Module,
		overview.Module,

		scheduler.Module,
		server.Module,
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
