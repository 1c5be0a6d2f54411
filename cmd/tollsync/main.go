package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/fleetops/tollsync/internal/config"
	"github.com/fleetops/tollsync/internal/migration"
	"github.com/fleetops/tollsync/internal/observability"
	"github.com/fleetops/tollsync/internal/server"
	"github.com/fleetops/tollsync/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		// Domain modules wire through server.Module
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
