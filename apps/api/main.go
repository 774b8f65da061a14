package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opspulse/internal/alert"
	"github.com/smallbiznis/opspulse/internal/clock"
	"github.com/smallbiznis/opspulse/internal/config"
	"github.com/smallbiznis/opspulse/internal/export"
	"github.com/smallbiznis/opspulse/internal/idempotency"
	"github.com/smallbiznis/opspulse/internal/migration"
	"github.com/smallbiznis/opspulse/internal/notification"
	"github.com/smallbiznis/opspulse/internal/observability"
	"github.com/smallbiznis/opspulse/internal/queue"
	"github.com/smallbiznis/opspulse/internal/ratelimit"
	"github.com/smallbiznis/opspulse/internal/redisclient"
	"github.com/smallbiznis/opspulse/internal/scheduler"
	"github.com/smallbiznis/opspulse/internal/seed"
	"github.com/smallbiznis/opspulse/internal/server"
	"github.com/smallbiznis/opspulse/internal/snapshot"
	"github.com/smallbiznis/opspulse/internal/storage"
	"github.com/smallbiznis/opspulse/internal/threshold"
	"github.com/smallbiznis/opspulse/internal/upstream"
	"github.com/smallbiznis/opspulse/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		redisclient.Module,
		ratelimit.Module,
		storage.Module,
		upstream.Module,

		// Producer side only: exports are enqueued here and run by apps/worker.
		queue.Module,
		scheduler.Module,

		threshold.Module,
		seed.Module,
		alert.Module,
		snapshot.Module,
		notification.Module,
		idempotency.Module,
		export.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
