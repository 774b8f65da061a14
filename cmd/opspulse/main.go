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
	"github.com/smallbiznis/opspulse/internal/pushmetrics"
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

// Single process: HTTP API, worker pool and scheduler timers together.
func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		redisclient.Module,
		pushmetrics.Module,
		ratelimit.Module,
		storage.Module,
		upstream.Module,

		// Pipeline
		queue.Module,
		queue.WorkerModule,
		scheduler.Module,
		scheduler.TimersModule,

		// Functional Domains
		threshold.Module,
		seed.Module,
		alert.Module,
		alert.JobModule,
		snapshot.Module,
		snapshot.JobModule,
		notification.Module,
		idempotency.Module,
		export.Module,
		export.JobModule,

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
