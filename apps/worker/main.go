package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opspulse/internal/alert"
	"github.com/smallbiznis/opspulse/internal/clock"
	"github.com/smallbiznis/opspulse/internal/config"
	"github.com/smallbiznis/opspulse/internal/export"
	"github.com/smallbiznis/opspulse/internal/idempotency"
	"github.com/smallbiznis/opspulse/internal/notification"
	"github.com/smallbiznis/opspulse/internal/observability"
	"github.com/smallbiznis/opspulse/internal/pushmetrics"
	"github.com/smallbiznis/opspulse/internal/queue"
	"github.com/smallbiznis/opspulse/internal/ratelimit"
	"github.com/smallbiznis/opspulse/internal/redisclient"
	"github.com/smallbiznis/opspulse/internal/scheduler"
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
		clock.Module,
		redisclient.Module,
		pushmetrics.Module,
		ratelimit.Module,
		storage.Module,
		upstream.Module,

		queue.Module,
		queue.WorkerModule,
		scheduler.Module,

		threshold.Module,
		alert.Module,
		alert.JobModule,
		snapshot.Module,
		snapshot.JobModule,
		notification.Module,
		idempotency.Module,
		export.Module,
		export.JobModule,

		// No server module!
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}
