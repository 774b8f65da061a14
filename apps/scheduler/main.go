package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opspulse/internal/clock"
	"github.com/smallbiznis/opspulse/internal/config"
	"github.com/smallbiznis/opspulse/internal/observability"
	"github.com/smallbiznis/opspulse/internal/pushmetrics"
	"github.com/smallbiznis/opspulse/internal/queue"
	"github.com/smallbiznis/opspulse/internal/ratelimit"
	"github.com/smallbiznis/opspulse/internal/redisclient"
	"github.com/smallbiznis/opspulse/internal/scheduler"
	"github.com/smallbiznis/opspulse/pkg/db"
	"go.uber.org/fx"
)

// The scheduler only enqueues; apps/worker executes. Run several replicas
// with REDIS_ADDR set so the tick lock keeps one enqueue per tick.
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

		queue.Module,
		scheduler.Module,
		scheduler.TimersModule,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(4)
	if err != nil {
		panic(err)
	}
	return node
}
