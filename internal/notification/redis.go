package notification

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"
	alertdomain "github.com/smallbiznis/opspulse/internal/alert/domain"
)

// RedisPublisher publishes alerts as JSON on a pub/sub channel so processes
// other than the raiser can fan them out.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	if client == nil || channel == "" {
		return nil
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Notify(ctx context.Context, event alertdomain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}
