package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const keyTickWindow = "opspulse:scheduler:tick:%s:%d"

var (
	ErrInvalidTimer    = errors.New("timer name is empty")
	ErrInvalidInterval = errors.New("timer interval must be positive")
)

// TickGuard splits wall time into interval-sized windows and lets exactly one
// scheduler replica claim each window per timer. A nil guard grants every claim.
type TickGuard struct {
	client *redis.Client
	owner  string
	now    func() time.Time
}

func NewTickGuard(client *redis.Client) *TickGuard {
	if client == nil {
		return nil
	}
	host, _ := os.Hostname()
	if host == "" {
		host = "scheduler"
	}
	return &TickGuard{
		client: client,
		owner:  host + "/" + uuid.NewString(),
		now:    time.Now,
	}
}

// Claim reports whether this replica owns the current window of timer. The
// claim key outlives the window so a late replica cannot take it again.
func (g *TickGuard) Claim(ctx context.Context, timer string, interval time.Duration) (bool, error) {
	if g == nil || g.client == nil {
		return true, nil
	}
	timer = strings.TrimSpace(timer)
	if timer == "" {
		return false, ErrInvalidTimer
	}
	if interval <= 0 {
		return false, ErrInvalidInterval
	}
	return g.client.SetNX(ctx, windowKey(timer, g.now(), interval), g.owner, 2*interval).Result()
}

func windowKey(timer string, now time.Time, interval time.Duration) string {
	return fmt.Sprintf(keyTickWindow, timer, now.UTC().Truncate(interval).Unix())
}
