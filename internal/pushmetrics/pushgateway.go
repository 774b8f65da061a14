package pushmetrics

import (
	"context"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushgatewayPusher replaces its group on every push, so gauges that drop to
// zero rows disappear from the gateway too.
type PushgatewayPusher struct {
	endpoint string
	job      string
	grouping map[string]string
}

func NewPushgatewayPusher(endpoint, job string, grouping map[string]string) *PushgatewayPusher {
	return &PushgatewayPusher{
		endpoint: strings.TrimSpace(endpoint),
		job:      strings.TrimSpace(job),
		grouping: grouping,
	}
}

func (p *PushgatewayPusher) Push(ctx context.Context, registry *prometheus.Registry) error {
	if p == nil || registry == nil {
		return nil
	}
	if p.endpoint == "" || p.job == "" {
		return errors.New("pushgateway endpoint and job are required")
	}

	pusher := push.New(p.endpoint, p.job).Gatherer(registry)
	for name, value := range p.grouping {
		if name, value = strings.TrimSpace(name), strings.TrimSpace(value); name != "" && value != "" {
			pusher = pusher.Grouping(name, value)
		}
	}
	return pusher.PushContext(ctx)
}
