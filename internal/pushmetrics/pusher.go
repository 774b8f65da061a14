// Package pushmetrics ships queue, export and alert gauges from processes
// that expose no /metrics endpoint (worker, scheduler) to a Pushgateway or a
// Prometheus remote_write receiver.
package pushmetrics

import (
	"context"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/opspulse/internal/config"
	"go.uber.org/zap"
)

const (
	ExporterRemoteWrite = "prometheus_remote_write"
	ExporterPushgateway = "prometheus_pushgateway"

	pushTimeout = 5 * time.Second
)

// Pusher ships one gathered registry to a remote collector.
type Pusher interface {
	Push(ctx context.Context, registry *prometheus.Registry) error
}

// NewPusher returns nil when pushing is off. A bad endpoint or exporter
// disables pushing with a warning instead of failing startup.
func NewPusher(cfg config.Config, log *zap.Logger) Pusher {
	if log == nil {
		log = zap.NewNop()
	}
	pm := cfg.PushMetrics
	endpoint := strings.TrimSpace(pm.Endpoint)
	if endpoint == "" {
		return nil
	}
	labels := map[string]string{
		"environment": strings.TrimSpace(cfg.Environment),
		"instance":    instanceName(),
	}

	switch pm.Exporter {
	case ExporterPushgateway, "":
		return NewPushgatewayPusher(endpoint, cfg.AppName, labels)
	case ExporterRemoteWrite:
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			log.Warn("push metrics disabled", zap.String("endpoint", endpoint), zap.Error(err))
			return nil
		}
		labels["job"] = strings.TrimSpace(cfg.AppName)
		return NewRemoteWritePusher(endpoint, pm.AuthToken, labels)
	default:
		log.Warn("push metrics disabled", zap.String("exporter", pm.Exporter))
		return nil
	}
}

func instanceName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown"
}
