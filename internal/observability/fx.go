package observability

import (
	"github.com/smallbiznis/opspulse/internal/observability/logger"
	"github.com/smallbiznis/opspulse/internal/observability/metrics"
	"github.com/smallbiznis/opspulse/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		splitConfig,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.PipelineWithConfig,
	),
	// Force the tracer and pipeline collectors even when no handler asks for them.
	fx.Invoke(func(*sdktrace.TracerProvider, *metrics.PipelineMetrics) {}),
)

func splitConfig(cfg Config) (logger.Config, tracing.Config, metrics.Config) {
	t := cfg.Telemetry
	logCfg := logger.Config{
		ServiceName:         cfg.ServiceName,
		Environment:         cfg.Environment,
		Version:             cfg.Version,
		Level:               t.LogLevel,
		Format:              t.LogFormat,
		Debug:               cfg.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: cfg.Debug(),
	}
	traceCfg := tracing.Config{
		Enabled:          t.OtelEnabled,
		ServiceName:      cfg.ServiceName,
		ServiceVersion:   cfg.Version,
		Environment:      cfg.Environment,
		ExporterEndpoint: t.OtelEndpoint,
		ExporterProtocol: t.OtelProtocol,
		SamplingRatio:    t.SamplingRatio,
	}
	meterCfg := metrics.Config{
		Enabled:          t.OtelEnabled,
		ExporterEndpoint: t.OtelEndpoint,
		ExporterProtocol: t.OtelProtocol,
		ServiceName:      cfg.ServiceName,
		Version:          cfg.Version,
		Environment:      cfg.Environment,
	}
	return logCfg, traceCfg, meterCfg
}
