// Package otlp holds the exporter settings shared by the trace and metric
// pipelines.
package otlp

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
)

type Transport int

const (
	GRPC Transport = iota
	HTTP
)

func (t Transport) String() string {
	if t == HTTP {
		return "http/protobuf"
	}
	return "grpc"
}

// ParseTransport accepts the OTEL_EXPORTER_OTLP_PROTOCOL spellings. Empty means gRPC.
func ParseTransport(protocol string) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc", "grpc/protobuf":
		return GRPC, nil
	case "http", "http/protobuf":
		return HTTP, nil
	default:
		return GRPC, fmt.Errorf("otlp: unsupported protocol %q", protocol)
	}
}

// Resource describes the running binary. Blank version or environment are left out.
func Resource(ctx context.Context, service, version, environment string) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{attribute.String("service.name", defaultService(service))}
	if v := strings.TrimSpace(version); v != "" {
		attrs = append(attrs, attribute.String("service.version", v))
	}
	if env := strings.TrimSpace(environment); env != "" {
		attrs = append(attrs, attribute.String("deployment.environment", env))
	}
	return resource.New(ctx, resource.WithAttributes(attrs...), resource.WithHost())
}

func defaultService(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return "opspulse"
}
