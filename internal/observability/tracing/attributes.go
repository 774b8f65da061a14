package tracing

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

const maxAttributeLength = 256

var blockedAttributeKeys = map[attribute.Key]struct{}{
	"authorization":   {},
	"api_token":       {},
	"password":        {},
	"smtp_password":   {},
	"idempotency_key": {},
}

var credentialPattern = regexp.MustCompile(`(?i)(bearer\s+|token=|password=)[^\s&]+`)

// ExtractContext reads propagation headers into ctx using the global propagator.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// SafeAttributes drops credential-bearing keys and truncates long string values.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := blockedAttributeKeys[attribute.Key(strings.ToLower(string(attr.Key)))]; blocked {
			continue
		}
		if attr.Value.Type() == attribute.STRING {
			attr = attribute.String(string(attr.Key), truncate(attr.Value.AsString()))
		}
		out = append(out, attr)
	}
	return out
}

// SafeError returns an error whose message has credentials redacted.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return nil
	}
	return errors.New(truncate(credentialPattern.ReplaceAllString(msg, "${1}[redacted]")))
}

func truncate(value string) string {
	if len(value) <= maxAttributeLength {
		return value
	}
	return value[:maxAttributeLength]
}
