package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}

type actorKey struct{}

type actor struct {
	kind string
	id   string
}

// WithRequestID stores the inbound request id for log correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey{}, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithActor records who triggered the work (user, system job, api caller).
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, actor{
		kind: strings.TrimSpace(actorType),
		id:   strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	if v, ok := ctx.Value(actorKey{}).(actor); ok {
		return v.kind, v.id
	}
	return "", ""
}

type jobKey struct{}

// Job identifies the queue job a unit of work runs under.
type Job struct {
	Queue   string
	ID      string
	Attempt int
}

func WithJob(ctx context.Context, job Job) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, jobKey{}, job)
}

func JobFromContext(ctx context.Context) (Job, bool) {
	if ctx == nil {
		return Job{}, false
	}
	job, ok := ctx.Value(jobKey{}).(Job)
	return job, ok
}
