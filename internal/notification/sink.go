package notification

import (
	"context"
	"errors"
	"fmt"

	alertdomain "github.com/smallbiznis/opspulse/internal/alert/domain"
	"go.uber.org/zap"
)

// Sink delivers alert events to one destination.
type Sink interface {
	Name() string
	Notify(ctx context.Context, event alertdomain.Event) error
}

// Fanout delivers every event to all sinks. One failing sink does not stop
// the others.
type Fanout struct {
	sinks []Sink
	log   *zap.Logger
}

func NewFanout(log *zap.Logger, sinks ...Sink) *Fanout {
	active := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return &Fanout{sinks: active, log: log.Named("notification.fanout")}
}

func (f *Fanout) Notify(ctx context.Context, event alertdomain.Event) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Notify(ctx, event); err != nil {
			f.log.Warn("notification.sink_failed",
				zap.String("sink", s.Name()),
				zap.String("alert_id", event.Alert.ID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Sinks() []string {
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.Name())
	}
	return names
}
