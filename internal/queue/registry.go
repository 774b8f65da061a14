package queue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Handler processes jobs of one queue. Returning an error schedules a retry.
type Handler interface {
	Queue() string
	Handle(ctx context.Context, job *Job) error
}

// DeadLetterHandler is implemented by handlers that need to react when a
// job exhausts its attempts.
type DeadLetterHandler interface {
	OnDeadLetter(ctx context.Context, job *Job, cause error)
}

// HandlerFunc adapts a function into a Handler.
type HandlerFunc struct {
	Name string
	Fn   func(ctx context.Context, job *Job) error
}

func (h HandlerFunc) Queue() string { return h.Name }

func (h HandlerFunc) Handle(ctx context.Context, job *Job) error { return h.Fn(ctx, job) }

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[string]Handler)}
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	name := strings.TrimSpace(h.Queue())
	if name == "" {
		return ErrInvalidQueue
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("handler already registered for queue=%s", name)
	}
	r.handlers[name] = h
	return nil
}

func (r *Registry) Get(queue string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[queue]
	return h, ok
}

// Queues returns the registered queue names in stable order.
func (r *Registry) Queues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
