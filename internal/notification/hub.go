package notification

import (
	"context"
	"errors"
	"strings"
	"sync"

	alertdomain "github.com/smallbiznis/opspulse/internal/alert/domain"
)

const (
	// TopicAll receives every alert regardless of metric type.
	TopicAll = "*"

	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16
)

var (
	ErrHubUnavailable = errors.New("hub_unavailable")
	ErrInvalidTopic   = errors.New("invalid_topic")
)

// Hub is an in-process pub/sub of raised alerts, used by the SSE stream.
// Each topic keeps a short replay buffer; slow subscribers drop events.
type Hub struct {
	mu               sync.RWMutex
	topics           map[string]*topic
	bufferSize       int
	subscriberBuffer int
}

type topic struct {
	mu     sync.Mutex
	buffer []alertdomain.Event
	subs   map[uint64]chan alertdomain.Event
	nextID uint64
}

type Subscription struct {
	hub   *Hub
	topic string
	id    uint64
	ch    chan alertdomain.Event
	once  sync.Once
}

func NewHub() *Hub {
	return &Hub{
		topics:           make(map[string]*topic),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

func (h *Hub) Name() string { return "hub" }

// Notify publishes to the metric type topic and to TopicAll.
func (h *Hub) Notify(_ context.Context, event alertdomain.Event) error {
	if h == nil {
		return ErrHubUnavailable
	}
	h.publish(event.Alert.MetricType, event)
	h.publish(TopicAll, event)
	return nil
}

func (h *Hub) publish(name string, event alertdomain.Event) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	t := h.ensureTopic(name)

	t.mu.Lock()
	t.buffer = append(t.buffer, event)
	if len(t.buffer) > h.bufferSize {
		t.buffer = t.buffer[len(t.buffer)-h.bufferSize:]
	}
	subs := make([]chan alertdomain.Event, 0, len(t.subs))
	for _, ch := range t.subs {
		subs = append(subs, ch)
	}
	t.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a live subscription plus the replay buffer of the topic.
func (h *Hub) Subscribe(name string) (*Subscription, []alertdomain.Event, error) {
	if h == nil {
		return nil, nil, ErrHubUnavailable
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, ErrInvalidTopic
	}

	t := h.ensureTopic(name)
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	ch := make(chan alertdomain.Event, h.subscriberBuffer)
	t.subs[id] = ch
	backlog := append([]alertdomain.Event(nil), t.buffer...)
	t.mu.Unlock()

	return &Subscription{hub: h, topic: name, id: id, ch: ch}, backlog, nil
}

func (h *Hub) ensureTopic(name string) *topic {
	h.mu.RLock()
	current := h.topics[name]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.topics[name]
	if current == nil {
		current = &topic{subs: make(map[uint64]chan alertdomain.Event)}
		h.topics[name] = current
	}
	return current
}

func (h *Hub) unsubscribe(name string, id uint64) {
	h.mu.RLock()
	t := h.topics[name]
	h.mu.RUnlock()
	if t == nil {
		return
	}
	t.mu.Lock()
	delete(t.subs, id)
	t.mu.Unlock()
}

func (s *Subscription) Events() <-chan alertdomain.Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.topic, s.id)
	})
}
