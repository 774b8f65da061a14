package cache

import (
	"sync"
	"time"
)

// Cache is a concurrency-safe key/value store with per-entry expiry.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	// SetIfAbsent stores value only when key is missing or expired and reports
	// the value now held for key.
	SetIfAbsent(key K, value V, ttl time.Duration) (V, bool)
	Delete(key K)
	Len() int
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type TTLCache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]entry[V]
	now     func() time.Time
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithNow overrides the time source used for expiry checks.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func NewTTLCache[K comparable, V any](opts ...Option) *TTLCache[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTLCache[K, V]{
		entries: make(map[K]entry[V]),
		now:     o.now,
	}
}

func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.expired(e) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value; a non-positive ttl keeps the entry until it is deleted.
func (c *TTLCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = c.newEntry(value, ttl)
}

func (c *TTLCache[K, V]) SetIfAbsent(key K, value V, ttl time.Duration) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && !c.expired(e) {
		return e.value, false
	}
	c.entries[key] = c.newEntry(value, ttl)
	return value, true
}

func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len counts live entries and evicts expired ones.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			continue
		}
		n++
	}
	return n
}

func (c *TTLCache[K, V]) newEntry(value V, ttl time.Duration) entry[V] {
	e := entry[V]{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	return e
}

func (c *TTLCache[K, V]) expired(e entry[V]) bool {
	if e.expiresAt.IsZero() {
		return false
	}
	return !c.now().Before(e.expiresAt)
}

var _ Cache[string, int] = (*TTLCache[string, int])(nil)
