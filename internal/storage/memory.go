package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/smallbiznis/opspulse/internal/clock"
)

// MemoryStore keeps objects in process, for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	clock   clock.Clock
}

type Object struct {
	ContentType string
	Data        []byte
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &MemoryStore{objects: make(map[string]Object), clock: clk}
}

func (s *MemoryStore) Upload(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return n, err
	}
	if err := ctx.Err(); err != nil {
		return n, err
	}
	s.mu.Lock()
	s.objects[key] = Object{ContentType: contentType, Data: buf.Bytes()}
	s.mu.Unlock()
	return n, nil
}

func (s *MemoryStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return "", ErrObjectNotFound
	}
	expires := s.clock.Now().Add(ttl).Unix()
	return fmt.Sprintf("memory://exports/%s?expires=%d", url.PathEscape(key), expires), nil
}

func (s *MemoryStore) Get(key string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj, ok
}
