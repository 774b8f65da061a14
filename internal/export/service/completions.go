package service

import "sync"

// completions wakes in-process waiters when a job reaches a terminal state.
// Waiters in other processes rely on polling.
type completions struct {
	mu      sync.Mutex
	waiters map[string]map[chan struct{}]struct{}
}

func newCompletions() *completions {
	return &completions{waiters: make(map[string]map[chan struct{}]struct{})}
}

func (c *completions) wait(jobID string) (<-chan struct{}, func()) {
	ch := make(chan struct{})
	c.mu.Lock()
	set := c.waiters[jobID]
	if set == nil {
		set = make(map[chan struct{}]struct{})
		c.waiters[jobID] = set
	}
	set[ch] = struct{}{}
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if set := c.waiters[jobID]; set != nil {
			delete(set, ch)
			if len(set) == 0 {
				delete(c.waiters, jobID)
			}
		}
	}
}

func (c *completions) done(jobID string) {
	c.mu.Lock()
	set := c.waiters[jobID]
	delete(c.waiters, jobID)
	c.mu.Unlock()
	for ch := range set {
		close(ch)
	}
}
