package testutil

import "sync"

// Counter is a thread-safe call counter.
//
// It can be reset so the same scenario can run several times with
// identical counts.
type Counter struct {
	mu sync.Mutex
	n  int64
}

// NewCounter creates a counter starting at 0.
func NewCounter() *Counter {
	return &Counter{}
}

// Next increments the counter and returns the new value.
// The first call returns 1.
func (c *Counter) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

// Current returns the count without incrementing.
func (c *Counter) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Reset sets the count back to 0.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
