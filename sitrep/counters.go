package sitrep

import (
	"sync"
	"time"
)

// Counters tracks received packets per port plus process start time.
type Counters struct {
	mu        sync.Mutex
	counts    map[string]int
	startedAt time.Time
}

func NewCounters(startedAt time.Time) *Counters {
	return &Counters{counts: make(map[string]int), startedAt: startedAt}
}

func (c *Counters) Inc(port string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[port]++
}

// Total sums every per-port counter.
func (c *Counters) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for _, v := range c.counts {
		n += v
	}
	return n
}

func (c *Counters) Snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

func (c *Counters) StartedAt() time.Time { return c.startedAt }
