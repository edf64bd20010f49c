package topology

import (
	"sync"
	"time"

	"meshmon/store"
)

// TracePolicy throttles outgoing traceroute requests. Zero-hop nodes are
// never traced (the direct link already tells us everything), known-hop
// nodes are re-traced on a long interval, and a global minimum spacing
// applies across every trigger so traces cannot storm the mesh.
type TracePolicy struct {
	mu           sync.Mutex
	minSpacing   time.Duration
	retraceAfter time.Duration
	lastAny      time.Time
	lastByNode   map[string]time.Time
}

func NewTracePolicy(minSpacing, retraceAfter time.Duration) *TracePolicy {
	return &TracePolicy{
		minSpacing:   minSpacing,
		retraceAfter: retraceAfter,
		lastByNode:   make(map[string]time.Time),
	}
}

// ShouldTrace decides whether the node is due for a traceroute now.
func (p *TracePolicy) ShouldTrace(n *store.Node, now time.Time) bool {
	if n.HopsAway != nil && *n.HopsAway == 0 {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.lastAny.IsZero() && now.Sub(p.lastAny) < p.minSpacing {
		return false
	}

	if n.HopsAway == nil {
		return true
	}
	last, traced := p.lastByNode[n.ID]
	if !traced {
		return true
	}
	return now.Sub(last) >= p.retraceAfter
}

// RecordTrace marks a trace as sent, starting both clocks.
func (p *TracePolicy) RecordTrace(nodeID string, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastAny = now
	p.lastByNode[nodeID] = now
}

// Seed restores a node's last-trace time, typically from the traceroute
// table on startup.
func (p *TracePolicy) Seed(nodeID string, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastByNode[nodeID] = at
}
