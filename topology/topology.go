// Package topology turns traceroute observations into a persistent edge
// graph and decides when nodes are worth re-tracing.
package topology

import (
	"fmt"
	"strings"
	"time"

	"meshmon/radio"
	"meshmon/store"
)

const (
	ConnTracerouteTo   = "traceroute_to"
	ConnTracerouteBack = "traceroute_back"
	ConnDirect         = "direct"
)

type Tracker struct {
	db            *store.DB
	recencyWindow time.Duration
}

func New(db *store.DB, recencyWindow time.Duration) *Tracker {
	return &Tracker{db: db, recencyWindow: recencyWindow}
}

// IngestResult summarizes one processed traceroute.
type IngestResult struct {
	Originator  string
	Destination string
	HopCount    int
	Summary     string
}

// IngestTraceroute records the edges and the immutable trace record for
// one traceroute packet.
//
// Direction matters: a response carrying snr_back means the local node
// was the original requester, so the packet's from/to are the traced
// node and the requester respectively and the roles swap relative to an
// overheard request. Getting this backwards silently flips the graph.
func (t *Tracker) IngestTraceroute(pkt radio.PacketEvent, now time.Time) (*IngestResult, error) {
	if pkt.Trace == nil {
		return nil, fmt.Errorf("topology: packet has no traceroute payload")
	}
	trace := pkt.Trace

	originator, traced := pkt.FromID, pkt.ToID
	if len(trace.SNRBack) > 0 {
		originator, traced = pkt.ToID, pkt.FromID
	}

	routeTo := append([]string{originator}, trace.Route...)
	routeBack := append(append([]string(nil), trace.RouteBack...), originator)

	for i := 0; i+1 < len(routeTo); i++ {
		var snr *float64
		if i < len(trace.SNRTowards) {
			v := trace.SNRTowards[i]
			snr = &v
		}
		// hop_count is the edge's position within this route, 1-based.
		hop := i + 1
		if err := t.db.UpsertConnection(routeTo[i], routeTo[i+1], ConnTracerouteTo, snr, &hop, now); err != nil {
			return nil, err
		}
	}
	if len(trace.SNRBack) > 0 {
		for i := 0; i+1 < len(routeBack); i++ {
			var snr *float64
			if i < len(trace.SNRBack) {
				v := trace.SNRBack[i]
				snr = &v
			}
			hop := i + 1
			if err := t.db.UpsertConnection(routeBack[i], routeBack[i+1], ConnTracerouteBack, snr, &hop, now); err != nil {
				return nil, err
			}
		}
	}

	hopCount := len(routeTo) + len(routeBack) - 1
	rec := &store.TracerouteRecord{
		Originator:  originator,
		Destination: traced,
		RouteTo:     routeTo,
		RouteBack:   routeBack,
		SNRTo:       trace.SNRTowards,
		SNRBack:     trace.SNRBack,
		HopCount:    hopCount,
	}
	if err := t.db.InsertTraceroute(rec); err != nil {
		return nil, err
	}

	return &IngestResult{
		Originator:  originator,
		Destination: traced,
		HopCount:    hopCount,
		Summary:     routeSummary(routeTo, trace.SNRTowards),
	}, nil
}

// routeSummary renders "A -> B (5.0 dB) -> C (6.0 dB)" for admin
// notifications.
func routeSummary(route []string, snr []float64) string {
	var b strings.Builder
	for i, hop := range route {
		if i > 0 {
			b.WriteString(" -> ")
		}
		b.WriteString(hop)
		if i > 0 && i-1 < len(snr) {
			fmt.Fprintf(&b, " (%.1f dB)", snr[i-1])
		}
	}
	return b.String()
}

// RecordDirectLink notes a zero-hop neighbor sighting as a direct edge.
func (t *Tracker) RecordDirectLink(localID, neighborID string, snr *float64, now time.Time) error {
	hop := 0
	return t.db.UpsertConnection(localID, neighborID, ConnDirect, snr, &hop, now)
}

// EdgesSince returns edges seen within the window ending now.
func (t *Tracker) EdgesSince(now time.Time, window time.Duration) ([]*store.Connection, error) {
	return t.db.ListConnectionsSince(now.Add(-window))
}

// RecentEdges applies the tracker's configured recency window.
func (t *Tracker) RecentEdges(now time.Time) ([]*store.Connection, error) {
	return t.EdgesSince(now, t.recencyWindow)
}

// Stats aggregates a node's recent connectivity.
type Stats struct {
	NodeID       string
	DirectLinks  int
	AverageSNR   *float64
	LastActivity *time.Time
}

func (t *Tracker) ConnectivityStats(nodeID string, now time.Time) (*Stats, error) {
	conns, err := t.db.ListNodeConnections(nodeID, now.Add(-t.recencyWindow))
	if err != nil {
		return nil, err
	}
	s := &Stats{NodeID: nodeID, DirectLinks: len(conns)}
	var sum float64
	var n int
	for _, c := range conns {
		if c.SNR != nil {
			sum += *c.SNR
			n++
		}
		if s.LastActivity == nil || c.LastSeen.After(*s.LastActivity) {
			seen := c.LastSeen
			s.LastActivity = &seen
		}
	}
	if n > 0 {
		avg := sum / float64(n)
		s.AverageSNR = &avg
	}
	return s, nil
}
