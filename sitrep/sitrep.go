// Package sitrep renders and transmits the fixed-format situation
// report and the shared mesh JSON snapshot.
package sitrep

import (
	"fmt"
	"strings"
	"time"

	"meshmon/config"
	"meshmon/logger"
	"meshmon/registry"
	"meshmon/store"
	"meshmon/topology"
)

// Sender is the outbound text capability the report needs.
type Sender interface {
	SendText(text string, channel int, destination string) error
}

type Generator struct {
	reg      *registry.Registry
	topo     *topology.Tracker
	counters *Counters
	cfg      config.MonitorConfig

	// sleep is swapped out in tests
	sleep func(time.Duration)
}

func New(reg *registry.Registry, topo *topology.Tracker, counters *Counters, cfg config.MonitorConfig) *Generator {
	return &Generator{reg: reg, topo: topo, counters: counters, cfg: cfg, sleep: time.Sleep}
}

// nameListLimit caps the short-name roll call on line 1.
const nameListLimit = 20

// Render produces the full report, header and footer included, one
// element per transmitted message.
func (g *Generator) Render(now time.Time, localID, localShort string, reconnects int) []string {
	lines := []string{
		fmt.Sprintf("CQ CQ CQ de %s. My %s SITREP is as follows:",
			localShort, now.UTC().Format("1504Z 02 Jan 2006")),
		g.lineActiveNodes(now),
		g.lineTracks(2, "aircraft tracks", g.aircraft()),
		g.lineTracks(3, "nodes of interest", g.nodesOfInterest()),
		fmt.Sprintf("Line 4. %d packets received.", g.counters.Total()),
		g.lineUptime(now, localID, reconnects),
		"Line 6. Intentions: continuing to monitor the mesh.",
		fmt.Sprintf("de %s out", localShort),
	}
	return lines
}

// lineUptime reports the gateway's device-reported uptime. The process
// clock is only a fallback for a local node that has never sent
// telemetry.
func (g *Generator) lineUptime(now time.Time, localID string, reconnects int) string {
	up := now.Sub(g.counters.StartedAt())
	if n, err := g.reg.Get(localID); err == nil && n.UptimeSeconds != nil {
		up = time.Duration(*n.UptimeSeconds) * time.Second
	}
	return fmt.Sprintf("Line 5. Uptime %s. %d reconnections.", formatUptime(up), reconnects)
}

func (g *Generator) lineActiveNodes(now time.Time) string {
	active, err := g.reg.ActiveSince(now.Add(-g.cfg.FreshnessWindow))
	if err != nil {
		logger.Errorf("sitrep: active nodes: %v", err)
		return "Line 1. Active node count unavailable."
	}
	line := fmt.Sprintf("Line 1. %d nodes active on the mesh in the last %d minutes.",
		len(active), int(g.cfg.FreshnessWindow.Minutes()))
	if n := len(active); n > 0 && n <= nameListLimit {
		names := make([]string, 0, n)
		for _, node := range active {
			names = append(names, node.Short())
		}
		line += " " + strings.Join(names, ", ")
	}
	return line
}

func (g *Generator) aircraft() []*store.Node {
	nodes, err := g.reg.Aircraft()
	if err != nil {
		logger.Errorf("sitrep: aircraft: %v", err)
		return nil
	}
	return nodes
}

func (g *Generator) nodesOfInterest() []*store.Node {
	nodes, err := g.reg.NodesOfInterest()
	if err != nil {
		logger.Errorf("sitrep: nodes of interest: %v", err)
		return nil
	}
	return nodes
}

// lineTracks renders line 2 or 3: a headline plus lettered sub-entries
// of the form "2.A. BIGJET - 14:02 - 26 Aug 2026Z 3 hops".
func (g *Generator) lineTracks(lineNo int, label string, nodes []*store.Node) string {
	if len(nodes) == 0 {
		return fmt.Sprintf("Line %d. No %s.", lineNo, label)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Line %d. %d %s:", lineNo, len(nodes), label)
	for i, n := range nodes {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%d.%s. %s", lineNo, itemLetter(i), trackEntry(n))
	}
	return b.String()
}

func itemLetter(i int) string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return fmt.Sprintf("Z%d", i-25)
}

// trackEntry shows name, last-heard time, and the best available link
// metric, preferring hop count, then RSSI, then SNR.
func trackEntry(n *store.Node) string {
	entry := n.Short()
	if n.LastHeard != nil {
		entry += " - " + n.LastHeard.UTC().Format("15:04 - 02 Jan 2006") + "Z"
	} else {
		entry += " - never heard"
	}
	switch {
	case n.HopsAway != nil:
		entry += fmt.Sprintf(" %d hops", *n.HopsAway)
	case n.RSSI != nil:
		entry += fmt.Sprintf(" RSSI %d", *n.RSSI)
	case n.SNR != nil:
		entry += fmt.Sprintf(" SNR %.1f", *n.SNR)
	}
	return entry
}

func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%d Days, %d Hours, %d Minutes, %d Seconds", days, hours, minutes, seconds)
}

// Broadcast transmits the lines in order with the configured pause
// between them. A failed send aborts the remainder of this report only;
// the error is returned for logging, never escalated.
func (g *Generator) Broadcast(s Sender, lines []string, channel int, destination string) error {
	for i, line := range lines {
		if i > 0 {
			g.sleep(g.cfg.LineDelay)
		}
		if err := s.SendText(line, channel, destination); err != nil {
			return fmt.Errorf("sitrep: send line %d: %w", i+1, err)
		}
	}
	return nil
}
