// Package metrics exposes the monitor's prometheus instrumentation.
// Everything registers on the default registry; www serves it at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshmon_packets_received_total",
		Help: "Packets received from the mesh by port number",
	}, []string{"port"})

	CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshmon_commands_handled_total",
		Help: "Operator commands handled by verb",
	}, []string{"command"})

	SendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshmon_sends_total",
		Help: "Outbound mesh messages by result",
	}, []string{"result"}) // "sent", "queued", "failed"

	TraceRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshmon_trace_requests_total",
		Help: "Traceroute requests transmitted",
	})

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshmon_link_reconnects_total",
		Help: "Radio link reconnections since start",
	})

	LinkUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meshmon_link_up",
		Help: "Whether the radio link is currently up",
	})

	SitrepsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshmon_sitreps_sent_total",
		Help: "Situation reports broadcast to the mesh",
	})

	NodesKnown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meshmon_nodes_known",
		Help: "Nodes currently in the registry",
	})

	SourceItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshmon_source_items_total",
		Help: "New or changed items announced per polled source",
	}, []string{"source"})
)
