package engine

import (
	"context"

	"meshmon/logger"
	"meshmon/metrics"
)

func (e *Engine) wireEventHandlers(ctx context.Context) {
	// Command metrics
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(CommandEvent)
		metrics.CommandsHandled.WithLabelValues(ev.Command).Inc()
	}, EventCommand)

	// Keep the redis mirror in step with node-level changes.
	if e.mirror != nil {
		e.Events.SubscribeTypes(func(evt Event) {
			id := nodeIDOf(evt)
			if id == "" {
				return
			}
			n, err := e.reg.Get(id)
			if err != nil {
				logger.Warnf("engine: mirror lookup %s: %v", id, err)
				return
			}
			if err := e.mirror.MirrorNode(n); err != nil {
				logger.Warnf("engine: mirror %s: %v", id, err)
			}
		}, EventNodeNew, EventNodeNameChanged, EventAircraftDetected, EventLowBattery)

		// Removal drops the cache entry rather than refreshing it.
		e.Events.SubscribeTypes(func(evt Event) {
			ev := evt.Payload.(NodeRemovedEvent)
			if err := e.mirror.RemoveNode(ev.NodeID); err != nil {
				logger.Warnf("engine: mirror remove %s: %v", ev.NodeID, err)
			}
		}, EventNodeRemoved)
	}

	// Export every event when a publisher is configured.
	if e.exporter != nil {
		e.Events.Subscribe(func(evt Event) {
			if err := e.exporter.Publish(ctx, eventName(evt.Type), evt.Payload); err != nil {
				logger.Warnf("engine: export %s: %v", eventName(evt.Type), err)
			}
		})
	}
}

func nodeIDOf(evt Event) string {
	switch p := evt.Payload.(type) {
	case NodeNewEvent:
		return p.NodeID
	case NodeNameChangedEvent:
		return p.NodeID
	case AircraftDetectedEvent:
		return p.NodeID
	case LowBatteryEvent:
		return p.NodeID
	}
	return ""
}
