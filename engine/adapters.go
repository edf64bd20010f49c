package engine

// busEmitter bridges the dispatch package's emitter interface to the EventBus.
type busEmitter struct {
	bus *EventBus
}

func (e *busEmitter) EmitNodeNew(nodeID, name string) {
	e.bus.Emit(Event{Type: EventNodeNew, Payload: NodeNewEvent{NodeID: nodeID, Name: name}})
}

func (e *busEmitter) EmitNodeNameChanged(nodeID, oldName, newName string) {
	e.bus.Emit(Event{Type: EventNodeNameChanged, Payload: NodeNameChangedEvent{
		NodeID:  nodeID,
		OldName: oldName,
		NewName: newName,
	}})
}

func (e *busEmitter) EmitNodeRemoved(nodeID string) {
	e.bus.Emit(Event{Type: EventNodeRemoved, Payload: NodeRemovedEvent{NodeID: nodeID}})
}

func (e *busEmitter) EmitAircraftDetected(nodeID, name string, altitude int) {
	e.bus.Emit(Event{Type: EventAircraftDetected, Payload: AircraftDetectedEvent{
		NodeID:   nodeID,
		Name:     name,
		Altitude: altitude,
	}})
}

func (e *busEmitter) EmitLowBattery(nodeID, name string, percent int) {
	e.bus.Emit(Event{Type: EventLowBattery, Payload: LowBatteryEvent{
		NodeID:  nodeID,
		Name:    name,
		Percent: percent,
	}})
}

func (e *busEmitter) EmitTracerouteProcessed(originator, destination string, hopCount int) {
	e.bus.Emit(Event{Type: EventTracerouteProcessed, Payload: TracerouteProcessedEvent{
		Originator:  originator,
		Destination: destination,
		HopCount:    hopCount,
	}})
}

func (e *busEmitter) EmitCommand(command, fromID string) {
	e.bus.Emit(Event{Type: EventCommand, Payload: CommandEvent{Command: command, FromID: fromID}})
}

// linkNotifier forwards supervisor callbacks into the engine's control
// channel so all follow-up work happens on the run loop goroutine.
type linkNotifier struct {
	e *Engine
}

func (n *linkNotifier) LinkUp(reconnect bool) {
	select {
	case n.e.linkQ <- linkChange{up: true, reconnect: reconnect}:
	default:
	}
}

func (n *linkNotifier) LinkSilent(silentTicks int) {
	// The silence warning itself is logged by the supervisor; LinkDown
	// follows immediately and carries the state change.
}

func (n *linkNotifier) LinkDown() {
	select {
	case n.e.linkQ <- linkChange{up: false}:
	default:
	}
}
