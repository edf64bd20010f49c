package dispatch

// Emitter is the interface adapters must satisfy to bridge dispatch events to the engine.
type Emitter interface {
	EmitNodeNew(nodeID, name string)
	EmitNodeNameChanged(nodeID, oldName, newName string)
	EmitNodeRemoved(nodeID string)
	EmitAircraftDetected(nodeID, name string, altitude int)
	EmitLowBattery(nodeID, name string, percent int)
	EmitTracerouteProcessed(originator, destination string, hopCount int)
	EmitCommand(command, fromID string)
}

// Sender queues outbound mesh traffic. The engine owns transmission,
// pacing and the outbox; dispatch only decides what to say.
type Sender interface {
	Reply(text string, channel int, destination string)
	NotifyAdmin(text string)
	RequestTrace(nodeID string)
	SendNodeInfo(destination string)
	TriggerSitrep()
}
