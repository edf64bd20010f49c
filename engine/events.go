package engine

const (
	EventNodeNew EventType = iota + 1
	EventNodeNameChanged
	EventNodeRemoved
	EventAircraftDetected
	EventLowBattery
	EventTracerouteProcessed
	EventCommand
	EventLinkUp
	EventLinkDown
	EventSitrepSent
	EventSourceItem
)

// eventName maps an event type to its wire name for export.
func eventName(t EventType) string {
	switch t {
	case EventNodeNew:
		return "node.new"
	case EventNodeNameChanged:
		return "node.renamed"
	case EventNodeRemoved:
		return "node.removed"
	case EventAircraftDetected:
		return "node.aircraft"
	case EventLowBattery:
		return "node.low_battery"
	case EventTracerouteProcessed:
		return "topology.traceroute"
	case EventCommand:
		return "command"
	case EventLinkUp:
		return "link.up"
	case EventLinkDown:
		return "link.down"
	case EventSitrepSent:
		return "sitrep.sent"
	case EventSourceItem:
		return "source.item"
	}
	return "unknown"
}

// --- Event payloads ---

type NodeNewEvent struct {
	NodeID string
	Name   string
}

type NodeNameChangedEvent struct {
	NodeID  string
	OldName string
	NewName string
}

type NodeRemovedEvent struct {
	NodeID string
}

type AircraftDetectedEvent struct {
	NodeID   string
	Name     string
	Altitude int
}

type LowBatteryEvent struct {
	NodeID  string
	Name    string
	Percent int
}

type TracerouteProcessedEvent struct {
	Originator  string
	Destination string
	HopCount    int
}

type CommandEvent struct {
	Command string
	FromID  string
}

type LinkEvent struct {
	Reconnect bool
	Detail    string
}

type SitrepSentEvent struct {
	Lines int
}

type SourceItemEvent struct {
	SourceID string
	Title    string
	IsNew    bool
}
