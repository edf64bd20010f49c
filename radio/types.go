package radio

import "time"

// PortNum identifies the application payload of a packet.
type PortNum string

const (
	PortText         PortNum = "TEXT_MESSAGE_APP"
	PortPosition     PortNum = "POSITION_APP"
	PortNodeInfo     PortNum = "NODEINFO_APP"
	PortTelemetry    PortNum = "TELEMETRY_APP"
	PortTraceroute   PortNum = "TRACEROUTE_APP"
	PortNeighborInfo PortNum = "NEIGHBORINFO_APP"
	PortWaypoint     PortNum = "WAYPOINT_APP"
	PortRouting      PortNum = "ROUTING_APP"
	PortRangeTest    PortNum = "RANGE_TEST_APP"
)

// Broadcast is the destination id of channel-wide packets.
const Broadcast = "^all"

// PacketEvent is one decoded inbound packet. Exactly one of the typed
// payload pointers is set, matching Port; Encrypted marks packets whose
// payload the gateway could not decode.
type PacketEvent struct {
	FromID    string
	ToID      string
	FromNum   uint32
	ToNum     uint32
	Channel   int
	Port      PortNum
	Encrypted bool
	RxTime    time.Time
	RxSNR     *float64
	RxRSSI    *int
	HopsAway  *int

	Text      string
	Position  *Position
	NodeInfo  *NodeInfo
	Telemetry *DeviceMetrics
	Trace     *TracePayload
}

// Position as reported by a node. LocationSource distinguishes GPS fixes
// from manually pinned locations.
type Position struct {
	Latitude       float64
	Longitude      float64
	Altitude       *int
	LocationSource string
}

// LocManual marks an operator-pinned position rather than a GPS fix.
const LocManual = "LOC_MANUAL"

type NodeInfo struct {
	ID        string
	ShortName string
	LongName  string
	MacAddr   string
	HWModel   string
	Role      string
}

type DeviceMetrics struct {
	BatteryLevel       *int
	Voltage            *float64
	ChannelUtilization *float64
	AirUtilTx          *float64
	UptimeSeconds      *int64
}

// TracePayload is a traceroute response. Route holds node ids from the
// requester toward the traced node; RouteBack holds the return path.
// The SNR slices align with adjacent pairs and may be shorter than the
// route when a hop went unmeasured.
type TracePayload struct {
	Route      []string
	RouteBack  []string
	SNRTowards []float64
	SNRBack    []float64
}

// NodeRecord is one entry of the gateway's node database snapshot.
type NodeRecord struct {
	ID        string
	Num       uint32
	ShortName string
	LongName  string
	MacAddr   string
	HWModel   string
	Role      string
	LastHeard *time.Time
	HopsAway  *int
	SNR       *float64
	RSSI      *int
	Position  *Position
	Metrics   *DeviceMetrics
}
