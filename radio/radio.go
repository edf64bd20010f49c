// Package radio defines the transport collaborator contract for the mesh
// device and its concrete MQTT gateway adapter. The monitor never talks
// to radio hardware directly; everything arrives as decoded PacketEvents
// and leaves through the send methods.
package radio

import "context"

type Radio interface {
	// Connect establishes the link. Safe to call again after Close.
	Connect(ctx context.Context) error
	Close()

	// Events yields decoded inbound packets. The channel stays open for
	// the life of the adapter; link loss simply pauses delivery.
	Events() <-chan PacketEvent

	// Nodes returns the gateway's current node database snapshot.
	Nodes() ([]NodeRecord, error)
	// LocalNode identifies the node the monitor is attached to.
	LocalNode() (NodeRecord, error)

	SendText(text string, channel int, destination string) error
	SendTraceRoute(destination string, hopLimit, channel int) error
	SendData(payload []byte, destination string, port PortNum) error
	// SendHeartbeat keeps the gateway link warm between packets.
	SendHeartbeat() error
}
