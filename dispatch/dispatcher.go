// Package dispatch routes decoded packets: registry upkeep first, then
// portnum-specific handling and the operator command vocabulary.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meshmon/config"
	"meshmon/logger"
	"meshmon/radio"
	"meshmon/registry"
	"meshmon/sitrep"
	"meshmon/store"
	"meshmon/topology"
)

// Rephraser turns a canned reply into conversational text for direct
// chats, keeping one conversation per sender. Implementations may call
// out; failures fall back to the input.
type Rephraser interface {
	Rephrase(ctx context.Context, sender, text, hint string) (string, error)
}

type Dispatcher struct {
	reg       *registry.Registry
	topo      *topology.Tracker
	policy    *topology.TracePolicy
	counters  *sitrep.Counters
	sender    Sender
	emitter   Emitter
	rephraser Rephraser
	cfg       config.MonitorConfig

	localID    string
	localShort string
}

func New(reg *registry.Registry, topo *topology.Tracker, policy *topology.TracePolicy,
	counters *sitrep.Counters, sender Sender, emitter Emitter, rephraser Rephraser,
	cfg config.MonitorConfig) *Dispatcher {
	return &Dispatcher{
		reg:       reg,
		topo:      topo,
		policy:    policy,
		counters:  counters,
		sender:    sender,
		emitter:   emitter,
		rephraser: rephraser,
		cfg:       cfg,
	}
}

// SetLocal records the attached node's identity. Self-originated
// packets are ignored from then on.
func (d *Dispatcher) SetLocal(id, short string) {
	d.localID = id
	d.localShort = short
}

// HandlePacket is the single entry point for inbound traffic.
func (d *Dispatcher) HandlePacket(ctx context.Context, pkt radio.PacketEvent, now time.Time) {
	if pkt.FromID == d.localID {
		return
	}

	if pkt.Encrypted {
		d.counters.Inc("encrypted")
		return
	}
	d.counters.Inc(string(pkt.Port))

	res, err := d.reg.Upsert(d.observationFrom(pkt, now))
	if err != nil {
		if errors.Is(err, registry.ErrMalformedObservation) {
			logger.Warnf("dispatch: drop packet without node id (port %s)", pkt.Port)
		} else {
			logger.Errorf("dispatch: upsert %s: %v", pkt.FromID, err)
		}
		return
	}

	if res.IsNew {
		d.greetNewNode(pkt, res.Node)
	}
	if res.NameChanged {
		old := res.PreviousShortName
		if old == "" {
			old = res.PreviousLongName
		}
		d.sender.NotifyAdmin(fmt.Sprintf("Node %s changed name: %s is now %s", pkt.FromID, old, res.Node.Short()))
		d.emitter.EmitNodeNameChanged(pkt.FromID, old, res.Node.Short())
	}
	if res.Node.NodeOfInterest {
		d.healthCheck(res, now)
	}

	switch pkt.Port {
	case radio.PortText:
		d.handleText(ctx, pkt)
	case radio.PortPosition:
		d.handlePosition(pkt, res.Node)
	case radio.PortTraceroute:
		d.handleTraceroute(pkt, now)
	case radio.PortNeighborInfo:
		d.sender.NotifyAdmin(fmt.Sprintf("Neighbor info received from %s", res.Node.Short()))
	case radio.PortTelemetry, radio.PortNodeInfo, radio.PortWaypoint, radio.PortRouting, radio.PortRangeTest:
		// Counted above; nothing more to do.
	default:
		d.sender.NotifyAdmin(fmt.Sprintf("Unrecognized packet type %s from %s", pkt.Port, res.Node.Short()))
	}
}

// observationFrom flattens a packet into a registry observation.
// Telemetry the packet does not carry stays absent.
func (d *Dispatcher) observationFrom(pkt radio.PacketEvent, now time.Time) registry.Observation {
	obs := registry.Observation{
		ID:        pkt.FromID,
		LastHeard: &now,
		SNR:       pkt.RxSNR,
		RSSI:      pkt.RxRSSI,
		HopsAway:  pkt.HopsAway,
	}
	if pkt.FromNum != 0 {
		num := int64(pkt.FromNum)
		obs.Num = &num
	}
	if ni := pkt.NodeInfo; ni != nil {
		if ni.ShortName != "" {
			obs.ShortName = &ni.ShortName
		}
		if ni.LongName != "" {
			obs.LongName = &ni.LongName
		}
		if ni.MacAddr != "" {
			obs.MacAddr = &ni.MacAddr
		}
		if ni.HWModel != "" {
			obs.HWModel = &ni.HWModel
		}
		if ni.Role != "" {
			obs.Role = &ni.Role
		}
	}
	if pos := pkt.Position; pos != nil {
		obs.Latitude = &pos.Latitude
		obs.Longitude = &pos.Longitude
		obs.Altitude = pos.Altitude
	}
	if tm := pkt.Telemetry; tm != nil {
		obs.BatteryLevel = tm.BatteryLevel
		obs.Voltage = tm.Voltage
		obs.ChannelUtilization = tm.ChannelUtilization
		obs.AirUtilTx = tm.AirUtilTx
		obs.UptimeSeconds = tm.UptimeSeconds
	}
	return obs
}

func (d *Dispatcher) greetNewNode(pkt radio.PacketEvent, n *store.Node) {
	d.sender.Reply(fmt.Sprintf("Welcome to the mesh, %s! You are being monitored by %s.", n.Short(), d.localShort),
		pkt.Channel, pkt.FromID)
	d.sender.NotifyAdmin(fmt.Sprintf("New node on the mesh: %s (%s)", n.Short(), n.ID))
	d.emitter.EmitNodeNew(n.ID, n.Short())

	if pkt.HopsAway != nil && *pkt.HopsAway > 0 {
		d.requestTrace(n)
	}
}

// requestTrace asks for a traceroute when the policy allows it and
// reports whether one was actually sent.
func (d *Dispatcher) requestTrace(n *store.Node) bool {
	if !d.policy.ShouldTrace(n, time.Now()) {
		return false
	}
	d.policy.RecordTrace(n.ID, time.Now())
	d.sender.RequestTrace(n.ID)
	return true
}

// healthCheck runs on every packet from a node of interest.
func (d *Dispatcher) healthCheck(res registry.UpsertResult, now time.Time) {
	n := res.Node
	if n.BatteryLevel != nil && *n.BatteryLevel < d.cfg.LowBatteryPercent {
		d.sender.NotifyAdmin(fmt.Sprintf("Node of interest %s battery low: %d%%", n.Short(), *n.BatteryLevel))
		d.emitter.EmitLowBattery(n.ID, n.Short(), *n.BatteryLevel)
	}
	if res.PreviousLastHeard != nil && now.Sub(*res.PreviousLastHeard) > 24*time.Hour {
		d.sender.NotifyAdmin(fmt.Sprintf("Node of interest %s back on the mesh after %s",
			n.Short(), now.Sub(*res.PreviousLastHeard).Round(time.Hour)))
	}
}

func (d *Dispatcher) handlePosition(pkt radio.PacketEvent, n *store.Node) {
	pos := pkt.Position
	if pos == nil || pos.Altitude == nil {
		return
	}
	// Manually pinned locations report whatever altitude the operator
	// typed; only sensor fixes can flag an aircraft.
	if pos.LocationSource == radio.LocManual {
		return
	}
	if *pos.Altitude <= d.cfg.AircraftAltitude || n.Aircraft {
		return
	}
	if err := d.reg.SetAircraft(n.ID, true); err != nil {
		logger.Errorf("dispatch: flag aircraft %s: %v", n.ID, err)
		return
	}
	d.sender.Reply(fmt.Sprintf("Aircraft detected: %s at %d", n.Short(), *pos.Altitude), pkt.Channel, radio.Broadcast)
	d.sender.Reply(fmt.Sprintf("%s, you are being tracked as an aircraft at altitude %d.", n.Short(), *pos.Altitude),
		pkt.Channel, pkt.FromID)
	d.emitter.EmitAircraftDetected(n.ID, n.Short(), *pos.Altitude)
}

func (d *Dispatcher) handleTraceroute(pkt radio.PacketEvent, now time.Time) {
	res, err := d.topo.IngestTraceroute(pkt, now)
	if err != nil {
		logger.Errorf("dispatch: traceroute from %s: %v", pkt.FromID, err)
		return
	}
	d.sender.NotifyAdmin("Traceroute: " + res.Summary)
	d.emitter.EmitTracerouteProcessed(res.Originator, res.Destination, res.HopCount)

	// Someone traced us: keep an eye on them and say hello.
	if res.Destination == d.localID && res.Originator != d.localID {
		if err := d.reg.SetNodeOfInterest(res.Originator, true); err != nil && !errors.Is(err, registry.ErrUnknownNode) {
			logger.Errorf("dispatch: flag tracer %s: %v", res.Originator, err)
		}
		d.sender.Reply(fmt.Sprintf("Hello %s, I see you found me. de %s", res.Originator, d.localShort),
			pkt.Channel, res.Originator)
	}
}
