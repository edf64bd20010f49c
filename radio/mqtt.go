package radio

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"meshmon/config"
	"meshmon/logger"
)

// MQTTRadio adapts a JSON-speaking MQTT mesh gateway to the Radio
// contract. It is a codec only: packets arrive on <root>/json/up/#,
// commands go out on <root>/json/down, and the gateway keeps retained
// node-db and self snapshots on <root>/stat/nodes and <root>/stat/self.
type MQTTRadio struct {
	cfg    config.RadioConfig
	events chan PacketEvent

	mu    sync.RWMutex
	conn  mqtt.Client
	nodes []NodeRecord
	self  *NodeRecord
}

func NewMQTTRadio(cfg config.RadioConfig) *MQTTRadio {
	return &MQTTRadio{
		cfg:    cfg,
		events: make(chan PacketEvent, 256),
	}
}

func (r *MQTTRadio) Connect(ctx context.Context) error {
	broker := fmt.Sprintf("tcp://%s:%d", r.cfg.Broker, r.cfg.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(r.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if r.cfg.Username != "" {
		opts.SetUsername(r.cfg.Username).SetPassword(r.cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return fmt.Errorf("mqtt connect: timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	subs := map[string]mqtt.MessageHandler{
		r.cfg.TopicRoot + "/json/up/#":  r.onPacket,
		r.cfg.TopicRoot + "/stat/nodes": r.onNodes,
		r.cfg.TopicRoot + "/stat/self":  r.onSelf,
	}
	for topic, handler := range subs {
		t := client.Subscribe(topic, 1, handler)
		t.Wait()
		if err := t.Error(); err != nil {
			client.Disconnect(250)
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}

	r.mu.Lock()
	r.conn = client
	r.mu.Unlock()
	return nil
}

func (r *MQTTRadio) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		r.conn.Disconnect(1000)
		r.conn = nil
	}
}

func (r *MQTTRadio) Events() <-chan PacketEvent { return r.events }

func (r *MQTTRadio) onPacket(_ mqtt.Client, msg mqtt.Message) {
	pkt, err := DecodePacket(msg.Payload())
	if err != nil {
		logger.Warnf("radio: drop packet on %s: %v", msg.Topic(), err)
		return
	}
	select {
	case r.events <- pkt:
	default:
		logger.Warnf("radio: event buffer full, dropping %s from %s", pkt.Port, pkt.FromID)
	}
}

func (r *MQTTRadio) onNodes(_ mqtt.Client, msg mqtt.Message) {
	var raw []rawNodeRecord
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		logger.Warnf("radio: bad node snapshot: %v", err)
		return
	}
	nodes := make([]NodeRecord, 0, len(raw))
	for _, rn := range raw {
		nodes = append(nodes, rn.toRecord())
	}
	r.mu.Lock()
	r.nodes = nodes
	r.mu.Unlock()
}

func (r *MQTTRadio) onSelf(_ mqtt.Client, msg mqtt.Message) {
	var raw rawNodeRecord
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		logger.Warnf("radio: bad self snapshot: %v", err)
		return
	}
	rec := raw.toRecord()
	r.mu.Lock()
	r.self = &rec
	r.mu.Unlock()
}

func (r *MQTTRadio) Nodes() ([]NodeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.nodes == nil {
		return nil, fmt.Errorf("node snapshot not received yet")
	}
	out := make([]NodeRecord, len(r.nodes))
	copy(out, r.nodes)
	return out, nil
}

func (r *MQTTRadio) LocalNode() (NodeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.self == nil {
		return NodeRecord{}, fmt.Errorf("self snapshot not received yet")
	}
	return *r.self, nil
}

func (r *MQTTRadio) SendText(text string, channel int, destination string) error {
	return r.publishDown(map[string]any{
		"type":    "sendtext",
		"payload": text,
		"channel": channel,
		"to":      destination,
	})
}

func (r *MQTTRadio) SendTraceRoute(destination string, hopLimit, channel int) error {
	return r.publishDown(map[string]any{
		"type":      "traceroute",
		"to":        destination,
		"hop_limit": hopLimit,
		"channel":   channel,
	})
}

func (r *MQTTRadio) SendData(payload []byte, destination string, port PortNum) error {
	return r.publishDown(map[string]any{
		"type":    "senddata",
		"to":      destination,
		"port":    string(port),
		"payload": base64.StdEncoding.EncodeToString(payload),
	})
}

func (r *MQTTRadio) SendHeartbeat() error {
	return r.publishDown(map[string]any{"type": "heartbeat"})
}

func (r *MQTTRadio) publishDown(body map[string]any) error {
	r.mu.RLock()
	conn := r.conn
	r.mu.RUnlock()
	if conn == nil || !conn.IsConnected() {
		return fmt.Errorf("radio not connected")
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode downlink: %w", err)
	}
	token := conn.Publish(r.cfg.TopicRoot+"/json/down", 1, false, data)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("publish downlink: timeout")
	}
	return token.Error()
}

// rawPacket is the gateway's JSON envelope. The payload is decoded in a
// second stage keyed on type.
type rawPacket struct {
	FromID    string          `json:"fromId"`
	ToID      string          `json:"toId"`
	From      uint32          `json:"from"`
	To        uint32          `json:"to"`
	Channel   int             `json:"channel"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	SNR       *float64        `json:"snr"`
	RSSI      *int            `json:"rssi"`
	HopsAway  *int            `json:"hops_away"`
	Encrypted bool            `json:"encrypted"`
	Payload   json.RawMessage `json:"payload"`
}

type rawPosition struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Altitude       *int    `json:"altitude"`
	LocationSource string  `json:"location_source"`
}

type rawNodeInfo struct {
	ID        string `json:"id"`
	ShortName string `json:"shortname"`
	LongName  string `json:"longname"`
	MacAddr   string `json:"macaddr"`
	Hardware  string `json:"hardware"`
	Role      string `json:"role"`
}

type rawTelemetry struct {
	BatteryLevel       *int     `json:"battery_level"`
	Voltage            *float64 `json:"voltage"`
	ChannelUtilization *float64 `json:"channel_utilization"`
	AirUtilTx          *float64 `json:"air_util_tx"`
	UptimeSeconds      *int64   `json:"uptime_seconds"`
}

type rawTrace struct {
	Route      []string  `json:"route"`
	RouteBack  []string  `json:"route_back"`
	SNRTowards []float64 `json:"snr_towards"`
	SNRBack    []float64 `json:"snr_back"`
}

type rawText struct {
	Text string `json:"text"`
}

type rawNodeRecord struct {
	ID        string        `json:"id"`
	Num       uint32        `json:"num"`
	ShortName string        `json:"shortname"`
	LongName  string        `json:"longname"`
	MacAddr   string        `json:"macaddr"`
	Hardware  string        `json:"hardware"`
	Role      string        `json:"role"`
	LastHeard *int64        `json:"last_heard"`
	HopsAway  *int          `json:"hops_away"`
	SNR       *float64      `json:"snr"`
	RSSI      *int          `json:"rssi"`
	Position  *rawPosition  `json:"position"`
	Telemetry *rawTelemetry `json:"telemetry"`
}

func (rn rawNodeRecord) toRecord() NodeRecord {
	rec := NodeRecord{
		ID:        rn.ID,
		Num:       rn.Num,
		ShortName: rn.ShortName,
		LongName:  rn.LongName,
		MacAddr:   rn.MacAddr,
		HWModel:   rn.Hardware,
		Role:      rn.Role,
		HopsAway:  rn.HopsAway,
		SNR:       rn.SNR,
		RSSI:      rn.RSSI,
	}
	if rn.LastHeard != nil {
		t := time.Unix(*rn.LastHeard, 0)
		rec.LastHeard = &t
	}
	if rn.Position != nil {
		rec.Position = &Position{
			Latitude:       rn.Position.Latitude,
			Longitude:      rn.Position.Longitude,
			Altitude:       rn.Position.Altitude,
			LocationSource: rn.Position.LocationSource,
		}
	}
	if rn.Telemetry != nil {
		rec.Metrics = &DeviceMetrics{
			BatteryLevel:       rn.Telemetry.BatteryLevel,
			Voltage:            rn.Telemetry.Voltage,
			ChannelUtilization: rn.Telemetry.ChannelUtilization,
			AirUtilTx:          rn.Telemetry.AirUtilTx,
			UptimeSeconds:      rn.Telemetry.UptimeSeconds,
		}
	}
	return rec
}

// DecodePacket unmarshals a gateway JSON envelope into a typed
// PacketEvent, decoding the payload in a second stage keyed on type.
func DecodePacket(data []byte) (PacketEvent, error) {
	var raw rawPacket
	if err := json.Unmarshal(data, &raw); err != nil {
		return PacketEvent{}, fmt.Errorf("decode packet envelope: %w", err)
	}
	if raw.FromID == "" {
		return PacketEvent{}, fmt.Errorf("packet missing fromId")
	}

	pkt := PacketEvent{
		FromID:    raw.FromID,
		ToID:      raw.ToID,
		FromNum:   raw.From,
		ToNum:     raw.To,
		Channel:   raw.Channel,
		Encrypted: raw.Encrypted,
		RxSNR:     raw.SNR,
		RxRSSI:    raw.RSSI,
		HopsAway:  raw.HopsAway,
	}
	if raw.Timestamp > 0 {
		pkt.RxTime = time.Unix(raw.Timestamp, 0)
	} else {
		pkt.RxTime = time.Now()
	}

	if raw.Encrypted {
		pkt.Port = PortNum(raw.Type)
		return pkt, nil
	}

	switch raw.Type {
	case "text":
		pkt.Port = PortText
		var p rawText
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return PacketEvent{}, fmt.Errorf("decode text payload: %w", err)
		}
		pkt.Text = p.Text
	case "position":
		pkt.Port = PortPosition
		var p rawPosition
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return PacketEvent{}, fmt.Errorf("decode position payload: %w", err)
		}
		pkt.Position = &Position{
			Latitude:       p.Latitude,
			Longitude:      p.Longitude,
			Altitude:       p.Altitude,
			LocationSource: p.LocationSource,
		}
	case "nodeinfo":
		pkt.Port = PortNodeInfo
		var p rawNodeInfo
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return PacketEvent{}, fmt.Errorf("decode nodeinfo payload: %w", err)
		}
		pkt.NodeInfo = &NodeInfo{
			ID:        p.ID,
			ShortName: p.ShortName,
			LongName:  p.LongName,
			MacAddr:   p.MacAddr,
			HWModel:   p.Hardware,
			Role:      p.Role,
		}
	case "telemetry":
		pkt.Port = PortTelemetry
		var p rawTelemetry
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return PacketEvent{}, fmt.Errorf("decode telemetry payload: %w", err)
		}
		pkt.Telemetry = &DeviceMetrics{
			BatteryLevel:       p.BatteryLevel,
			Voltage:            p.Voltage,
			ChannelUtilization: p.ChannelUtilization,
			AirUtilTx:          p.AirUtilTx,
			UptimeSeconds:      p.UptimeSeconds,
		}
	case "traceroute":
		pkt.Port = PortTraceroute
		var p rawTrace
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return PacketEvent{}, fmt.Errorf("decode traceroute payload: %w", err)
		}
		pkt.Trace = &TracePayload{
			Route:      p.Route,
			RouteBack:  p.RouteBack,
			SNRTowards: p.SNRTowards,
			SNRBack:    p.SNRBack,
		}
	case "neighborinfo":
		pkt.Port = PortNeighborInfo
	case "waypoint":
		pkt.Port = PortWaypoint
	case "routing":
		pkt.Port = PortRouting
	case "rangetest":
		pkt.Port = PortRangeTest
	default:
		pkt.Port = PortNum(raw.Type)
	}
	return pkt, nil
}
