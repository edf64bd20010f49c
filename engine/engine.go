// Package engine owns the monitor's run loop. One goroutine consumes
// radio events and control messages and is the only writer to the
// registry and topology; the supervisor and pollers reach it through
// channels. The EventBus fans typed monitor events out to metrics, the
// redis mirror and the kafka exporter.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"meshmon/config"
	"meshmon/dispatch"
	"meshmon/logger"
	"meshmon/metrics"
	"meshmon/polling"
	"meshmon/radio"
	"meshmon/registry"
	"meshmon/sitrep"
	"meshmon/store"
	"meshmon/supervisor"
	"meshmon/topology"
)

// Mirror receives node snapshots for the hot read cache. Nil disables
// mirroring.
type Mirror interface {
	MirrorNode(n *store.Node) error
	RemoveNode(id string) error
}

// Exporter publishes monitor events off-box. Nil disables export.
type Exporter interface {
	Publish(ctx context.Context, event string, payload any) error
}

type Config struct {
	AppConfig *config.Config
	DB        *store.DB
	Radio     radio.Radio
	Rephraser dispatch.Rephraser
	Mirror    Mirror
	Exporter  Exporter
	Sources   []*polling.Source
}

type linkChange struct {
	up        bool
	reconnect bool
}

type queuedText struct {
	kind        string
	text        string
	channel     int
	destination string
}

type Engine struct {
	cfg      *config.Config
	db       *store.DB
	rdo      radio.Radio
	reg      *registry.Registry
	topo     *topology.Tracker
	policy   *topology.TracePolicy
	counters *sitrep.Counters
	gen      *sitrep.Generator
	disp     *dispatch.Dispatcher
	sup      *supervisor.Supervisor
	runner   *polling.Runner
	mirror   Mirror
	exporter Exporter

	Events *EventBus

	sitrepDay string

	// mu guards the identity pair and the last broadcast report, the
	// pieces the web goroutine reads while the run loop writes.
	mu         sync.Mutex
	localID    string
	localShort string
	lastSitrep []string

	sendQ    chan queuedText
	linkQ    chan linkChange
	tickQ    chan time.Time
	stopChan chan struct{}
	doneChan chan struct{}
}

func New(c Config) *Engine {
	mon := c.AppConfig.Monitor
	e := &Engine{
		cfg:      c.AppConfig,
		db:       c.DB,
		rdo:      c.Radio,
		mirror:   c.Mirror,
		exporter: c.Exporter,
		Events:   NewEventBus(),
		sendQ:    make(chan queuedText, 64),
		linkQ:    make(chan linkChange, 4),
		tickQ:    make(chan time.Time, 1),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}

	e.reg = registry.New(c.DB)
	e.topo = topology.New(c.DB, mon.EdgeRecencyWindow)
	e.policy = topology.NewTracePolicy(mon.TraceMinSpacing, mon.TraceNodeInterval)
	e.counters = sitrep.NewCounters(time.Now())
	e.gen = sitrep.New(e.reg, e.topo, e.counters, mon)
	e.disp = dispatch.New(e.reg, e.topo, e.policy, e.counters,
		&loopSender{e: e}, &busEmitter{bus: e.Events}, c.Rephraser, mon)

	e.sup = supervisor.New(c.Radio, &linkNotifier{e: e}, mon.HeartbeatInterval, mon.SilenceThreshold)
	e.sup.SetOnTick(func(now time.Time) {
		select {
		case e.tickQ <- now:
		default:
		}
	})

	e.runner = polling.NewRunner(polling.NewCache(), e.announceSourceItem)
	for _, src := range c.Sources {
		e.runner.Add(src)
	}
	return e
}

// Start wires subscribers, seeds the trace policy and launches the run
// loop, the supervisor and the source poller.
func (e *Engine) Start(ctx context.Context) {
	e.wireEventHandlers(ctx)
	e.seedTracePolicy()
	go e.run(ctx)
	e.sup.Start(ctx)
	go e.pollLoop(ctx)
	logger.Infof("engine: started")
}

func (e *Engine) Stop() {
	e.sup.Stop()
	close(e.stopChan)
	<-e.doneChan
	logger.Infof("engine: stopped")
}

// Accessors for the web layer.
func (e *Engine) DB() *store.DB { return e.db }
func (e *Engine) Registry() *registry.Registry { return e.reg }
func (e *Engine) Topology() *topology.Tracker { return e.topo }
func (e *Engine) Supervisor() *supervisor.Supervisor { return e.sup }
func (e *Engine) Counters() *sitrep.Counters { return e.counters }

// RenderSitrep produces a fresh report without transmitting it.
func (e *Engine) RenderSitrep(now time.Time) []string {
	id, short := e.identity()
	return e.gen.Render(now, id, short, e.sup.Reconnects())
}

func (e *Engine) identity() (id, short string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.localID, e.localShort
}

// LastSitrep returns the most recently broadcast report.
func (e *Engine) LastSitrep() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.lastSitrep))
	copy(out, e.lastSitrep)
	return out
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.doneChan)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case pkt := <-e.rdo.Events():
			e.sup.MarkTraffic()
			metrics.PacketsReceived.WithLabelValues(string(pkt.Port)).Inc()
			e.disp.HandlePacket(ctx, pkt, time.Now())
		case q := <-e.sendQ:
			e.transmitText(q.kind, q.text, q.channel, q.destination)
		case ch := <-e.linkQ:
			e.onLinkChange(ch)
		case now := <-e.tickQ:
			e.onTick(now)
		}
	}
}

func (e *Engine) onLinkChange(ch linkChange) {
	if !ch.up {
		metrics.LinkUp.Set(0)
		e.Events.Emit(Event{Type: EventLinkDown, Payload: LinkEvent{Detail: "radio link lost"}})
		return
	}

	metrics.LinkUp.Set(1)
	if ch.reconnect {
		metrics.Reconnects.Inc()
	}
	e.refreshIdentity()
	e.importNodeSnapshot()

	_, short := e.identity()
	if ch.reconnect {
		e.transmitText("announce", fmt.Sprintf("Reconnected to the Mesh. de %s", short),
			e.cfg.Radio.PublicChannel, radio.Broadcast)
	} else {
		e.transmitText("announce", fmt.Sprintf("CQ CQ CQ de %s. Mesh monitor on station.", short),
			e.cfg.Radio.PublicChannel, radio.Broadcast)
	}
	e.drainOutbox()
	e.Events.Emit(Event{Type: EventLinkUp, Payload: LinkEvent{Reconnect: ch.reconnect}})
}

// refreshIdentity learns who we are from the gateway. Without it the
// dispatcher cannot recognize self-originated packets.
func (e *Engine) refreshIdentity() {
	local, err := e.rdo.LocalNode()
	if err != nil {
		logger.Warnf("engine: local identity: %v", err)
		return
	}
	short := local.ShortName
	if short == "" {
		short = local.ID
	}
	e.mu.Lock()
	e.localID = local.ID
	e.localShort = short
	e.mu.Unlock()
	e.disp.SetLocal(local.ID, short)
}

// importNodeSnapshot seeds the registry from the gateway's node database
// so the roll call is populated before any traffic arrives.
func (e *Engine) importNodeSnapshot() {
	records, err := e.rdo.Nodes()
	if err != nil {
		logger.Warnf("engine: node snapshot: %v", err)
		return
	}
	for _, rec := range records {
		obs := observationFromRecord(rec)
		if _, err := e.reg.Upsert(obs); err != nil {
			logger.Warnf("engine: snapshot upsert %s: %v", rec.ID, err)
		}
	}
	if len(records) > 0 {
		logger.Infof("engine: imported %d nodes from gateway snapshot", len(records))
	}
}

func observationFromRecord(rec radio.NodeRecord) registry.Observation {
	obs := registry.Observation{
		ID:        rec.ID,
		LastHeard: rec.LastHeard,
		HopsAway:  rec.HopsAway,
		SNR:       rec.SNR,
		RSSI:      rec.RSSI,
	}
	if rec.Num != 0 {
		num := int64(rec.Num)
		obs.Num = &num
	}
	if rec.ShortName != "" {
		obs.ShortName = &rec.ShortName
	}
	if rec.LongName != "" {
		obs.LongName = &rec.LongName
	}
	if rec.MacAddr != "" {
		obs.MacAddr = &rec.MacAddr
	}
	if rec.HWModel != "" {
		obs.HWModel = &rec.HWModel
	}
	if rec.Role != "" {
		obs.Role = &rec.Role
	}
	if pos := rec.Position; pos != nil {
		obs.Latitude = &pos.Latitude
		obs.Longitude = &pos.Longitude
		obs.Altitude = pos.Altitude
	}
	if m := rec.Metrics; m != nil {
		obs.BatteryLevel = m.BatteryLevel
		obs.Voltage = m.Voltage
		obs.ChannelUtilization = m.ChannelUtilization
		obs.AirUtilTx = m.AirUtilTx
		obs.UptimeSeconds = m.UptimeSeconds
	}
	return obs
}

// onTick runs once per supervisory tick while the link is up.
func (e *Engine) onTick(now time.Time) {
	e.writeMeshData(now)
	e.maybeDailySitrep(now)
	e.drainOutbox()
	if nodes, err := e.reg.All(); err == nil {
		metrics.NodesKnown.Set(float64(len(nodes)))
	}
}

// maybeDailySitrep broadcasts the routine report on the first tick after
// midnight. The first tick of the process only arms the day marker.
func (e *Engine) maybeDailySitrep(now time.Time) {
	day := now.Format("2006-01-02")
	if e.sitrepDay == "" {
		e.sitrepDay = day
		return
	}
	if day != e.sitrepDay {
		e.sitrepDay = day
		e.sendSitrep(now)
	}
}

func (e *Engine) sendSitrep(now time.Time) {
	id, short := e.identity()
	lines := e.gen.Render(now, id, short, e.sup.Reconnects())
	if err := e.gen.Broadcast(e.rdo, lines, e.cfg.Radio.PublicChannel, radio.Broadcast); err != nil {
		logger.Errorf("engine: sitrep: %v", err)
		return
	}
	e.mu.Lock()
	e.lastSitrep = lines
	e.mu.Unlock()
	metrics.SitrepsSent.Inc()
	e.Events.Emit(Event{Type: EventSitrepSent, Payload: SitrepSentEvent{Lines: len(lines)}})
}

func (e *Engine) writeMeshData(now time.Time) {
	path := e.cfg.Monitor.MeshDataPath
	if path == "" {
		return
	}
	id, _ := e.identity()
	if err := e.gen.WriteMeshData(path, id, now, e.LastSitrep()); err != nil {
		logger.Errorf("engine: mesh data: %v", err)
	}
}

// seedTracePolicy restores per-node trace clocks from the traceroute
// table so a restart does not re-trace the whole mesh at once.
func (e *Engine) seedTracePolicy() {
	recs, err := e.db.ListTraceroutes(500)
	if err != nil {
		logger.Warnf("engine: seed trace policy: %v", err)
		return
	}
	// Newest first; walk backwards so the latest trace per node wins.
	for i := len(recs) - 1; i >= 0; i-- {
		e.policy.Seed(recs[i].Destination, recs[i].CreatedAt)
	}
}

func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.runner.Poll(ctx)
		}
	}
}

// announceSourceItem runs on the poll goroutine; the broadcast goes
// through sendQ so the run loop stays the only transmitter.
func (e *Engine) announceSourceItem(src config.SourceConfig, item polling.Item, isNew bool) {
	metrics.SourceItems.WithLabelValues(src.ID).Inc()
	e.Events.Emit(Event{Type: EventSourceItem, Payload: SourceItemEvent{
		SourceID: src.ID,
		Title:    item.Title,
		IsNew:    isNew,
	}})

	verb := "Updated"
	if isNew {
		verb = "New"
	}
	select {
	case e.sendQ <- queuedText{
		kind:        "source",
		text:        fmt.Sprintf("%s from %s: %s", verb, src.Name, item.Title),
		channel:     e.cfg.Radio.PublicChannel,
		destination: radio.Broadcast,
	}:
	default:
		logger.Warnf("engine: send queue full, dropping %s item %s", src.ID, strconv.Quote(item.Title))
	}
}
