package engine

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"meshmon/config"
	"meshmon/polling"
	"meshmon/radio"
	"meshmon/registry"
	"meshmon/store"
)

func testEngine(t *testing.T) (*Engine, *radio.Fake) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.Monitor.LineDelay = 0
	cfg.Monitor.MeshDataPath = ""

	db, err := store.Open(&cfg.Database)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fake := radio.NewFake()
	fake.Self = radio.NodeRecord{ID: "!self", ShortName: "MON"}
	e := New(Config{AppConfig: cfg, DB: db, Radio: fake})
	return e, fake
}

func connect(t *testing.T, e *Engine) {
	t.Helper()
	e.sup.Tick(context.Background(), time.Now())
	e.refreshIdentity()
}

func TestTransmitQueuesWhileDisconnected(t *testing.T) {
	e, fake := testEngine(t)
	e.transmitText("admin", "link is down", 1, radio.Broadcast)

	if len(fake.SentTexts()) != 0 {
		t.Errorf("texts = %+v, want none while disconnected", fake.SentTexts())
	}
	pending, err := e.db.ListPendingOutbox(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Body != "link is down" {
		t.Errorf("pending = %+v, want the queued message", pending)
	}
}

func TestDrainOutboxOnReconnect(t *testing.T) {
	e, fake := testEngine(t)
	e.db.EnqueueOutbox("admin", 1, radio.Broadcast, "first")
	e.db.EnqueueOutbox("admin", 1, radio.Broadcast, "second")

	connect(t, e)
	e.drainOutbox()

	texts := fake.SentTexts()
	if len(texts) != 2 || texts[0].Text != "first" || texts[1].Text != "second" {
		t.Errorf("texts = %+v, want first and second in order", texts)
	}
	pending, _ := e.db.ListPendingOutbox(10)
	if len(pending) != 0 {
		t.Errorf("pending = %+v, want empty after drain", pending)
	}
}

func TestDrainOutboxStopsAtFirstFailure(t *testing.T) {
	e, fake := testEngine(t)
	e.db.EnqueueOutbox("admin", 1, radio.Broadcast, "first")
	e.db.EnqueueOutbox("admin", 1, radio.Broadcast, "second")

	connect(t, e)
	fake.SendErr = context.DeadlineExceeded
	e.drainOutbox()

	pending, _ := e.db.ListPendingOutbox(10)
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want both retained", len(pending))
	}
	if pending[0].Retries != 1 {
		t.Errorf("retries = %d, want 1", pending[0].Retries)
	}
}

func TestLinkUpAnnouncesAndImportsSnapshot(t *testing.T) {
	e, fake := testEngine(t)
	fake.NodeDB = []radio.NodeRecord{
		{ID: "!aaa", ShortName: "AAA"},
		{ID: "!bbb", ShortName: "BBB"},
	}
	connect(t, e)
	e.onLinkChange(linkChange{up: true, reconnect: false})

	texts := fake.SentTexts()
	if len(texts) == 0 || !strings.HasPrefix(texts[0].Text, "CQ CQ CQ de MON") {
		t.Errorf("texts = %+v, want first-connect announcement", texts)
	}
	if _, err := e.reg.Get("!aaa"); err != nil {
		t.Errorf("snapshot node !aaa missing: %v", err)
	}
	if _, err := e.reg.Get("!bbb"); err != nil {
		t.Errorf("snapshot node !bbb missing: %v", err)
	}
}

func TestReconnectAnnouncement(t *testing.T) {
	e, fake := testEngine(t)
	connect(t, e)
	e.onLinkChange(linkChange{up: true, reconnect: true})

	texts := fake.SentTexts()
	if len(texts) != 1 || !strings.Contains(texts[0].Text, "Reconnected to the Mesh") {
		t.Errorf("texts = %+v, want reconnect announcement", texts)
	}
}

func TestDailySitrepFiresOnDayRoll(t *testing.T) {
	e, fake := testEngine(t)
	connect(t, e)

	day1 := time.Date(2026, 3, 1, 23, 50, 0, 0, time.UTC)
	e.maybeDailySitrep(day1)
	if len(fake.SentTexts()) != 0 {
		t.Fatal("first tick must only arm the day marker")
	}

	e.maybeDailySitrep(day1.Add(5 * time.Minute))
	if len(fake.SentTexts()) != 0 {
		t.Fatal("same-day tick must not broadcast")
	}

	e.maybeDailySitrep(day1.Add(20 * time.Minute)) // 00:10 next day
	texts := fake.SentTexts()
	if len(texts) != 8 {
		t.Fatalf("texts = %d lines, want the 8-line report", len(texts))
	}
	if got := e.LastSitrep(); len(got) != 8 {
		t.Errorf("LastSitrep = %d lines, want 8", len(got))
	}
}

func TestAnnounceSourceItemQueuesBroadcast(t *testing.T) {
	e, _ := testEngine(t)
	src := config.SourceConfig{ID: "wx", Name: "Weather"}
	e.announceSourceItem(src, polling.Item{ID: "1", Title: "Gale warning"}, true)

	select {
	case q := <-e.sendQ:
		if q.text != "New from Weather: Gale warning" {
			t.Errorf("text = %q", q.text)
		}
		if q.destination != radio.Broadcast {
			t.Errorf("destination = %q, want broadcast", q.destination)
		}
	default:
		t.Fatal("nothing queued")
	}
}

type recordingExporter struct {
	events []string
}

func (r *recordingExporter) Publish(_ context.Context, event string, _ any) error {
	r.events = append(r.events, event)
	return nil
}

func TestExporterReceivesEvents(t *testing.T) {
	e, _ := testEngine(t)
	rec := &recordingExporter{}
	e.exporter = rec
	e.wireEventHandlers(context.Background())

	e.Events.Emit(Event{Type: EventNodeNew, Payload: NodeNewEvent{NodeID: "!x", Name: "X"}})
	e.Events.Emit(Event{Type: EventLinkDown, Payload: LinkEvent{}})

	if len(rec.events) != 2 || rec.events[0] != "node.new" || rec.events[1] != "link.down" {
		t.Errorf("exported = %v", rec.events)
	}
}

type recordingMirror struct {
	ids     []string
	removed []string
}

func (m *recordingMirror) MirrorNode(n *store.Node) error {
	m.ids = append(m.ids, n.ID)
	return nil
}

func (m *recordingMirror) RemoveNode(id string) error {
	m.removed = append(m.removed, id)
	return nil
}

func TestMirrorFollowsNodeEvents(t *testing.T) {
	e, _ := testEngine(t)
	mir := &recordingMirror{}
	e.mirror = mir
	e.wireEventHandlers(context.Background())

	short := "AAA"
	e.reg.Upsert(registry.Observation{ID: "!aaa", ShortName: &short})
	e.Events.Emit(Event{Type: EventNodeNew, Payload: NodeNewEvent{NodeID: "!aaa", Name: "AAA"}})

	if len(mir.ids) != 1 || mir.ids[0] != "!aaa" {
		t.Errorf("mirrored = %v", mir.ids)
	}
}

func TestMirrorDropsRemovedNodes(t *testing.T) {
	e, _ := testEngine(t)
	mir := &recordingMirror{}
	e.mirror = mir
	e.wireEventHandlers(context.Background())

	e.Events.Emit(Event{Type: EventNodeRemoved, Payload: NodeRemovedEvent{NodeID: "!gone"}})

	if len(mir.removed) != 1 || mir.removed[0] != "!gone" {
		t.Errorf("removed = %v, want [!gone]", mir.removed)
	}
	if len(mir.ids) != 0 {
		t.Errorf("mirrored = %v, removal must not refresh the entry", mir.ids)
	}
}

func TestObservationFromRecord(t *testing.T) {
	alt := 120
	hops := 2
	batt := 80
	heard := time.Now()
	rec := radio.NodeRecord{
		ID:        "!aaa",
		Num:       0xaaa,
		ShortName: "AAA",
		HopsAway:  &hops,
		LastHeard: &heard,
		Position:  &radio.Position{Latitude: 36.9, Longitude: -76.2, Altitude: &alt},
		Metrics:   &radio.DeviceMetrics{BatteryLevel: &batt},
	}
	obs := observationFromRecord(rec)
	if obs.ID != "!aaa" || *obs.Num != 0xaaa || *obs.ShortName != "AAA" {
		t.Errorf("identity fields wrong: %+v", obs)
	}
	if *obs.Altitude != 120 || *obs.BatteryLevel != 80 || *obs.HopsAway != 2 {
		t.Errorf("telemetry fields wrong: %+v", obs)
	}
	if obs.LongName != nil || obs.Voltage != nil {
		t.Errorf("absent fields must stay nil: %+v", obs)
	}
}

func TestEventNames(t *testing.T) {
	if eventName(EventTracerouteProcessed) != "topology.traceroute" {
		t.Error("traceroute event name")
	}
	if eventName(EventType(99)) != "unknown" {
		t.Error("unknown event name")
	}
}
