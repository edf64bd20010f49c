package sitrep

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"meshmon/config"
	"meshmon/registry"
	"meshmon/store"
	"meshmon/topology"
)

func testGenerator(t *testing.T) (*Generator, *registry.Registry, *store.DB, *Counters) {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Defaults().Monitor
	reg := registry.New(db)
	topo := topology.New(db, cfg.EdgeRecencyWindow)
	counters := NewCounters(time.Now().Add(-90061 * time.Second)) // 1d 1h 1m 1s
	g := New(reg, topo, counters, cfg)
	g.sleep = func(time.Duration) {}
	return g, reg, db, counters
}

func strPtr(s string) *string   { return &s }
func intPtr(n int) *int         { return &n }
func f64Ptr(f float64) *float64 { return &f }

func TestRenderLineCountAndFrame(t *testing.T) {
	g, _, _, _ := testGenerator(t)
	now := time.Date(2026, 8, 26, 14, 30, 0, 0, time.UTC)

	lines := g.Render(now, "!self", "MON", 2)
	if len(lines) != 8 {
		t.Fatalf("line count = %d, want 8 (header + 6 + footer)", len(lines))
	}
	wantHeader := "CQ CQ CQ de MON. My 1430Z 26 Aug 2026 SITREP is as follows:"
	if lines[0] != wantHeader {
		t.Errorf("header = %q, want %q", lines[0], wantHeader)
	}
	if lines[7] != "de MON out" {
		t.Errorf("footer = %q, want %q", lines[7], "de MON out")
	}
	for i := 1; i <= 6; i++ {
		prefix := "Line " + string(rune('0'+i)) + "."
		if !strings.HasPrefix(lines[i], prefix) {
			t.Errorf("lines[%d] = %q, want prefix %q", i, lines[i], prefix)
		}
	}
	if !strings.Contains(lines[5], "2 reconnections") {
		t.Errorf("line 5 = %q, want reconnection count", lines[5])
	}
}

func TestRenderActiveNodesFreshnessWindow(t *testing.T) {
	g, reg, _, _ := testGenerator(t)
	now := time.Now().Truncate(time.Second)
	fresh := now.Add(-30 * time.Minute)
	stale := now.Add(-2 * time.Hour)
	reg.Upsert(registry.Observation{ID: "!01", ShortName: strPtr("ALX"), LastHeard: &fresh})
	reg.Upsert(registry.Observation{ID: "!02", ShortName: strPtr("BRV"), LastHeard: &stale})

	lines := g.Render(now, "!self", "MON", 0)
	if !strings.HasPrefix(lines[1], "Line 1. 1 nodes active") {
		t.Errorf("line 1 = %q, want exactly one active node", lines[1])
	}
	if !strings.Contains(lines[1], "ALX") {
		t.Errorf("line 1 = %q, want short-name roll call", lines[1])
	}
	if strings.Contains(lines[1], "BRV") {
		t.Errorf("line 1 = %q, stale node must not appear", lines[1])
	}
}

func TestRenderAircraftLine(t *testing.T) {
	g, reg, _, _ := testGenerator(t)
	now := time.Now().Truncate(time.Second)
	heard := time.Date(2026, 8, 26, 14, 2, 0, 0, time.UTC)
	reg.Upsert(registry.Observation{
		ID: "!jet", ShortName: strPtr("BIGJET"), LastHeard: &heard, HopsAway: intPtr(3),
	})
	reg.SetAircraft("!jet", true)

	lines := g.Render(now, "!self", "MON", 0)
	if !strings.Contains(lines[2], "1 aircraft tracks:") {
		t.Errorf("line 2 = %q, want aircraft headline", lines[2])
	}
	if !strings.Contains(lines[2], "2.A. BIGJET - 14:02 - 26 Aug 2026Z 3 hops") {
		t.Errorf("line 2 = %q, want lettered track entry", lines[2])
	}
}

func TestTrackEntryMetricPriority(t *testing.T) {
	heard := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	base := store.Node{ID: "!x", ShortName: strPtr("X"), LastHeard: &heard}

	withAll := base
	withAll.HopsAway = intPtr(2)
	withAll.RSSI = intPtr(-95)
	withAll.SNR = f64Ptr(6.5)
	if got := trackEntry(&withAll); !strings.HasSuffix(got, "2 hops") {
		t.Errorf("entry = %q, want hops preferred", got)
	}

	withRSSI := base
	withRSSI.RSSI = intPtr(-95)
	withRSSI.SNR = f64Ptr(6.5)
	if got := trackEntry(&withRSSI); !strings.HasSuffix(got, "RSSI -95") {
		t.Errorf("entry = %q, want RSSI next", got)
	}

	withSNR := base
	withSNR.SNR = f64Ptr(6.5)
	if got := trackEntry(&withSNR); !strings.HasSuffix(got, "SNR 6.5") {
		t.Errorf("entry = %q, want SNR last", got)
	}
}

func TestRenderPacketTotal(t *testing.T) {
	g, _, _, counters := testGenerator(t)
	counters.Inc("TEXT_MESSAGE_APP")
	counters.Inc("TEXT_MESSAGE_APP")
	counters.Inc("TELEMETRY_APP")
	counters.Inc("encrypted")

	lines := g.Render(time.Now(), "!self", "MON", 0)
	if !strings.Contains(lines[4], "4 packets received") {
		t.Errorf("line 4 = %q, want total 4", lines[4])
	}
}

func TestRenderUptimePrefersDeviceMetrics(t *testing.T) {
	g, reg, _, _ := testGenerator(t)
	now := time.Now()

	// No telemetry from the local node yet: fall back to the process
	// clock (started 1d 1h 1m 1s ago in the fixture).
	lines := g.Render(now, "!self", "MON", 0)
	if !strings.Contains(lines[5], "1 Days, 1 Hours, 1 Minutes, 1 Seconds") {
		t.Errorf("line 5 = %q, want process-clock fallback", lines[5])
	}

	uptime := int64(3661) // 1h 1m 1s reported by the device
	reg.Upsert(registry.Observation{ID: "!self", ShortName: strPtr("MON"), UptimeSeconds: &uptime})

	lines = g.Render(now, "!self", "MON", 0)
	if !strings.Contains(lines[5], "0 Days, 1 Hours, 1 Minutes, 1 Seconds") {
		t.Errorf("line 5 = %q, want device-reported uptime", lines[5])
	}
}

func TestFormatUptime(t *testing.T) {
	d := 24*time.Hour + time.Hour + time.Minute + time.Second
	got := formatUptime(d)
	want := "1 Days, 1 Hours, 1 Minutes, 1 Seconds"
	if got != want {
		t.Errorf("uptime = %q, want %q", got, want)
	}
}

type failingSender struct {
	failAt int
	sent   []string
}

func (f *failingSender) SendText(text string, _ int, _ string) error {
	if len(f.sent) == f.failAt {
		return errors.New("radio glitch")
	}
	f.sent = append(f.sent, text)
	return nil
}

func TestBroadcastAbortsRemainderOnFailure(t *testing.T) {
	g, _, _, _ := testGenerator(t)
	lines := g.Render(time.Now(), "!self", "MON", 0)

	s := &failingSender{failAt: 3}
	err := g.Broadcast(s, lines, 1, "^all")
	if err == nil {
		t.Fatal("expected send failure")
	}
	if len(s.sent) != 3 {
		t.Errorf("sent = %d lines before abort, want 3", len(s.sent))
	}
}

func TestWriteMeshData(t *testing.T) {
	g, reg, db, _ := testGenerator(t)
	now := time.Now().Truncate(time.Second)

	reg.Upsert(registry.Observation{ID: "!self", ShortName: strPtr("MON")})
	reg.Upsert(registry.Observation{
		ID: "!near", ShortName: strPtr("NEAR"), HopsAway: intPtr(0), SNR: f64Ptr(9),
		Latitude: f64Ptr(36.85), Longitude: f64Ptr(-76.28),
	})
	reg.Upsert(registry.Observation{ID: "!far", ShortName: strPtr("FAR"), HopsAway: intPtr(2)})
	db.UpsertConnection("!far", "!near", "traceroute_to", f64Ptr(5), nil, now)
	db.UpsertConnection("!far", "!old", "traceroute_to", nil, nil, now.Add(-25*time.Hour))

	path := filepath.Join(t.TempDir(), "mesh_data.json")
	lines := []string{"CQ CQ CQ de MON.", "de MON out"}
	if err := g.WriteMeshData(path, "!self", now, lines); err != nil {
		t.Fatalf("write: %v", err)
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var data MeshData
	if err := json.Unmarshal(blob, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(data.Sitrep) != 2 {
		t.Errorf("sitrep lines = %d, want 2", len(data.Sitrep))
	}

	byID := map[string]MeshDataNode{}
	for _, n := range data.Nodes {
		byID[n.ID] = n
	}
	// Connections carry peer short names: the zero-hop node links to the
	// local node and vice versa.
	near := byID["!near"]
	if len(near.Connections) != 1 || near.Connections[0] != "MON" {
		t.Errorf("zero-hop node connections = %v, want [MON]", near.Connections)
	}
	local := byID["!self"]
	if len(local.Connections) != 1 || local.Connections[0] != "NEAR" {
		t.Errorf("local connections = %v, want [NEAR]", local.Connections)
	}

	far := byID["!far"]
	if len(far.Connections) != 1 || far.Connections[0] != "NEAR" {
		t.Errorf("far connections = %v, want only the recent edge", far.Connections)
	}
}
