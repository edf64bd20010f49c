package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"meshmon/config"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	db, err := Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: dbPath},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		os.Remove(dbPath)
	})
	return db
}

func strPtr(s string) *string    { return &s }
func intPtr(n int) *int          { return &n }
func f64Ptr(f float64) *float64  { return &f }
func timePtr(t time.Time) *time.Time { return &t }

// --- Node tests ---

func TestNodeInsertGetUpdate(t *testing.T) {
	db := testDB(t)

	heard := time.Now().Truncate(time.Second)
	n := &Node{
		ID:        "!a1b2c3d4",
		ShortName: strPtr("ALX"),
		LongName:  strPtr("Alexandria Base"),
		LastHeard: timePtr(heard),
		SNR:       f64Ptr(7.25),
		HopsAway:  intPtr(2),
	}
	if err := db.InsertNode(n); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := db.GetNode("!a1b2c3d4")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ShortName == nil || *got.ShortName != "ALX" {
		t.Errorf("ShortName = %v, want ALX", got.ShortName)
	}
	if got.BatteryLevel != nil {
		t.Errorf("BatteryLevel = %v, want nil (never reported)", got.BatteryLevel)
	}
	if got.LastHeard == nil || !got.LastHeard.Equal(heard) {
		t.Errorf("LastHeard = %v, want %v", got.LastHeard, heard)
	}

	got.BatteryLevel = intPtr(85)
	got.ShortName = strPtr("ALX2")
	if err := db.UpdateNode(got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got2, _ := db.GetNode("!a1b2c3d4")
	if got2.BatteryLevel == nil || *got2.BatteryLevel != 85 {
		t.Errorf("BatteryLevel = %v, want 85", got2.BatteryLevel)
	}
	if *got2.ShortName != "ALX2" {
		t.Errorf("ShortName = %q, want ALX2", *got2.ShortName)
	}
}

func TestFindNodeByNameCaseInsensitive(t *testing.T) {
	db := testDB(t)
	db.InsertNode(&Node{ID: "!01", ShortName: strPtr("ALX"), LongName: strPtr("Alexandria Base")})

	for _, name := range []string{"alx", "ALX", "alexandria base"} {
		got, err := db.FindNodeByName(name)
		if err != nil {
			t.Fatalf("find %q: %v", name, err)
		}
		if got.ID != "!01" {
			t.Errorf("find %q = %s, want !01", name, got.ID)
		}
	}
	if _, err := db.FindNodeByName("nobody"); err != sql.ErrNoRows {
		t.Errorf("find unknown: err = %v, want ErrNoRows", err)
	}
}

func TestNodeFlags(t *testing.T) {
	db := testDB(t)
	db.InsertNode(&Node{ID: "!01", ShortName: strPtr("ALX")})
	db.InsertNode(&Node{ID: "!02", ShortName: strPtr("BRV")})

	if err := db.SetNodeOfInterest("!01", true); err != nil {
		t.Fatalf("set noi: %v", err)
	}
	if err := db.SetAircraft("!02", true); err != nil {
		t.Fatalf("set aircraft: %v", err)
	}

	noi, _ := db.ListNodesOfInterest()
	if len(noi) != 1 || noi[0].ID != "!01" {
		t.Errorf("nodes of interest = %+v, want [!01]", noi)
	}
	air, _ := db.ListAircraft()
	if len(air) != 1 || air[0].ID != "!02" {
		t.Errorf("aircraft = %+v, want [!02]", air)
	}

	// Clearing works and unknown ids surface ErrNoRows
	db.SetNodeOfInterest("!01", false)
	noi2, _ := db.ListNodesOfInterest()
	if len(noi2) != 0 {
		t.Errorf("nodes of interest after clear = %d, want 0", len(noi2))
	}
	if err := db.SetNodeOfInterest("!99", true); err != sql.ErrNoRows {
		t.Errorf("set flag on unknown node: err = %v, want ErrNoRows", err)
	}
}

func TestListNodesHeardSince(t *testing.T) {
	db := testDB(t)
	now := time.Now().Truncate(time.Second)
	db.InsertNode(&Node{ID: "!fresh", LastHeard: timePtr(now.Add(-10 * time.Minute))})
	db.InsertNode(&Node{ID: "!stale", LastHeard: timePtr(now.Add(-3 * time.Hour))})
	db.InsertNode(&Node{ID: "!silent"})

	fresh, err := db.ListNodesHeardSince(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(fresh) != 1 || fresh[0].ID != "!fresh" {
		t.Errorf("fresh = %+v, want [!fresh]", fresh)
	}
}

func TestDeleteNode(t *testing.T) {
	db := testDB(t)
	db.InsertNode(&Node{ID: "!01"})
	if err := db.DeleteNode("!01"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.GetNode("!01"); err != sql.ErrNoRows {
		t.Errorf("get after delete: err = %v, want ErrNoRows", err)
	}
}

// --- Traceroute tests ---

func TestTracerouteInsertAndLatest(t *testing.T) {
	db := testDB(t)

	r := &TracerouteRecord{
		Originator:  "!aaa",
		Destination: "!ccc",
		RouteTo:     []string{"!aaa", "!bbb", "!ccc"},
		RouteBack:   []string{"!ccc", "!bbb", "!aaa"},
		SNRTo:       []float64{5, 6},
		SNRBack:     []float64{6.5, 5.5},
		HopCount:    5,
	}
	if err := db.InsertTraceroute(r); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if r.ID == 0 {
		t.Fatal("ID should be assigned")
	}

	got, err := db.LatestTraceroute("!ccc")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(got.RouteTo) != 3 || got.RouteTo[1] != "!bbb" {
		t.Errorf("RouteTo = %v", got.RouteTo)
	}
	if len(got.SNRBack) != 2 || got.SNRBack[0] != 6.5 {
		t.Errorf("SNRBack = %v", got.SNRBack)
	}
	if got.HopCount != 5 {
		t.Errorf("HopCount = %d, want 5", got.HopCount)
	}

	has, _ := db.HasTraceroute("!ccc")
	if !has {
		t.Error("HasTraceroute(!ccc) = false, want true")
	}
	has, _ = db.HasTraceroute("!zzz")
	if has {
		t.Error("HasTraceroute(!zzz) = true, want false")
	}
}

// --- Connection tests ---

func TestUpsertConnectionRefreshes(t *testing.T) {
	db := testDB(t)
	first := time.Now().Add(-time.Hour).Truncate(time.Second)
	later := time.Now().Truncate(time.Second)

	if err := db.UpsertConnection("!a", "!b", "traceroute_to", f64Ptr(5), intPtr(2), first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := db.UpsertConnection("!a", "!b", "traceroute_to", f64Ptr(8), intPtr(3), later); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	// Different type is a distinct edge
	if err := db.UpsertConnection("!a", "!b", "traceroute_back", f64Ptr(4), nil, later); err != nil {
		t.Fatalf("other type: %v", err)
	}

	conns, err := db.ListConnectionsSince(time.Now().Add(-2 * time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(conns) != 2 {
		t.Fatalf("len = %d, want 2", len(conns))
	}
	for _, c := range conns {
		if c.ConnectionType == "traceroute_to" {
			if c.SNR == nil || *c.SNR != 8 {
				t.Errorf("refreshed SNR = %v, want 8", c.SNR)
			}
			if !c.LastSeen.Equal(later) {
				t.Errorf("refreshed LastSeen = %v, want %v", c.LastSeen, later)
			}
		}
	}
}

func TestListConnectionsSinceExcludesStale(t *testing.T) {
	db := testDB(t)
	now := time.Now().Truncate(time.Second)
	db.UpsertConnection("!a", "!b", "traceroute_to", nil, nil, now.Add(-25*time.Hour))
	db.UpsertConnection("!b", "!c", "traceroute_to", nil, nil, now.Add(-time.Hour))

	conns, _ := db.ListConnectionsSince(now.Add(-24 * time.Hour))
	if len(conns) != 1 || conns[0].Node1 != "!b" {
		t.Errorf("conns = %+v, want only !b-!c", conns)
	}

	// The stale row is retained, only filtered
	all, _ := db.ListConnectionsSince(time.Time{}.Add(time.Second))
	if len(all) != 2 {
		t.Errorf("all rows = %d, want 2", len(all))
	}
}

func TestListNodeConnections(t *testing.T) {
	db := testDB(t)
	now := time.Now().Truncate(time.Second)
	db.UpsertConnection("!a", "!b", "traceroute_to", nil, nil, now)
	db.UpsertConnection("!c", "!a", "traceroute_back", nil, nil, now)
	db.UpsertConnection("!c", "!d", "traceroute_to", nil, nil, now)

	conns, err := db.ListNodeConnections("!a", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(conns) != 2 {
		t.Errorf("len = %d, want 2 (either end)", len(conns))
	}
}

// --- Outbox tests ---

func TestOutboxLifecycle(t *testing.T) {
	db := testDB(t)

	if err := db.EnqueueOutbox("text", 1, "!aaa", "hello"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	db.EnqueueOutbox("text", 0, "^all", "broadcast")

	msgs, err := db.ListPendingOutbox(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Destination != "!aaa" || msgs[0].Body != "hello" {
		t.Errorf("first message = %+v", msgs[0])
	}

	db.AckOutbox(msgs[0].ID)
	pending, _ := db.ListPendingOutbox(10)
	if len(pending) != 1 {
		t.Errorf("pending after ack = %d, want 1", len(pending))
	}

	db.IncrementOutboxRetries(pending[0].ID)
	pending2, _ := db.ListPendingOutbox(10)
	if pending2[0].Retries != 1 {
		t.Errorf("retries = %d, want 1", pending2[0].Retries)
	}
}

// --- Dialect tests ---

func TestRebind(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"SELECT * FROM t WHERE a=? AND b=?", "SELECT * FROM t WHERE a=$1 AND b=$2"},
		{"INSERT INTO t (a) VALUES (?)", "INSERT INTO t (a) VALUES ($1)"},
		{"SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		got := Rebind(tt.input)
		if got != tt.want {
			t.Errorf("Rebind(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
