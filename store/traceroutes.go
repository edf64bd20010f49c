package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// TracerouteRecord is one completed trace, insert-only. Routes and SNR
// lists are stored as JSON arrays in TEXT columns.
type TracerouteRecord struct {
	ID          int64
	Originator  string
	Destination string
	RouteTo     []string
	RouteBack   []string
	SNRTo       []float64
	SNRBack     []float64
	HopCount    int
	CreatedAt   time.Time
}

func (db *DB) InsertTraceroute(r *TracerouteRecord) error {
	routeTo, _ := json.Marshal(emptyIfNilS(r.RouteTo))
	routeBack, _ := json.Marshal(emptyIfNilS(r.RouteBack))
	snrTo, _ := json.Marshal(emptyIfNilF(r.SNRTo))
	snrBack, _ := json.Marshal(emptyIfNilF(r.SNRBack))
	res, err := db.Exec(db.Q(`INSERT INTO traceroutes (originator, destination, route_to, route_back, snr_to, snr_back, hop_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		r.Originator, r.Destination, string(routeTo), string(routeBack), string(snrTo), string(snrBack), r.HopCount)
	if err != nil {
		return fmt.Errorf("insert traceroute: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		r.ID = id
	}
	return nil
}

// LatestTraceroute returns the most recent trace that reached the given
// destination, or sql.ErrNoRows.
func (db *DB) LatestTraceroute(destination string) (*TracerouteRecord, error) {
	row := db.QueryRow(db.Q(`SELECT id, originator, destination, route_to, route_back, snr_to, snr_back, hop_count, created_at
		FROM traceroutes WHERE destination=? ORDER BY id DESC LIMIT 1`), destination)
	return scanTraceroute(row)
}

func (db *DB) ListTraceroutes(limit int) ([]*TracerouteRecord, error) {
	rows, err := db.Query(db.Q(`SELECT id, originator, destination, route_to, route_back, snr_to, snr_back, hop_count, created_at
		FROM traceroutes ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []*TracerouteRecord
	for rows.Next() {
		r, err := scanTraceroute(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func scanTraceroute(row interface{ Scan(...any) error }) (*TracerouteRecord, error) {
	var r TracerouteRecord
	var routeTo, routeBack, snrTo, snrBack string
	var createdAt any
	err := row.Scan(&r.ID, &r.Originator, &r.Destination, &routeTo, &routeBack, &snrTo, &snrBack, &r.HopCount, &createdAt)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(routeTo), &r.RouteTo)
	json.Unmarshal([]byte(routeBack), &r.RouteBack)
	json.Unmarshal([]byte(snrTo), &r.SNRTo)
	json.Unmarshal([]byte(snrBack), &r.SNRBack)
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

// HasTraceroute reports whether any trace has ever recorded the node as
// destination.
func (db *DB) HasTraceroute(destination string) (bool, error) {
	var n int
	err := db.QueryRow(db.Q(`SELECT COUNT(1) FROM traceroutes WHERE destination=?`), destination).Scan(&n)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	return n > 0, nil
}

func emptyIfNilS(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyIfNilF(f []float64) []float64 {
	if f == nil {
		return []float64{}
	}
	return f
}
