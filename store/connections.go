package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Connection is one observed edge between two nodes. Uniqueness is on
// (node1, node2, connection_type); re-observation refreshes snr,
// hop_count and last_seen. Rows are never deleted; stale edges are
// filtered at read time.
type Connection struct {
	ID             int64
	Node1          string
	Node2          string
	ConnectionType string
	SNR            *float64
	HopCount       *int
	LastSeen       time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const connSelectCols = `id, node1, node2, connection_type, snr, hop_count, last_seen, created_at, updated_at`

// UpsertConnection records or refreshes an edge observation.
func (db *DB) UpsertConnection(node1, node2, connType string, snr *float64, hopCount *int, seen time.Time) error {
	_, err := db.Exec(db.Q(`INSERT INTO connections (node1, node2, connection_type, snr, hop_count, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (node1, node2, connection_type) DO UPDATE SET
			snr=excluded.snr, hop_count=excluded.hop_count, last_seen=excluded.last_seen,
			updated_at=datetime('now','localtime')`),
		node1, node2, connType, snr, hopCount, formatTime(seen))
	if err != nil {
		return fmt.Errorf("upsert connection %s-%s: %w", node1, node2, err)
	}
	return nil
}

// ListConnectionsSince returns edges seen at or after the cutoff.
func (db *DB) ListConnectionsSince(cutoff time.Time) ([]*Connection, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(
		`SELECT %s FROM connections WHERE last_seen >= ? ORDER BY last_seen DESC`, connSelectCols)),
		formatTime(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConnections(rows)
}

// ListNodeConnections returns recent edges touching the node on either end.
func (db *DB) ListNodeConnections(nodeID string, cutoff time.Time) ([]*Connection, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(
		`SELECT %s FROM connections WHERE (node1=? OR node2=?) AND last_seen >= ? ORDER BY last_seen DESC`,
		connSelectCols)), nodeID, nodeID, formatTime(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConnections(rows)
}

func scanConnections(rows *sql.Rows) ([]*Connection, error) {
	var conns []*Connection
	for rows.Next() {
		var c Connection
		var snr sql.NullFloat64
		var hops sql.NullInt64
		var lastSeen, createdAt, updatedAt any
		if err := rows.Scan(&c.ID, &c.Node1, &c.Node2, &c.ConnectionType, &snr, &hops, &lastSeen, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		c.SNR = nullFloat(snr)
		c.HopCount = nullInt(hops)
		c.LastSeen = parseTime(lastSeen)
		c.CreatedAt = parseTime(createdAt)
		c.UpdatedAt = parseTime(updatedAt)
		conns = append(conns, &c)
	}
	return conns, rows.Err()
}
