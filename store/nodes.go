package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Node is one mesh node. Identity is the stable string id ("!a1b2c3d4");
// the numeric address is volatile and kept only as a routing hint. All
// telemetry fields are pointers so that an absent reading stays absent.
type Node struct {
	ID                 string
	Num                *int64
	ShortName          *string
	LongName           *string
	MacAddr            *string
	HWModel            *string
	Role               *string
	LastHeard          *time.Time
	BatteryLevel       *int
	Voltage            *float64
	ChannelUtilization *float64
	AirUtilTx          *float64
	UptimeSeconds      *int64
	Latitude           *float64
	Longitude          *float64
	Altitude           *int
	HopsAway           *int
	SNR                *float64
	RSSI               *int
	NodeOfInterest     bool
	Aircraft           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// DisplayName prefers the long name, falls back to short name, then id.
func (n *Node) DisplayName() string {
	if n.LongName != nil && *n.LongName != "" {
		return *n.LongName
	}
	if n.ShortName != nil && *n.ShortName != "" {
		return *n.ShortName
	}
	return n.ID
}

// Short returns the short name or the id when none is known.
func (n *Node) Short() string {
	if n.ShortName != nil && *n.ShortName != "" {
		return *n.ShortName
	}
	return n.ID
}

const nodeSelectCols = `id, num, shortname, longname, macaddr, hw_model, role, last_heard,
	battery_level, voltage, channel_utilization, air_util_tx, uptime_seconds,
	latitude, longitude, altitude, hops_away, snr, rssi, node_of_interest, aircraft,
	created_at, updated_at`

func scanMeshNode(row interface{ Scan(...any) error }) (*Node, error) {
	var n Node
	var num, uptime sql.NullInt64
	var short, long, mac, hw, role sql.NullString
	var lastHeard, createdAt, updatedAt any
	var battery, altitude, hops, rssi sql.NullInt64
	var voltage, chanUtil, airUtil, lat, lon, snr sql.NullFloat64
	var noi, aircraft bool
	err := row.Scan(&n.ID, &num, &short, &long, &mac, &hw, &role, &lastHeard,
		&battery, &voltage, &chanUtil, &airUtil, &uptime,
		&lat, &lon, &altitude, &hops, &snr, &rssi, &noi, &aircraft,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	n.Num = nullInt64(num)
	n.ShortName = nullString(short)
	n.LongName = nullString(long)
	n.MacAddr = nullString(mac)
	n.HWModel = nullString(hw)
	n.Role = nullString(role)
	n.BatteryLevel = nullInt(battery)
	n.Voltage = nullFloat(voltage)
	n.ChannelUtilization = nullFloat(chanUtil)
	n.AirUtilTx = nullFloat(airUtil)
	n.UptimeSeconds = nullInt64(uptime)
	n.Latitude = nullFloat(lat)
	n.Longitude = nullFloat(lon)
	n.Altitude = nullInt(altitude)
	n.HopsAway = nullInt(hops)
	n.SNR = nullFloat(snr)
	n.RSSI = nullInt(rssi)
	n.NodeOfInterest = noi
	n.Aircraft = aircraft
	if t := parseTime(lastHeard); !t.IsZero() {
		n.LastHeard = &t
	}
	n.CreatedAt = parseTime(createdAt)
	n.UpdatedAt = parseTime(updatedAt)
	return &n, nil
}

func scanMeshNodes(rows *sql.Rows) ([]*Node, error) {
	var nodes []*Node
	for rows.Next() {
		n, err := scanMeshNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (db *DB) InsertNode(n *Node) error {
	_, err := db.Exec(db.Q(`INSERT INTO nodes (id, num, shortname, longname, macaddr, hw_model, role,
		last_heard, battery_level, voltage, channel_utilization, air_util_tx, uptime_seconds,
		latitude, longitude, altitude, hops_away, snr, rssi, node_of_interest, aircraft)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		n.ID, n.Num, n.ShortName, n.LongName, n.MacAddr, n.HWModel, n.Role,
		timePtrArg(n.LastHeard), n.BatteryLevel, n.Voltage, n.ChannelUtilization, n.AirUtilTx, n.UptimeSeconds,
		n.Latitude, n.Longitude, n.Altitude, n.HopsAway, n.SNR, n.RSSI, n.NodeOfInterest, n.Aircraft)
	if err != nil {
		return fmt.Errorf("insert node %s: %w", n.ID, err)
	}
	return nil
}

// UpdateNode overwrites every mutable column. Callers that want
// merge-not-clobber semantics merge into a fetched Node first.
func (db *DB) UpdateNode(n *Node) error {
	_, err := db.Exec(db.Q(`UPDATE nodes SET num=?, shortname=?, longname=?, macaddr=?, hw_model=?, role=?,
		last_heard=?, battery_level=?, voltage=?, channel_utilization=?, air_util_tx=?, uptime_seconds=?,
		latitude=?, longitude=?, altitude=?, hops_away=?, snr=?, rssi=?,
		node_of_interest=?, aircraft=?, updated_at=datetime('now','localtime') WHERE id=?`),
		n.Num, n.ShortName, n.LongName, n.MacAddr, n.HWModel, n.Role,
		timePtrArg(n.LastHeard), n.BatteryLevel, n.Voltage, n.ChannelUtilization, n.AirUtilTx, n.UptimeSeconds,
		n.Latitude, n.Longitude, n.Altitude, n.HopsAway, n.SNR, n.RSSI,
		n.NodeOfInterest, n.Aircraft, n.ID)
	if err != nil {
		return fmt.Errorf("update node %s: %w", n.ID, err)
	}
	return nil
}

func (db *DB) DeleteNode(id string) error {
	_, err := db.Exec(db.Q(`DELETE FROM nodes WHERE id=?`), id)
	return err
}

func (db *DB) GetNode(id string) (*Node, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM nodes WHERE id=?`, nodeSelectCols)), id)
	return scanMeshNode(row)
}

// FindNodeByName matches short or long name, case-insensitive.
func (db *DB) FindNodeByName(name string) (*Node, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(
		`SELECT %s FROM nodes WHERE LOWER(shortname)=LOWER(?) OR LOWER(longname)=LOWER(?)`, nodeSelectCols)),
		name, name)
	return scanMeshNode(row)
}

func (db *DB) ListNodes() ([]*Node, error) {
	rows, err := db.Query(fmt.Sprintf(`SELECT %s FROM nodes ORDER BY id`, nodeSelectCols))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMeshNodes(rows)
}

// ListNodesHeardSince returns nodes whose last_heard is at or after the cutoff.
func (db *DB) ListNodesHeardSince(cutoff time.Time) ([]*Node, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(
		`SELECT %s FROM nodes WHERE last_heard >= ? ORDER BY last_heard DESC`, nodeSelectCols)),
		formatTime(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMeshNodes(rows)
}

func (db *DB) ListNodesOfInterest() ([]*Node, error) {
	return db.listFlagged("node_of_interest")
}

func (db *DB) ListAircraft() ([]*Node, error) {
	return db.listFlagged("aircraft")
}

func (db *DB) listFlagged(column string) ([]*Node, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(
		`SELECT %s FROM nodes WHERE %s=? ORDER BY shortname`, nodeSelectCols, column)), true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMeshNodes(rows)
}

func (db *DB) SetNodeOfInterest(id string, flag bool) error {
	return db.setFlag(id, "node_of_interest", flag)
}

func (db *DB) SetAircraft(id string, flag bool) error {
	return db.setFlag(id, "aircraft", flag)
}

func (db *DB) setFlag(id, column string, flag bool) error {
	res, err := db.Exec(db.Q(fmt.Sprintf(
		`UPDATE nodes SET %s=?, updated_at=datetime('now','localtime') WHERE id=?`, column)), flag, id)
	if err != nil {
		return fmt.Errorf("set %s on %s: %w", column, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timePtrArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
