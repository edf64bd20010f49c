// Package registry maintains the authoritative node inventory. Every
// inbound packet funnels through Upsert before any other handling, so
// the registry sees each node's freshest identity and telemetry.
package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"meshmon/store"
)

var (
	// ErrMalformedObservation marks an observation without a stable id.
	ErrMalformedObservation = errors.New("malformed observation: missing node id")
	// ErrUnknownNode marks an operation targeting an id the registry
	// has never seen.
	ErrUnknownNode = errors.New("unknown node")
)

// Observation is one sighting of a node. Only the id is required;
// absent fields leave the stored values untouched.
type Observation struct {
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
}

// UpsertResult reports what an observation changed.
type UpsertResult struct {
	Node              *store.Node
	IsNew             bool
	NameChanged       bool
	PreviousShortName string
	PreviousLongName  string
	// PreviousLastHeard is the node's last_heard before this sighting,
	// nil for first sightings and never-heard nodes.
	PreviousLastHeard *time.Time
}

type Registry struct {
	db *store.DB
}

func New(db *store.DB) *Registry {
	return &Registry{db: db}
}

// Upsert records an observation, keyed on the stable string id.
// Re-observing a known node merges the present fields and leaves the
// rest alone, so a telemetry-only packet never clobbers a position.
func (r *Registry) Upsert(obs Observation) (UpsertResult, error) {
	if obs.ID == "" {
		return UpsertResult{}, ErrMalformedObservation
	}

	existing, err := r.db.GetNode(obs.ID)
	if err == sql.ErrNoRows {
		n := nodeFromObservation(obs)
		if err := r.db.InsertNode(n); err != nil {
			return UpsertResult{}, fmt.Errorf("registry: %w", err)
		}
		return UpsertResult{Node: n, IsNew: true}, nil
	}
	if err != nil {
		return UpsertResult{}, fmt.Errorf("registry: %w", err)
	}

	res := UpsertResult{Node: existing, PreviousLastHeard: existing.LastHeard}
	if obs.ShortName != nil && existing.ShortName != nil && *obs.ShortName != *existing.ShortName {
		res.NameChanged = true
		res.PreviousShortName = *existing.ShortName
	}
	if obs.LongName != nil && existing.LongName != nil && *obs.LongName != *existing.LongName {
		res.NameChanged = true
		res.PreviousLongName = *existing.LongName
	}

	mergeObservation(existing, obs)
	if err := r.db.UpdateNode(existing); err != nil {
		return UpsertResult{}, fmt.Errorf("registry: %w", err)
	}
	return res, nil
}

func nodeFromObservation(obs Observation) *store.Node {
	return &store.Node{
		ID:                 obs.ID,
		Num:                obs.Num,
		ShortName:          obs.ShortName,
		LongName:           obs.LongName,
		MacAddr:            obs.MacAddr,
		HWModel:            obs.HWModel,
		Role:               obs.Role,
		LastHeard:          obs.LastHeard,
		BatteryLevel:       obs.BatteryLevel,
		Voltage:            obs.Voltage,
		ChannelUtilization: obs.ChannelUtilization,
		AirUtilTx:          obs.AirUtilTx,
		UptimeSeconds:      obs.UptimeSeconds,
		Latitude:           obs.Latitude,
		Longitude:          obs.Longitude,
		Altitude:           obs.Altitude,
		HopsAway:           obs.HopsAway,
		SNR:                obs.SNR,
		RSSI:               obs.RSSI,
	}
}

func mergeObservation(n *store.Node, obs Observation) {
	if obs.Num != nil {
		n.Num = obs.Num
	}
	if obs.ShortName != nil {
		n.ShortName = obs.ShortName
	}
	if obs.LongName != nil {
		n.LongName = obs.LongName
	}
	if obs.MacAddr != nil {
		n.MacAddr = obs.MacAddr
	}
	if obs.HWModel != nil {
		n.HWModel = obs.HWModel
	}
	if obs.Role != nil {
		n.Role = obs.Role
	}
	if obs.LastHeard != nil {
		n.LastHeard = obs.LastHeard
	}
	if obs.BatteryLevel != nil {
		n.BatteryLevel = obs.BatteryLevel
	}
	if obs.Voltage != nil {
		n.Voltage = obs.Voltage
	}
	if obs.ChannelUtilization != nil {
		n.ChannelUtilization = obs.ChannelUtilization
	}
	if obs.AirUtilTx != nil {
		n.AirUtilTx = obs.AirUtilTx
	}
	if obs.UptimeSeconds != nil {
		n.UptimeSeconds = obs.UptimeSeconds
	}
	if obs.Latitude != nil {
		n.Latitude = obs.Latitude
	}
	if obs.Longitude != nil {
		n.Longitude = obs.Longitude
	}
	if obs.Altitude != nil {
		n.Altitude = obs.Altitude
	}
	if obs.HopsAway != nil {
		n.HopsAway = obs.HopsAway
	}
	if obs.SNR != nil {
		n.SNR = obs.SNR
	}
	if obs.RSSI != nil {
		n.RSSI = obs.RSSI
	}
}

func (r *Registry) Get(id string) (*store.Node, error) {
	n, err := r.db.GetNode(id)
	if err == sql.ErrNoRows {
		return nil, ErrUnknownNode
	}
	return n, err
}

// ByName resolves a command target, matching short or long name
// case-insensitively.
func (r *Registry) ByName(name string) (*store.Node, error) {
	n, err := r.db.FindNodeByName(name)
	if err == sql.ErrNoRows {
		return nil, ErrUnknownNode
	}
	return n, err
}

func (r *Registry) All() ([]*store.Node, error) {
	return r.db.ListNodes()
}

// ActiveSince returns nodes heard at or after the cutoff.
func (r *Registry) ActiveSince(cutoff time.Time) ([]*store.Node, error) {
	return r.db.ListNodesHeardSince(cutoff)
}

func (r *Registry) SetNodeOfInterest(id string, flag bool) error {
	return r.wrapFlag(r.db.SetNodeOfInterest(id, flag))
}

func (r *Registry) SetAircraft(id string, flag bool) error {
	return r.wrapFlag(r.db.SetAircraft(id, flag))
}

func (r *Registry) wrapFlag(err error) error {
	if err == sql.ErrNoRows {
		return ErrUnknownNode
	}
	return err
}

func (r *Registry) IsNodeOfInterest(id string) (bool, error) {
	n, err := r.Get(id)
	if err != nil {
		return false, err
	}
	return n.NodeOfInterest, nil
}

func (r *Registry) IsAircraft(id string) (bool, error) {
	n, err := r.Get(id)
	if err != nil {
		return false, err
	}
	return n.Aircraft, nil
}

// Remove hard-deletes a node. Operator command only; normal decay is
// handled by freshness windows, not deletion.
func (r *Registry) Remove(id string) error {
	if _, err := r.Get(id); err != nil {
		return err
	}
	return r.db.DeleteNode(id)
}

// NodesOfInterest returns the flagged nodes' short names.
func (r *Registry) NodesOfInterest() ([]*store.Node, error) {
	return r.db.ListNodesOfInterest()
}

// Aircraft returns the nodes currently flagged as airborne.
func (r *Registry) Aircraft() ([]*store.Node, error) {
	return r.db.ListAircraft()
}
