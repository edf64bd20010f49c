// Package nodestate mirrors node records into redis so web reads skip
// SQL. SQL stays authoritative; the mirror is rebuilt from it on startup
// and the monitor runs fine with redis absent.
package nodestate

import (
	"context"
	"database/sql"

	"meshmon/logger"
	"meshmon/store"
)

// Manager is the write-through mirror: SQL first, then redis. A nil
// redis store disables mirroring and every read falls back to SQL.
type Manager struct {
	db    *store.DB
	redis *RedisStore
}

func NewManager(db *store.DB, redis *RedisStore) *Manager {
	return &Manager{db: db, redis: redis}
}

// Enabled reports whether a redis backend is attached.
func (m *Manager) Enabled() bool { return m.redis != nil }

// MirrorNode refreshes the cached meta for one node.
func (m *Manager) MirrorNode(n *store.Node) error {
	if m.redis == nil {
		return nil
	}
	return m.redis.SetNodeMeta(context.Background(), metaFromNode(n))
}

// RemoveNode drops a node from the cache.
func (m *Manager) RemoveNode(nodeID string) error {
	if m.redis == nil {
		return nil
	}
	return m.redis.RemoveNode(context.Background(), nodeID)
}

// GetNodeMeta reads from redis, falling back to SQL on miss or error.
func (m *Manager) GetNodeMeta(ctx context.Context, nodeID string) (*NodeMeta, error) {
	if m.redis != nil {
		meta, err := m.redis.GetNodeMeta(ctx, nodeID)
		if err == nil && meta != nil {
			return meta, nil
		}
		if err != nil {
			logger.Warnf("nodestate: redis get %s: %v", nodeID, err)
		}
	}

	n, err := m.db.GetNode(nodeID)
	if err != nil {
		return nil, err
	}
	return metaFromNode(n), nil
}

// GetAllNodeMeta reads every cached node, falling back to SQL when the
// cache is empty or unavailable.
func (m *Manager) GetAllNodeMeta(ctx context.Context) ([]*NodeMeta, error) {
	if m.redis != nil {
		ids, err := m.redis.GetAllNodeIDs(ctx)
		if err == nil && len(ids) > 0 {
			metas := make([]*NodeMeta, 0, len(ids))
			for _, id := range ids {
				meta, err := m.redis.GetNodeMeta(ctx, id)
				if err != nil || meta == nil {
					continue
				}
				metas = append(metas, meta)
			}
			return metas, nil
		}
		if err != nil {
			logger.Warnf("nodestate: redis list: %v", err)
		}
	}

	nodes, err := m.db.ListNodes()
	if err != nil {
		return nil, err
	}
	metas := make([]*NodeMeta, 0, len(nodes))
	for _, n := range nodes {
		metas = append(metas, metaFromNode(n))
	}
	return metas, nil
}

// SyncFromSQL rebuilds the whole cache from SQL. Called on startup so a
// stale or flushed redis never serves old flags.
func (m *Manager) SyncFromSQL(ctx context.Context) error {
	if m.redis == nil {
		return nil
	}
	if err := m.redis.FlushAll(ctx); err != nil {
		return err
	}

	nodes, err := m.db.ListNodes()
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if err := m.redis.SetNodeMeta(ctx, metaFromNode(n)); err != nil {
			logger.Warnf("nodestate: sync %s: %v", n.ID, err)
		}
	}
	logger.Infof("nodestate: synced %d nodes to redis", len(nodes))
	return nil
}

// RefreshNode re-reads a node from SQL and mirrors it. Unknown ids are
// removed from the cache instead.
func (m *Manager) RefreshNode(nodeID string) {
	if m.redis == nil {
		return
	}
	n, err := m.db.GetNode(nodeID)
	if err == sql.ErrNoRows {
		if err := m.RemoveNode(nodeID); err != nil {
			logger.Warnf("nodestate: remove %s: %v", nodeID, err)
		}
		return
	}
	if err != nil {
		logger.Warnf("nodestate: refresh %s: %v", nodeID, err)
		return
	}
	if err := m.MirrorNode(n); err != nil {
		logger.Warnf("nodestate: mirror %s: %v", nodeID, err)
	}
}

func metaFromNode(n *store.Node) *NodeMeta {
	meta := &NodeMeta{
		ID:             n.ID,
		LastHeard:      n.LastHeard,
		HopsAway:       n.HopsAway,
		SNR:            n.SNR,
		RSSI:           n.RSSI,
		BatteryLevel:   n.BatteryLevel,
		Latitude:       n.Latitude,
		Longitude:      n.Longitude,
		Altitude:       n.Altitude,
		NodeOfInterest: n.NodeOfInterest,
		Aircraft:       n.Aircraft,
	}
	if n.ShortName != nil {
		meta.ShortName = *n.ShortName
	}
	if n.LongName != nil {
		meta.LongName = *n.LongName
	}
	if n.Role != nil {
		meta.Role = *n.Role
	}
	return meta
}
