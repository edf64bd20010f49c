package sitrep

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// MeshData is the JSON snapshot written for external map consumers.
type MeshData struct {
	LastUpdate string         `json:"last_update"`
	SitrepTime string         `json:"sitrep_time"`
	Nodes      []MeshDataNode `json:"nodes"`
	Sitrep     []string       `json:"sitrep"`
}

// MeshDataNode lists connections as peer short names; that is the
// contract the external visualizer draws edges from.
type MeshDataNode struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Latitude    *float64 `json:"lat"`
	Longitude   *float64 `json:"lon"`
	Altitude    *int     `json:"alt"`
	HopsAway    *int     `json:"hopsAway"`
	Role        string   `json:"role"`
	Aircraft    bool     `json:"aircraft"`
	Connections []string `json:"connections"`
}

// WriteMeshData renders the node and edge snapshot to path. Edges merge
// the topology graph within the recency window with implied direct
// links between each zero-hop node and the local node.
func (g *Generator) WriteMeshData(path, localID string, now time.Time, sitrepLines []string) error {
	nodes, err := g.reg.All()
	if err != nil {
		return fmt.Errorf("mesh data: nodes: %w", err)
	}
	edges, err := g.topo.RecentEdges(now)
	if err != nil {
		return fmt.Errorf("mesh data: edges: %w", err)
	}

	shortOf := make(map[string]string, len(nodes))
	for _, n := range nodes {
		shortOf[n.ID] = n.Short()
	}
	name := func(id string) string {
		if s, ok := shortOf[id]; ok {
			return s
		}
		return id
	}

	conns := make(map[string][]string)
	add := func(id, peer string) {
		for _, have := range conns[id] {
			if have == peer {
				return
			}
		}
		conns[id] = append(conns[id], peer)
	}
	for _, e := range edges {
		add(e.Node1, name(e.Node2))
	}
	// A zero-hop node is by definition directly linked to us, and we to
	// it.
	for _, n := range nodes {
		if n.HopsAway != nil && *n.HopsAway == 0 && n.ID != localID {
			add(n.ID, name(localID))
			add(localID, n.Short())
		}
	}

	data := MeshData{
		LastUpdate: now.UTC().Format(time.RFC3339),
		SitrepTime: now.UTC().Format("1504Z 02 Jan 2006"),
		Sitrep:     sitrepLines,
	}
	for _, n := range nodes {
		entry := MeshDataNode{
			ID:          n.ID,
			Name:        n.DisplayName(),
			Latitude:    n.Latitude,
			Longitude:   n.Longitude,
			Altitude:    n.Altitude,
			HopsAway:    n.HopsAway,
			Aircraft:    n.Aircraft,
			Connections: conns[n.ID],
		}
		if n.Role != nil {
			entry.Role = *n.Role
		}
		data.Nodes = append(data.Nodes, entry)
	}

	blob, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("mesh data: encode: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0644); err != nil {
		return fmt.Errorf("mesh data: write: %w", err)
	}
	return os.Rename(tmp, path)
}
