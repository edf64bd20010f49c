package www

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"meshmon/logger"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("www: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handlers) apiHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"link":    h.engine.Supervisor().Describe(),
		"packets": h.engine.Counters().Total(),
		"started": h.engine.Counters().StartedAt().Format(time.RFC3339),
	})
}

func (h *Handlers) apiListNodes(w http.ResponseWriter, r *http.Request) {
	metas, err := h.nodes.GetAllNodeMeta(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(metas), "nodes": metas})
}

func (h *Handlers) apiGetNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	meta, err := h.nodes.GetNodeMeta(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (h *Handlers) apiTopology(w http.ResponseWriter, r *http.Request) {
	edges, err := h.engine.Topology().RecentEdges(time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	type edge struct {
		Node1    string   `json:"node1"`
		Node2    string   `json:"node2"`
		Type     string   `json:"type"`
		SNR      *float64 `json:"snr,omitempty"`
		HopCount *int     `json:"hop_count,omitempty"`
		LastSeen string   `json:"last_seen"`
	}
	out := make([]edge, 0, len(edges))
	for _, e := range edges {
		out = append(out, edge{
			Node1:    e.Node1,
			Node2:    e.Node2,
			Type:     e.ConnectionType,
			SNR:      e.SNR,
			HopCount: e.HopCount,
			LastSeen: e.LastSeen.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "edges": out})
}

func (h *Handlers) apiSitrep(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	lines := h.engine.LastSitrep()
	broadcast := true
	if len(lines) == 0 {
		lines = h.engine.RenderSitrep(now)
		broadcast = false
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"generated_at": now.Format(time.RFC3339),
		"broadcast":    broadcast,
		"lines":        lines,
	})
}
