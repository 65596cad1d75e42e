package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleRenderStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"render": s.renderer.Stats(),
	}
	if s.captures != nil {
		resp["capture_queue_depth"] = s.captures.QueueDepth()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
