package httpapi

import "net/http"

// handlePerfLatency reports rolling per-stage latency of the answer path
// (append, publish, submit) and of snapshot/reconcile work.
func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"feed_mode":  s.survey.FeedMode(),
		"store_mode": s.opts.StoreMode,
		"latency":    s.metrics.SnapshotStages(),
	})
}
