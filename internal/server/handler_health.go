package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Store     string `json:"store"`
	Waiting   int    `json:"waiting"`
	Upstream  string `json:"upstream"`
	RingNodes int    `json:"ring_nodes"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	resp := healthResponse{
		Status:    "healthy",
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Store:     "ok",
		Upstream:  s.upstream,
		RingNodes: s.ring.Len(),
	}
	n, err := s.store.CountWaiting(r.Context())
	if err != nil {
		s.logger.Error("health: store check failed", "error", err)
		resp.Status = "degraded"
		resp.Store = "error"
	}
	resp.Waiting = n
	respondOK(w, reqID, resp)
}
