package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "RingFlow API",
		Version:     "v1",
		Description: "Ring conveyor instruction scheduling and admission control",
		Endpoints: []endpointInfo{
			{"/api/v1/instructions", []string{"POST", "DELETE"}, "Submit one instruction; DELETE clears the waiting pool"},
			{"/api/v1/instructions/batch", []string{"POST"}, "Submit several instructions atomically"},
			{"/api/v1/instructions/waiting", []string{"GET"}, "List waiting instructions by priority"},
			{"/api/v1/instructions/schedule", []string{"GET"}, "Run a scheduling round (?max=N slots)"},
			{"/api/v1/instructions/{code}", []string{"DELETE"}, "Cancel a waiting instruction"},
			{"/api/v1/status", []string{"POST"}, "Report a finished instruction"},
			{"/api/v1/topology/path", []string{"GET"}, "Resolve the ring path between two locations"},
			{"/api/v1/stats", []string{"GET"}, "Travel-time statistics (?prefix=od:)"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
