package server

import (
	"net/http"
	"strings"

	"github.com/me/ringflow/internal/topology"
	"github.com/me/ringflow/pkg/model"
)

type pathResponse struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Policy string `json:"policy"`
	topology.Route
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	q := r.URL.Query()

	from, to := q.Get("from"), q.Get("to")
	var errs []model.FieldError
	if strings.TrimSpace(from) == "" {
		errs = append(errs, model.FieldError{Field: "from", Message: "from is required"})
	}
	if strings.TrimSpace(to) == "" {
		errs = append(errs, model.FieldError{Field: "to", Message: "to is required"})
	}
	policy := s.policy
	if raw := q.Get("policy"); raw != "" {
		p, err := topology.ParsePolicy(raw)
		if err != nil {
			errs = append(errs, model.FieldError{Field: "policy", Message: err.Error()})
		}
		policy = p
	}
	if len(errs) > 0 {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid path query", errs...))
		return
	}

	route := s.ring.Route(from, to, policy)
	if route.Segments == nil {
		route.Segments = topology.Path{}
	}
	respondOK(w, reqID, pathResponse{
		From:   topology.Normalize(from),
		To:     topology.Normalize(to),
		Policy: policy.String(),
		Route:  route,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	out, err := s.store.ListStats(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, out)
}
