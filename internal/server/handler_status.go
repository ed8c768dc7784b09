package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/me/ringflow/pkg/model"
)

// statusRequest is a completion report. Time may be RFC 3339 or omitted.
type statusRequest struct {
	Code      string     `json:"instruction_code"`
	Container string     `json:"container_code"`
	From      string     `json:"location_from"`
	To        string     `json:"location_to"`
	Time      *time.Time `json:"time"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	c := model.Completion{
		Code:      req.Code,
		Container: req.Container,
		From:      req.From,
		To:        req.To,
	}
	if req.Time != nil {
		c.FinishedAt = req.Time.UnixMilli()
	}
	if err := s.scheduler.RecordCompletion(r.Context(), c); err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondMessage(w, reqID, true, "status recorded")
}
