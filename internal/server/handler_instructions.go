package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/ringflow/internal/store"
	"github.com/me/ringflow/pkg/model"
)

// maxWaitingList bounds GET /instructions/waiting.
const maxWaitingList = 1000

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req model.InstructionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	in, err := s.scheduler.Submit(r.Context(), req)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondCreated(w, reqID, in)
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var reqs []model.InstructionRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	out, err := s.scheduler.SubmitBatch(r.Context(), reqs)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondCreated(w, reqID, model.BatchResult{Accepted: len(out)})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	code := chi.URLParam(r, "code")

	cancelled, err := s.scheduler.Cancel(r.Context(), code)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	if !cancelled {
		respondError(w, reqID, http.StatusConflict, model.NewConflictError("instruction already started"))
		return
	}
	respondMessage(w, reqID, model.CancelResult{Code: code, Cancelled: true}, "instruction "+code+" cancelled")
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if err := s.scheduler.Clear(r.Context()); err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondMessage(w, reqID, nil, "waiting pool cleared")
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	maxSlots, ok := intParam(w, r, reqID, "max")
	if !ok {
		return
	}
	sched, err := s.scheduler.RunRound(r.Context(), maxSlots)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	if len(sched.Ready) == 0 {
		respondMessage(w, reqID, sched, "no instruction ready")
		return
	}
	respondOK(w, reqID, sched)
}

type waitingEntry struct {
	model.Instruction
	Score float64 `json:"score"`
	Fault string  `json:"fault,omitempty"` // metadata that rounds cannot read
}

func (s *Server) handleListWaiting(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	limit, ok := intParam(w, r, reqID, "limit")
	if !ok {
		return
	}
	if limit <= 0 || limit > maxWaitingList {
		limit = maxWaitingList
	}

	members, err := s.store.RangeWaiting(r.Context(), store.RangeQuery{Desc: true, Limit: limit})
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	codes := make([]string, len(members))
	for i, m := range members {
		codes[i] = m.Code
	}
	meta, err := s.store.GetMetadata(r.Context(), codes)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}

	out := make([]waitingEntry, 0, len(members))
	for _, m := range members {
		fields, ok := meta[m.Code]
		if !ok {
			continue
		}
		entry := waitingEntry{Score: m.Score}
		in, err := model.InstructionFromFields(m.Code, fields)
		if err != nil {
			entry.Fault = err.Error()
		}
		entry.Instruction = in
		out = append(out, entry)
	}
	respondOK(w, reqID, out)
}

// intParam reads an optional integer query parameter, answering 400 itself
// when the value is malformed.
func intParam(w http.ResponseWriter, r *http.Request, reqID, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid query parameter",
				model.FieldError{Field: name, Message: name + " must be a non-negative integer"}))
		return 0, false
	}
	return v, true
}
