package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/me/ringflow/internal/store"
	"github.com/me/ringflow/pkg/model"
)

// Submit validates req and adds it to the waiting pool scored by priority.
// A code that has already been started is rejected with a CONFLICT error.
func (e *Engine) Submit(ctx context.Context, req model.InstructionRequest) (model.Instruction, error) {
	if errs := req.Validate(); len(errs) > 0 {
		return model.Instruction{}, model.NewValidationError("invalid instruction", errs...)
	}
	in := req.Instruction()
	started, err := e.started(ctx, in.Code)
	if err != nil {
		return model.Instruction{}, err
	}
	if started {
		return model.Instruction{}, model.NewConflictError("instruction " + in.Code + " already started")
	}
	in.EnqueuedAt = e.nowMs()

	if err := e.store.AddWaiting(ctx, []store.WaitingItem{waitingItem(in)}); err != nil {
		return model.Instruction{}, fmt.Errorf("enqueue %s: %w", in.Code, err)
	}
	e.logger.Info("instruction submitted", "instruction_code", in.Code,
		"location_from", in.From, "location_to", in.To, "priority", in.Priority)
	return in, nil
}

// SubmitBatch validates every request and enqueues them in one transaction.
// Any invalid or already started request rejects the whole batch.
func (e *Engine) SubmitBatch(ctx context.Context, reqs []model.InstructionRequest) ([]model.Instruction, error) {
	if len(reqs) == 0 {
		return nil, model.NewValidationError("batch is empty")
	}

	var errs []model.FieldError
	seen := make(map[string]int, len(reqs))
	for i := range reqs {
		idx := i
		for _, fe := range reqs[i].Validate() {
			fe.Index = &idx
			errs = append(errs, fe)
		}
		code := strings.TrimSpace(reqs[i].Code)
		if code == "" {
			continue
		}
		if first, dup := seen[code]; dup {
			errs = append(errs, model.FieldError{
				Field:   model.FieldCode,
				Index:   &idx,
				Message: fmt.Sprintf("duplicate instruction_code %q (first at index %d)", code, first),
			})
			continue
		}
		seen[code] = i
	}
	if len(errs) > 0 {
		return nil, model.NewValidationError("invalid instruction batch", errs...)
	}

	var conflicts []model.FieldError
	for i := range reqs {
		idx := i
		code := strings.TrimSpace(reqs[i].Code)
		started, err := e.started(ctx, code)
		if err != nil {
			return nil, err
		}
		if started {
			conflicts = append(conflicts, model.FieldError{
				Field:   model.FieldCode,
				Index:   &idx,
				Message: fmt.Sprintf("instruction %s already started", code),
			})
		}
	}
	if len(conflicts) > 0 {
		return nil, &model.APIError{
			Code:    model.ErrConflict,
			Message: "instruction batch contains started instructions",
			Details: conflicts,
		}
	}

	now := e.nowMs()
	out := make([]model.Instruction, len(reqs))
	items := make([]store.WaitingItem, len(reqs))
	for i := range reqs {
		in := reqs[i].Instruction()
		in.EnqueuedAt = now
		out[i] = in
		items[i] = waitingItem(in)
	}
	if err := e.store.AddWaiting(ctx, items); err != nil {
		return nil, fmt.Errorf("enqueue batch: %w", err)
	}
	e.logger.Info("instruction batch submitted", "count", len(out))
	return out, nil
}

// Cancel removes a waiting instruction and its metadata.
func (e *Engine) Cancel(ctx context.Context, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return false, model.NewValidationError("instruction_code is required",
			model.FieldError{Field: model.FieldCode, Message: "instruction_code is required"})
	}
	took, err := e.store.TakeWaiting(ctx, code)
	if err != nil {
		return false, fmt.Errorf("cancel %s: %w", code, err)
	}
	if took {
		e.logger.Info("instruction cancelled", "instruction_code", code)
	} else {
		e.logger.Debug("cancel ignored, instruction not waiting", "instruction_code", code)
	}
	return took, nil
}

// Clear drops the waiting pool, all metadata and all start markers.
// Statistics and availability estimates are kept.
func (e *Engine) Clear(ctx context.Context) error {
	if err := e.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	e.logger.Info("waiting pool cleared")
	return nil
}

// started reports whether code carries a start marker. A started code stays
// out of the pool until Clear removes its marker; re-adding it would leave an
// entry no round can ever commit.
func (e *Engine) started(ctx context.Context, code string) (bool, error) {
	_, ok, err := e.store.GetStartMarker(ctx, code)
	if err != nil {
		return false, fmt.Errorf("read start marker of %s: %w", code, err)
	}
	return ok, nil
}

func waitingItem(in model.Instruction) store.WaitingItem {
	return store.WaitingItem{
		Code:   in.Code,
		Score:  float64(in.Priority),
		Fields: in.Fields(),
	}
}
