package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/me/ringflow/internal/store"
	"github.com/me/ringflow/internal/tracing"
	"github.com/me/ringflow/pkg/model"
)

// RunRound runs one scheduling round: read the waiting pool, score every
// candidate, sequence them to avoid segment conflicts, decide which of up to
// maxSlots to release, then commit those. Nothing is written before every
// decision is made, so a store failure while deciding fails the round with no
// side effects. The result lists committed instructions first, then deferred
// ones in sequence order, then any whose commit failed.
func (e *Engine) RunRound(ctx context.Context, maxSlots int) (sched *model.Schedule, err error) {
	if maxSlots <= 0 {
		maxSlots = e.config.DefaultMaxSlots
	}
	roundID := uuid.New().String()
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, "scheduler.RunRound", "INTERNAL")
	span.WithAttributes(map[string]string{"round_id": roundID}).WithInt("max_slots", maxSlots)
	defer func() { tracing.EndSpan(span, err) }()

	logger := e.logger.With("round_id", roundID)
	now := e.nowMs()

	sched = &model.Schedule{
		RoundID:  roundID,
		Ready:    []model.ScheduledInstruction{},
		Deferred: []model.ScheduledInstruction{},
	}

	members, err := e.store.RangeWaiting(ctx, store.RangeQuery{Desc: true, Limit: e.config.CandidateWindow})
	if err != nil {
		return nil, fmt.Errorf("read waiting pool: %w", err)
	}
	if len(members) == 0 {
		logger.Debug("waiting pool empty")
		return sched, nil
	}

	codes := make([]string, len(members))
	for i, m := range members {
		codes[i] = m.Code
	}
	meta, err := e.store.GetMetadata(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	cands, faulted, err := e.candidates(ctx, codes, meta, now)
	if err != nil {
		return nil, err
	}
	sched.Faulted = faulted

	seq := Sequence(cands, e.config.sequenceConfig())
	admitted, deferred, err := e.admit(ctx, seq, now, maxSlots)
	if err != nil {
		return nil, err
	}
	ready, failed := e.commit(ctx, admitted, now)
	sched.Ready = ready
	sched.Deferred = append(deferred, failed...)

	span.WithInt("candidates", len(cands)).WithInt("ready", len(sched.Ready))
	logger.Info("round complete",
		"candidates", len(cands),
		"ready", len(sched.Ready),
		"deferred", len(sched.Deferred),
		"faulted", len(faulted),
		"duration", time.Since(start))
	return sched, nil
}

// candidates rebuilds, scores and routes the waiting instructions. Codes
// whose metadata vanished were admitted or cancelled concurrently and are
// skipped. Instructions whose priority or enqueue time cannot be read are
// reported as faulted and stay in the pool.
func (e *Engine) candidates(ctx context.Context, codes []string, meta map[string]map[string]string, now int64) ([]Candidate, []string, error) {
	cands := make([]Candidate, 0, len(codes))
	var faulted []string
	for _, code := range codes {
		fields, ok := meta[code]
		if !ok {
			e.logger.Debug("metadata gone, skipping", "instruction_code", code)
			continue
		}
		in, err := model.InstructionFromFields(code, fields)
		if err != nil {
			e.logger.Error("instruction excluded from round", "instruction_code", code, "error", err)
			faulted = append(faulted, code)
			continue
		}

		score, err := e.scorer.Score(ctx, in, now)
		if err != nil {
			return nil, nil, err
		}

		cands = append(cands, Candidate{
			Instruction: in,
			Score:       score,
			Path:        e.ring.Path(in.From, in.To, e.config.Policy),
		})
	}
	return cands, faulted, nil
}
