package scheduler

import (
	"context"
	"fmt"
	"math"

	"github.com/me/ringflow/internal/topology"
	"github.com/me/ringflow/pkg/model"
)

// Deferral reasons reported on deferred entries.
const (
	ReasonNoSlot              = "no free slot"
	ReasonUpstreamDenied      = "upstream denied release"
	ReasonUpstreamUnavailable = "upstream unavailable"
	ReasonDestinationBusy     = "destination busy"
	ReasonCommitFailed        = "commit failed"
)

// nodeAvailability is the persisted part of the node plan.
type nodeAvailability interface {
	GetNodeAvailability(ctx context.Context, node string) (int64, bool, error)
}

// nodePlan overlays this round's reservations on the persisted destination
// availability. It lives for one round only.
type nodePlan struct {
	store     nodeAvailability
	persisted map[string]int64
	reserved  map[string]int64
}

func newNodePlan(st nodeAvailability) *nodePlan {
	return &nodePlan{
		store:     st,
		persisted: make(map[string]int64),
		reserved:  make(map[string]int64),
	}
}

// planned returns when node is expected to be free: the later of the
// persisted estimate (now when absent) and this round's reservation.
func (p *nodePlan) planned(ctx context.Context, node string, now int64) (int64, error) {
	at, ok := p.persisted[node]
	if !ok {
		stored, found, err := p.store.GetNodeAvailability(ctx, node)
		if err != nil {
			return 0, fmt.Errorf("read availability of %s: %w", node, err)
		}
		at = now
		if found {
			at = stored
		}
		p.persisted[node] = at
	}
	if r, ok := p.reserved[node]; ok && r > at {
		return r, nil
	}
	return at, nil
}

// reserve extends node's reservation to until. Reservations never move back.
func (p *nodePlan) reserve(node string, until int64) int64 {
	if cur, ok := p.reserved[node]; ok && cur >= until {
		return cur
	}
	p.reserved[node] = until
	return until
}

// travelTime returns the expected travel time in ms, falling back to the
// configured default when the pair has no history.
func (e *Engine) travelTime(ctx context.Context, from, to string) (int64, error) {
	ms, ok, err := e.estimator.TravelTime(ctx, from, to)
	if err != nil {
		return 0, err
	}
	if !ok {
		return e.config.DefaultTravelMs, nil
	}
	return int64(math.Round(ms)), nil
}

// admission is a release decision that still has to be committed.
type admission struct {
	entry model.ScheduledInstruction
	node  string
	until int64
}

// admit walks the sequence in order and decides which candidates to release:
// those allowed upstream whose destination will be free on arrival, until
// maxSlots are taken. It only reads from the store; reservations live in the
// round-local plan until commit. A read failure fails the whole round before
// anything has been written.
func (e *Engine) admit(ctx context.Context, seq []Candidate, now int64, maxSlots int) (admitted []admission, deferred []model.ScheduledInstruction, err error) {
	plan := newNodePlan(e.store)
	deferred = []model.ScheduledInstruction{}

	postpone := func(entry model.ScheduledInstruction, reason string) {
		entry.Decision = model.DecisionDeferred
		entry.Reason = reason
		deferred = append(deferred, entry)
	}

	for _, c := range seq {
		in := c.Instruction
		entry := model.ScheduledInstruction{Instruction: in, Score: c.Score}
		logger := e.logger.With("instruction_code", in.Code)

		if len(admitted) >= maxSlots {
			postpone(entry, ReasonNoSlot)
			continue
		}

		allowed, err := e.authority.MayRelease(ctx, in.From, in.To)
		if err != nil {
			logger.Warn("upstream query failed, deferring", "error", err)
			postpone(entry, ReasonUpstreamUnavailable)
			continue
		}
		if !allowed {
			logger.Debug("upstream denied release")
			postpone(entry, ReasonUpstreamDenied)
			continue
		}

		travel, err := e.travelTime(ctx, in.From, in.To)
		if err != nil {
			return nil, nil, fmt.Errorf("travel time for %s: %w", in.Code, err)
		}
		eta := now + travel
		entry.ETA = eta

		node := topology.Normalize(in.To)
		planned, err := plan.planned(ctx, node, now)
		if err != nil {
			return nil, nil, err
		}
		if eta+e.config.SafeEarlyArriveMs < planned {
			logger.Debug("destination busy on arrival", "eta", eta, "available_at", planned)
			postpone(entry, ReasonDestinationBusy)
			continue
		}

		until := plan.reserve(node, max(planned, eta+e.config.ProcessingMs))
		entry.Decision = model.DecisionReady
		admitted = append(admitted, admission{entry: entry, node: node, until: until})
		logger.Debug("instruction admitted", "eta", eta, "destination", node, "reserved_until", until)
	}
	return admitted, deferred, nil
}

// commit persists the admissions in order. Each one is a single store
// transaction: an admission that another round or a cancel got to first is
// dropped, and one whose write fails is deferred with ReasonCommitFailed and
// stays in the pool. Earlier commits stand either way.
func (e *Engine) commit(ctx context.Context, admitted []admission, now int64) (ready, failed []model.ScheduledInstruction) {
	ready = []model.ScheduledInstruction{}
	for _, a := range admitted {
		code := a.entry.Code
		won, err := e.store.StartInstruction(ctx, code, now, a.node, a.until)
		if err != nil {
			e.logger.Error("commit failed, instruction stays waiting", "instruction_code", code, "error", err)
			a.entry.Decision = model.DecisionDeferred
			a.entry.Reason = ReasonCommitFailed
			failed = append(failed, a.entry)
			continue
		}
		if !won {
			e.logger.Debug("instruction taken by a concurrent round or cancelled", "instruction_code", code)
			continue
		}
		ready = append(ready, a.entry)
	}
	return ready, failed
}
