package scheduler

import (
	"context"
	"fmt"
	"math"

	"github.com/me/ringflow/pkg/model"
)

// ErrMissingEnqueueTime marks an instruction whose metadata has no usable
// enqueue time. Such an instruction cannot be scored.
var ErrMissingEnqueueTime = model.ErrMissingEnqueueTime

// CostEstimator supplies the risk-adjusted expected travel cost in ms.
type CostEstimator interface {
	Cost(ctx context.Context, from, to string) (float64, error)
}

// Scorer ranks candidates by priority, time waited and expected travel cost.
type Scorer struct {
	cost    CostEstimator
	weights Weights
}

// NewScorer creates a Scorer.
func NewScorer(cost CostEstimator, w Weights) *Scorer {
	return &Scorer{cost: cost, weights: w}
}

// Score returns Wp*priority + Ww*waitMinutes - Wt*costMs at time now (Unix ms).
// Wait time is clamped at zero.
func (s *Scorer) Score(ctx context.Context, in model.Instruction, now int64) (float64, error) {
	if in.EnqueuedAt <= 0 {
		return 0, fmt.Errorf("instruction %s: %w", in.Code, ErrMissingEnqueueTime)
	}
	waitMinutes := math.Max(0, float64(now-in.EnqueuedAt)/60000)

	cost, err := s.cost.Cost(ctx, in.From, in.To)
	if err != nil {
		return 0, fmt.Errorf("cost for %s: %w", in.Code, err)
	}

	return s.weights.Priority*float64(in.Priority) +
		s.weights.WaitPerMinute*waitMinutes -
		s.weights.CostPerMs*cost, nil
}
