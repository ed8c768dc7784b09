package scheduler

import (
	"github.com/me/ringflow/internal/topology"
	"github.com/me/ringflow/pkg/model"
)

// Candidate is a scored waiting instruction with its resolved path.
type Candidate struct {
	Instruction model.Instruction
	Score       float64
	Path        topology.Path
}

// SequenceConfig holds the conflict-avoidance parameters.
type SequenceConfig struct {
	LookBack        int
	PenaltySame     float64
	PenaltyOpposite float64
	Weight          float64
}

func (c Config) sequenceConfig() SequenceConfig {
	return SequenceConfig{
		LookBack:        c.LookBack,
		PenaltySame:     c.PenaltySame,
		PenaltyOpposite: c.PenaltyOpposite,
		Weight:          c.Weights.Conflict,
	}
}

// Sequence orders candidates greedily. At each step it places the remaining
// candidate with the highest score minus Weight times its conflict penalty
// against the last LookBack placed candidates. Ties keep input order.
func Sequence(cands []Candidate, cfg SequenceConfig) []Candidate {
	remaining := make([]Candidate, len(cands))
	copy(remaining, cands)
	ordered := make([]Candidate, 0, len(cands))

	for len(remaining) > 0 {
		var recent []Candidate
		if cfg.LookBack > 0 {
			recent = ordered[max(0, len(ordered)-cfg.LookBack):]
		}

		best := 0
		bestScore := 0.0
		for i, c := range remaining {
			final := c.Score - cfg.Weight*conflictPenalty(c.Path, recent, cfg)
			if i == 0 || final > bestScore {
				best, bestScore = i, final
			}
		}
		ordered = append(ordered, remaining[best])
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return ordered
}

// conflictPenalty sums, over every placed candidate, PenaltySame for each
// segment shared in the same direction and PenaltyOpposite for each segment
// shared in the opposite direction.
func conflictPenalty(path topology.Path, placed []Candidate, cfg SequenceConfig) float64 {
	if len(path) == 0 {
		return 0
	}
	var penalty float64
	for _, p := range placed {
		for _, a := range path {
			for _, b := range p.Path {
				if a.ID != b.ID {
					continue
				}
				if a.Dir == b.Dir {
					penalty += cfg.PenaltySame
				} else {
					penalty += cfg.PenaltyOpposite
				}
			}
		}
	}
	return penalty
}
