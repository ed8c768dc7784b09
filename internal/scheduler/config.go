package scheduler

import (
	"fmt"

	"github.com/me/ringflow/internal/stats"
	"github.com/me/ringflow/internal/topology"
)

// Weights are the scoring and sequencing coefficients.
type Weights struct {
	Priority      float64 `yaml:"priority"`        // Wp, per priority unit
	WaitPerMinute float64 `yaml:"wait_per_minute"` // Ww, per minute waited
	CostPerMs     float64 `yaml:"cost_per_ms"`     // Wt, per ms of expected travel
	Conflict      float64 `yaml:"conflict"`        // Wc, per unit of conflict penalty
}

// Config holds engine configuration.
type Config struct {
	Weights Weights `yaml:"weights"`

	// Sequencing
	LookBack        int             `yaml:"lookback"`
	PenaltySame     float64         `yaml:"penalty_same_direction"`
	PenaltyOpposite float64         `yaml:"penalty_opposite_direction"`
	Policy          topology.Policy `yaml:"policy"`

	// Admission
	SafeEarlyArriveMs int64 `yaml:"safe_early_arrive_ms"`
	ProcessingMs      int64 `yaml:"processing_ms"`
	DefaultTravelMs   int64 `yaml:"default_travel_ms"`
	DefaultMaxSlots   int   `yaml:"default_max_slots"`

	// CandidateWindow caps how many top-scored waiting instructions a round
	// considers. 0 considers the whole pool.
	CandidateWindow int `yaml:"candidate_window"`

	// Container continuity gaps outside [min, max] are not learned.
	ContinuityMinMs int64 `yaml:"continuity_min_ms"`
	ContinuityMaxMs int64 `yaml:"continuity_max_ms"`

	Stats stats.Config `yaml:"stats"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Priority:      1000,
			WaitPerMinute: 1,
			CostPerMs:     0.001,
			Conflict:      50,
		},
		LookBack:          3,
		PenaltySame:       1,
		PenaltyOpposite:   5,
		Policy:            topology.Shortest,
		SafeEarlyArriveMs: 5000,
		ProcessingMs:      10000,
		DefaultTravelMs:   30000,
		DefaultMaxSlots:   5,
		ContinuityMinMs:   1000,
		ContinuityMaxMs:   10 * 60 * 1000,
		Stats:             stats.DefaultConfig(),
	}
}

// Validate checks parameter ranges.
func (c Config) Validate() error {
	if c.LookBack < 0 {
		return fmt.Errorf("lookback must not be negative, got %d", c.LookBack)
	}
	if c.DefaultMaxSlots < 1 {
		return fmt.Errorf("default_max_slots must be >= 1, got %d", c.DefaultMaxSlots)
	}
	if c.CandidateWindow < 0 {
		return fmt.Errorf("candidate_window must not be negative, got %d", c.CandidateWindow)
	}
	if c.SafeEarlyArriveMs < 0 || c.ProcessingMs < 0 || c.DefaultTravelMs < 0 {
		return fmt.Errorf("safe_early_arrive_ms, processing_ms and default_travel_ms must not be negative")
	}
	if c.ContinuityMaxMs < c.ContinuityMinMs {
		return fmt.Errorf("continuity_max_ms (%d) is below continuity_min_ms (%d)", c.ContinuityMaxMs, c.ContinuityMinMs)
	}
	if err := c.Stats.Validate(); err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	return nil
}
