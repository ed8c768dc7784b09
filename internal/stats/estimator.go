package stats

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/me/ringflow/internal/topology"
	"github.com/me/ringflow/pkg/model"
)

// Config holds estimator parameters.
type Config struct {
	Alpha      float64 `yaml:"alpha"`        // EMA smoothing factor, (0,1]
	RiskK      float64 `yaml:"risk_k"`       // std multiplier in cost queries
	WarmupN    int64   `yaml:"warmup_n"`     // samples before a statistic is fully trusted
	ColdMeanMs float64 `yaml:"cold_mean_ms"` // prior mean for pairs without enough history
	ColdStdMs  float64 `yaml:"cold_std_ms"`  // prior std for pairs without enough history
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Alpha:      0.1,
		RiskK:      1.0,
		WarmupN:    5,
		ColdMeanMs: 20000,
		ColdStdMs:  5000,
	}
}

// Validate checks parameter ranges.
func (c Config) Validate() error {
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha must be in (0,1], got %v", c.Alpha)
	}
	if c.WarmupN < 1 {
		return fmt.Errorf("warmup_n must be >= 1, got %d", c.WarmupN)
	}
	if c.RiskK < 0 || c.ColdMeanMs < 0 || c.ColdStdMs < 0 {
		return fmt.Errorf("risk_k, cold_mean_ms and cold_std_ms must not be negative")
	}
	return nil
}

// Store is the statistics persistence the estimator needs.
type Store interface {
	GetStat(ctx context.Context, key string) (model.Stat, bool, error)
	GetStats(ctx context.Context, keys []string) (map[string]model.Stat, error)
	PutStat(ctx context.Context, key string, st model.Stat) error
}

// ODKey is the statistic key for a pair of anchors (or raw location names).
func ODKey(from, to string) string {
	return "od:" + topology.Normalize(from) + "|" + topology.Normalize(to)
}

// ContainerKey is the statistic key for a container's task-to-task gap.
func ContainerKey(container string) string {
	return "container:" + topology.Normalize(container)
}

// Estimator reads and updates travel-time statistics.
type Estimator struct {
	store  Store
	ring   *topology.Ring
	config Config
	logger *slog.Logger
}

// NewEstimator creates an Estimator.
func NewEstimator(st Store, ring *topology.Ring, cfg Config, logger *slog.Logger) *Estimator {
	return &Estimator{
		store:  st,
		ring:   ring,
		config: cfg,
		logger: logger.With("component", "stats"),
	}
}

// Observe folds one duration into the statistic stored under key.
// Read-then-write; concurrent observers of the same key may lose an update.
func (e *Estimator) Observe(ctx context.Context, key string, durationMs float64) (model.Stat, error) {
	prev, ok, err := e.store.GetStat(ctx, key)
	if err != nil {
		return model.Stat{}, fmt.Errorf("read stat %s: %w", key, err)
	}
	var base *model.Stat
	if ok {
		base = &prev
	}
	next := Update(base, durationMs, e.config.Alpha)
	if err := e.store.PutStat(ctx, key, next); err != nil {
		return model.Stat{}, fmt.Errorf("write stat %s: %w", key, err)
	}
	e.logger.Debug("stat updated", "key", key, "sample_ms", durationMs,
		"mean_ms", int64(next.Mean), "std_ms", int64(next.Std), "count", next.Count)
	return next, nil
}

// Estimate returns the statistic stored under key.
func (e *Estimator) Estimate(ctx context.Context, key string) (model.Stat, bool, error) {
	return e.store.GetStat(ctx, key)
}

// confidence fades a statistic in over its first WarmupN samples.
func (e *Estimator) confidence(count int64) float64 {
	return math.Min(1, float64(count)/float64(e.config.WarmupN))
}

// Cost returns the risk-adjusted expected travel cost (ms) between two
// locations: the minimum of mean + K*std over all anchor combinations.
// Statistics still warming up are blended with the cold-start prior in
// proportion to w = min(1, count/WarmupN): w*(mean + K*std) + (1-w)*prior.
// This is not a plain scaling by w, which would make a fresh pair look
// nearly free. Unresolvable locations cost zero.
func (e *Estimator) Cost(ctx context.Context, from, to string) (float64, error) {
	pairs := e.anchorPairs(from, to)
	if len(pairs) == 0 {
		return 0, nil
	}
	stored, err := e.store.GetStats(ctx, pairs)
	if err != nil {
		return 0, fmt.Errorf("read od stats: %w", err)
	}

	prior := e.config.ColdMeanMs + e.config.RiskK*e.config.ColdStdMs
	best := math.Inf(1)
	for _, key := range pairs {
		cost := prior
		if st, ok := stored[key]; ok {
			w := e.confidence(st.Count)
			cost = w*(st.Mean+e.config.RiskK*st.Std) + (1-w)*prior
		}
		best = math.Min(best, cost)
	}
	return best, nil
}

// TravelTime returns the lowest stored mean travel time (ms) over all anchor
// combinations. ok is false when no combination has any history.
func (e *Estimator) TravelTime(ctx context.Context, from, to string) (ms float64, ok bool, err error) {
	pairs := e.anchorPairs(from, to)
	if len(pairs) == 0 {
		return 0, false, nil
	}
	stored, err := e.store.GetStats(ctx, pairs)
	if err != nil {
		return 0, false, fmt.Errorf("read od stats: %w", err)
	}
	for _, key := range pairs {
		st, found := stored[key]
		if !found || st.Count == 0 {
			continue
		}
		if !ok || st.Mean < ms {
			ms, ok = st.Mean, true
		}
	}
	return ms, ok, nil
}

// anchorPairs lists the OD keys for every anchor combination.
func (e *Estimator) anchorPairs(from, to string) []string {
	fromAnchors := e.ring.Anchors(from)
	toAnchors := e.ring.Anchors(to)
	keys := make([]string, 0, len(fromAnchors)*len(toAnchors))
	for _, a := range fromAnchors {
		for _, b := range toAnchors {
			keys = append(keys, ODKey(a, b))
		}
	}
	return keys
}
