package scheduler

import (
	"log/slog"
	"time"

	"github.com/me/ringflow/internal/stats"
	"github.com/me/ringflow/internal/store"
	"github.com/me/ringflow/internal/topology"
	"github.com/me/ringflow/internal/upstream"
)

// Engine implements Scheduler on top of a Store. It keeps no state between
// calls; every round reads what it needs from the store.
type Engine struct {
	store     store.Store
	ring      *topology.Ring
	estimator *stats.Estimator
	scorer    *Scorer
	authority upstream.Authority
	config    Config
	logger    *slog.Logger
	now       func() time.Time
}

var _ Scheduler = (*Engine)(nil)

// NewEngine creates an Engine. A nil authority releases everything.
func NewEngine(st store.Store, ring *topology.Ring, auth upstream.Authority, cfg Config, logger *slog.Logger) *Engine {
	if auth == nil {
		auth = upstream.AllowAll{}
	}
	est := stats.NewEstimator(st, ring, cfg.Stats, logger)
	return &Engine{
		store:     st,
		ring:      ring,
		estimator: est,
		scorer:    NewScorer(est, cfg.Weights),
		authority: auth,
		config:    cfg,
		logger:    logger.With("component", "scheduler"),
		now:       time.Now,
	}
}

// SetClock replaces the engine's time source.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Ring returns the topology the engine routes on.
func (e *Engine) Ring() *topology.Ring { return e.ring }

// Estimator returns the engine's statistics estimator.
func (e *Engine) Estimator() *stats.Estimator { return e.estimator }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.config }

func (e *Engine) nowMs() int64 {
	return e.now().UnixMilli()
}
