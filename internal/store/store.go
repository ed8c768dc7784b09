package store

import (
	"context"

	"github.com/me/ringflow/pkg/model"
)

// Member is a waiting-pool entry with its score.
type Member struct {
	Code  string  `json:"instruction_code"`
	Score float64 `json:"score"`
}

// WaitingItem is a pool entry together with its metadata record.
type WaitingItem struct {
	Code   string
	Score  float64
	Fields map[string]string
}

// RangeQuery selects waiting-pool members by score.
type RangeQuery struct {
	Min    *float64 // inclusive lower bound, nil for none
	Max    *float64 // inclusive upper bound, nil for none
	Desc   bool     // highest score first
	Offset int
	Limit  int // 0 means no limit
}

// Store defines the persistence the scheduling engine relies on.
//
// MarkStarted and StartInstruction must be atomic across concurrent rounds;
// RemoveWaiting and TakeWaiting report whether this caller was the one that
// removed the entry.
type Store interface {
	// Waiting pool
	AddWaiting(ctx context.Context, items []WaitingItem) error
	WaitingScore(ctx context.Context, code string) (float64, bool, error)
	RangeWaiting(ctx context.Context, q RangeQuery) ([]Member, error)
	PopWaiting(ctx context.Context, n int, desc bool) ([]Member, error)
	RemoveWaiting(ctx context.Context, code string) (bool, error)
	TakeWaiting(ctx context.Context, code string) (bool, error)
	CountWaiting(ctx context.Context) (int, error)

	// Task metadata
	PutMetadata(ctx context.Context, code string, fields map[string]string) error
	GetMetadata(ctx context.Context, codes []string) (map[string]map[string]string, error)
	DeleteMetadata(ctx context.Context, codes ...string) error

	// Travel-time statistics
	GetStat(ctx context.Context, key string) (model.Stat, bool, error)
	GetStats(ctx context.Context, keys []string) (map[string]model.Stat, error)
	PutStat(ctx context.Context, key string, st model.Stat) error
	ListStats(ctx context.Context, prefix string) (map[string]model.Stat, error)

	// Destination availability (Unix ms)
	GetNodeAvailability(ctx context.Context, node string) (int64, bool, error)
	SetNodeAvailability(ctx context.Context, node string, at int64) error

	// Start markers
	MarkStarted(ctx context.Context, code string, at int64) (bool, error)
	GetStartMarker(ctx context.Context, code string) (int64, bool, error)
	SetDuration(ctx context.Context, code string, durationMs int64) error

	// StartInstruction atomically writes the start marker, takes the
	// instruction out of the pool and stores its destination's availability.
	// It reports false, changing nothing, if the instruction was already
	// started or is no longer waiting.
	StartInstruction(ctx context.Context, code string, at int64, node string, availableAt int64) (bool, error)

	// Container continuity
	GetContainerLast(ctx context.Context, container string) (model.ContainerLast, bool, error)
	PutContainerLast(ctx context.Context, container string, last model.ContainerLast) error

	// Clear removes every waiting instruction, its metadata and all start markers.
	Clear(ctx context.Context) error

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
