package scheduler

import (
	"context"

	"github.com/me/ringflow/pkg/model"
)

// Scheduler admits waiting instructions onto a bounded number of slots and
// learns travel times from completions. Rounds are triggered by callers.
type Scheduler interface {
	// Submit validates and enqueues one instruction.
	Submit(ctx context.Context, req model.InstructionRequest) (model.Instruction, error)

	// SubmitBatch enqueues all instructions or none.
	SubmitBatch(ctx context.Context, reqs []model.InstructionRequest) ([]model.Instruction, error)

	// Cancel removes a waiting instruction. It reports false when the
	// instruction is no longer waiting, usually because a round admitted it.
	Cancel(ctx context.Context, code string) (bool, error)

	// RunRound scores, sequences and admits up to maxSlots instructions.
	// maxSlots <= 0 uses the configured default.
	RunRound(ctx context.Context, maxSlots int) (*model.Schedule, error)

	// RecordCompletion feeds a finished instruction back into the statistics.
	RecordCompletion(ctx context.Context, c model.Completion) error

	// Clear drops every waiting instruction and start marker.
	Clear(ctx context.Context) error
}
