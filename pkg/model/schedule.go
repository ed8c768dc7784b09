package model

// Decision is the admission outcome for one candidate.
type Decision string

const (
	DecisionReady    Decision = "READY"
	DecisionDeferred Decision = "DEFERRED"
)

// ScheduledInstruction is one entry of a scheduling round's result.
type ScheduledInstruction struct {
	Instruction
	Decision Decision `json:"decision"`
	Score    float64  `json:"score"`
	ETA      int64    `json:"eta,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// Schedule is the outcome of one scheduling round.
type Schedule struct {
	RoundID  string                 `json:"round_id"`
	Ready    []ScheduledInstruction `json:"ready"`
	Deferred []ScheduledInstruction `json:"deferred"`

	// Faulted lists instruction codes excluded because their metadata is corrupt.
	Faulted []string `json:"faulted,omitempty"`
}

// Ordered returns ready entries followed by deferred entries, both in
// sequence order. The ready prefix may be started immediately.
func (s *Schedule) Ordered() []ScheduledInstruction {
	out := make([]ScheduledInstruction, 0, len(s.Ready)+len(s.Deferred))
	out = append(out, s.Ready...)
	out = append(out, s.Deferred...)
	return out
}
