package scheduler

import (
	"testing"

	"github.com/me/ringflow/internal/topology"
	"github.com/me/ringflow/pkg/model"
	"github.com/stretchr/testify/assert"
)

func cand(code string, score float64, segs ...topology.Segment) Candidate {
	return Candidate{Instruction: model.Instruction{Code: code}, Score: score, Path: segs}
}

func seg(id string, dir int) topology.Segment { return topology.Segment{ID: id, Dir: dir} }

func codesOf(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Instruction.Code
	}
	return out
}

func TestConflictPenalty(t *testing.T) {
	cfg := DefaultConfig().sequenceConfig()
	placed := []Candidate{cand("P", 0, seg("A~B", 1), seg("B~C", 1))}

	assert.Equal(t, 0.0, conflictPenalty(nil, placed, cfg))
	assert.Equal(t, 0.0, conflictPenalty(topology.Path{seg("C~D", 1)}, placed, cfg))
	assert.Equal(t, 1.0, conflictPenalty(topology.Path{seg("B~C", 1)}, placed, cfg))
	assert.Equal(t, 5.0, conflictPenalty(topology.Path{seg("B~C", -1)}, placed, cfg))
	assert.Equal(t, 10.0, conflictPenalty(topology.Path{seg("B~C", -1), seg("A~B", -1)}, placed, cfg))

	same := conflictPenalty(topology.Path{seg("A~B", 1)}, placed, cfg)
	opposite := conflictPenalty(topology.Path{seg("A~B", -1)}, placed, cfg)
	assert.Greater(t, opposite, same)
}

func TestSequence_NoConflictsSortsByScore(t *testing.T) {
	in := []Candidate{cand("A", 1), cand("B", 3), cand("C", 2), cand("D", 3)}
	got := Sequence(in, DefaultConfig().sequenceConfig())
	assert.Equal(t, []string{"B", "D", "C", "A"}, codesOf(got))
	// input untouched
	assert.Equal(t, []string{"A", "B", "C", "D"}, codesOf(in))
}

func TestSequence_IsPermutation(t *testing.T) {
	in := []Candidate{
		cand("A", 10, seg("X~Y", 1)),
		cand("B", 10, seg("X~Y", 1)),
		cand("C", 9, seg("X~Y", -1)),
		cand("D", 1),
	}
	got := Sequence(in, DefaultConfig().sequenceConfig())
	assert.ElementsMatch(t, codesOf(in), codesOf(got))
	assert.Len(t, got, len(in))
}

func TestSequence_ConflictDemotes(t *testing.T) {
	in := []Candidate{
		cand("X", 100, seg("G01~G10", -1)),
		cand("Y", 100, seg("G01~G10", -1)),
		cand("Z", 80, seg("G03~G04", 1)),
	}
	got := Sequence(in, DefaultConfig().sequenceConfig())
	// Y pays 50*1 after X, Z pays nothing.
	assert.Equal(t, []string{"X", "Z", "Y"}, codesOf(got))
}

func TestSequence_LookBackWindow(t *testing.T) {
	cfg := DefaultConfig().sequenceConfig()
	cfg.LookBack = 1
	in := []Candidate{
		cand("A", 100, seg("S~T", 1)),
		cand("B", 99),
		cand("C", 98, seg("S~T", 1)),
	}
	// With LOOKBACK=1, C no longer sees A once B is placed.
	got := Sequence(in, cfg)
	assert.Equal(t, []string{"A", "B", "C"}, codesOf(got))

	cfg.LookBack = 0
	in[2].Score = 100
	got = Sequence(in, cfg)
	assert.Equal(t, []string{"A", "C", "B"}, codesOf(got))
}

func TestSequence_Empty(t *testing.T) {
	assert.Empty(t, Sequence(nil, DefaultConfig().sequenceConfig()))
}
