package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSection_MarkDoneIsIdempotent(t *testing.T) {
	s := Section{ID: "s01"}
	s.MarkDone(StageScript)
	s.MarkDone(StageScript)
	assert.True(t, s.Done(StageScript))
	assert.False(t, s.Done(StageSynthesize))

	s.MarkDone(StageAnalyze)
	assert.False(t, s.Done(StageAnalyze))
}

func TestJob_Lookups(t *testing.T) {
	job := &Job{
		Sections: []Section{{ID: "s01", Position: 0}, {ID: "s02", Position: 1}},
		Outputs: []StageOutput{
			{Stage: StageAnalyze, Locations: []string{"a"}},
			{Stage: StageScript, SectionID: "s02", Locations: []string{"b"}},
		},
	}

	out, ok := job.Output(StageScript, "s02")
	assert.True(t, ok)
	assert.Equal(t, []string{"b"}, out.Locations)

	_, ok = job.Output(StageScript, "s01")
	assert.False(t, ok)

	prev, ok := job.PreviousSection("s02")
	assert.True(t, ok)
	assert.Equal(t, "s01", prev.ID)

	_, ok = job.PreviousSection("s01")
	assert.False(t, ok)
}

func TestLedger_Total(t *testing.T) {
	ledger := Ledger{
		"llm_input_tokens":      {Quantity: 1000, AmountUSD: 0.0005},
		"tts_openai_characters": {Quantity: 2000, AmountUSD: 0.03},
	}
	assert.InDelta(t, 0.0305, ledger.Total(), 1e-12)
	assert.Equal(t, []string{"llm_input_tokens", "tts_openai_characters"}, ledger.Categories())
	assert.Zero(t, Ledger{}.Total())
}

func TestRetryableError(t *testing.T) {
	base := errors.New("broker down")
	err := fmt.Errorf("emit: %w", NewRetryableError(base))

	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "retryable error: broker down")
	assert.False(t, IsRetryable(base))
}
