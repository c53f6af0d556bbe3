package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from JobStatus
		to   JobStatus
		want bool
	}{
		{name: "uploaded to analyzing", from: JobStatusUploaded, to: JobStatusAnalyzing, want: true},
		{name: "analyzing to analyzed", from: JobStatusAnalyzing, to: JobStatusAnalyzed, want: true},
		{name: "generating audio to completed", from: JobStatusGeneratingAudio, to: JobStatusCompleted, want: true},
		{name: "skip a step", from: JobStatusUploaded, to: JobStatusAnalyzed, want: false},
		{name: "backwards", from: JobStatusAnalyzed, to: JobStatusAnalyzing, want: false},
		{name: "same status", from: JobStatusAnalyzing, to: JobStatusAnalyzing, want: false},
		{name: "uploaded to failed", from: JobStatusUploaded, to: JobStatusFailed, want: true},
		{name: "generating script to failed", from: JobStatusGeneratingScript, to: JobStatusFailed, want: true},
		{name: "completed is terminal", from: JobStatusCompleted, to: JobStatusFailed, want: false},
		{name: "failed is terminal", from: JobStatusFailed, to: JobStatusUploaded, want: false},
		{name: "unknown source", from: JobStatus("bogus"), to: JobStatusFailed, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatusOrderIsMonotonic(t *testing.T) {
	for i := 1; i < len(statusOrder); i++ {
		prev, cur := statusOrder[i-1], statusOrder[i]
		assert.Greater(t, cur.Rank(), prev.Rank())
		assert.Greater(t, cur.Percentage(), prev.Percentage())
		assert.True(t, CanTransition(prev, cur))
	}
}

func TestJobStatus_Percentage(t *testing.T) {
	expected := map[JobStatus]int{
		JobStatusUploaded:         10,
		JobStatusAnalyzing:        20,
		JobStatusAnalyzed:         30,
		JobStatusGeneratingScript: 40,
		JobStatusScriptGenerated:  60,
		JobStatusGeneratingAudio:  70,
		JobStatusCompleted:        100,
	}
	for status, pct := range expected {
		assert.Equal(t, pct, status.Percentage(), string(status))
	}
}

func TestParseJobStatus(t *testing.T) {
	status, err := ParseJobStatus("generating_audio")
	require.NoError(t, err)
	assert.Equal(t, JobStatusGeneratingAudio, status)

	status, err = ParseJobStatus("failed")
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, status)

	_, err = ParseJobStatus("RUNNING")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job status")
}

func TestStage(t *testing.T) {
	assert.False(t, StageIngest.PerSection())
	assert.False(t, StageAnalyze.PerSection())
	assert.True(t, StageScript.PerSection())
	assert.True(t, StageSynthesize.PerSection())

	assert.Equal(t, StageAnalyze, StageIngest.Next())
	assert.Equal(t, StageSynthesize, StageScript.Next())
	assert.Equal(t, Stage(""), StageSynthesize.Next())

	stage, err := ParseStage("script")
	require.NoError(t, err)
	assert.Equal(t, StageScript, stage)

	_, err = ParseStage("render")
	require.Error(t, err)
}

func TestStage_Statuses(t *testing.T) {
	for _, stage := range []Stage{StageAnalyze, StageScript, StageSynthesize} {
		entry, running, done := stage.Statuses()
		assert.True(t, CanTransition(entry, running), string(stage))
		assert.True(t, CanTransition(running, done), string(stage))
	}

	_, _, done := StageIngest.Statuses()
	assert.Equal(t, JobStatusUploaded, done)

	_, _, last := StageSynthesize.Statuses()
	assert.Equal(t, JobStatusCompleted, last)
}
