package blobref

import (
	"testing"

	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Locate(t *testing.T) {
	r := New("", "")
	jobID := "0b7f9a52-4e0c-4a43-9d0e-5d2a8f1c6e11"

	tests := []struct {
		name      string
		stage     domain.Stage
		sectionID string
		want      []string
		wantErr   bool
		errString string
	}{
		{
			name:  "ingest",
			stage: domain.StageIngest,
			want:  []string{"uploads/" + jobID + "/original.pdf"},
		},
		{
			name:  "analyze",
			stage: domain.StageAnalyze,
			want:  []string{"uploads/" + jobID + "/analysis.json"},
		},
		{
			name:      "script",
			stage:     domain.StageScript,
			sectionID: "s02",
			want:      []string{"uploads/" + jobID + "/script/section_s02.json"},
		},
		{
			name:      "synthesize writes audio and timings",
			stage:     domain.StageSynthesize,
			sectionID: "s03",
			want: []string{
				"uploads/" + jobID + "/audio/section_s03.mp3",
				"uploads/" + jobID + "/audio/section_s03_timestamps.json",
			},
		},
		{
			name:      "per-section stage without section",
			stage:     domain.StageScript,
			wantErr:   true,
			errString: "invalid section id",
		},
		{
			name:      "whole-document stage with section",
			stage:     domain.StageAnalyze,
			sectionID: "s01",
			wantErr:   true,
			errString: "not per-section",
		},
		{
			name:      "path traversal in section",
			stage:     domain.StageScript,
			sectionID: "../s01",
			wantErr:   true,
			errString: "invalid section id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Locate(jobID, tt.stage, tt.sectionID)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_CustomPrefixAndFormat(t *testing.T) {
	r := New("lectures", "opus")
	assert.Equal(t, "lectures/j1/audio/section_s01.opus", r.Audio("j1", "s01"))

	_, err := r.Locate("../etc", domain.StageAnalyze, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid job id")
}

func TestResolver_IsDeterministic(t *testing.T) {
	a, b := New("", ""), New("", "")
	assert.Equal(t, a.Script("j1", "s01"), b.Script("j1", "s01"))
}
