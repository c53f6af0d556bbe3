package fanout

import (
	"testing"

	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeSectionOutline() *domain.Outline {
	return &domain.Outline{
		MainTopics: []string{"thermodynamics"},
		Sections: []domain.SectionOutline{
			{Title: "Energy"},
			{Title: "  "},
			{Title: "Entropy"},
		},
	}
}

func TestMaterialize(t *testing.T) {
	sections, err := Materialize(threeSectionOutline())
	require.NoError(t, err)
	require.Len(t, sections, 3)

	assert.Equal(t, "s01", sections[0].ID)
	assert.Equal(t, "s03", sections[2].ID)
	assert.Equal(t, 1, sections[1].Position)
	assert.Equal(t, "Section 2", sections[1].Title)
	assert.Equal(t, "Entropy", sections[2].Outline.Title)
	for _, s := range sections {
		assert.False(t, s.ScriptDone)
		assert.False(t, s.AudioDone)
	}
}

func TestMaterialize_Malformed(t *testing.T) {
	_, err := Materialize(nil)
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)

	_, err = Materialize(&domain.Outline{})
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)

	big := &domain.Outline{Sections: make([]domain.SectionOutline, MaxSections+1)}
	_, err = Materialize(big)
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestComplete(t *testing.T) {
	sections, err := Materialize(threeSectionOutline())
	require.NoError(t, err)

	assert.False(t, Complete(nil, domain.StageScript))
	assert.False(t, Complete(sections, domain.StageAnalyze))

	for i := range sections {
		assert.False(t, Complete(sections, domain.StageScript))
		sections[i].MarkDone(domain.StageScript)
		// re-delivery of the same completion changes nothing
		sections[i].MarkDone(domain.StageScript)
		assert.Equal(t, i+1, Done(sections, domain.StageScript))
	}
	assert.True(t, Complete(sections, domain.StageScript))
	assert.False(t, Complete(sections, domain.StageSynthesize))
	assert.Equal(t, []string{"s01", "s02", "s03"}, Pending(sections, domain.StageSynthesize))
	assert.Empty(t, Pending(sections, domain.StageScript))
}

func TestCompleteIffAllFlagsSet(t *testing.T) {
	// every subset of three flags
	for mask := 0; mask < 8; mask++ {
		sections := make([]domain.Section, 3)
		for i := range sections {
			sections[i].ID = SectionID(i)
			sections[i].AudioDone = mask&(1<<i) != 0
		}
		assert.Equal(t, mask == 7, Complete(sections, domain.StageSynthesize), "mask %03b", mask)
	}
}

func TestNextTriggers(t *testing.T) {
	sections, err := Materialize(threeSectionOutline())
	require.NoError(t, err)
	job := &domain.Job{ID: "job-1", Sections: sections}

	ingest := NextTriggers(job, domain.StageIngest)
	assert.Equal(t, []domain.Trigger{{JobID: "job-1", Stage: domain.StageAnalyze}}, ingest)

	script := NextTriggers(job, domain.StageAnalyze)
	require.Len(t, script, 3)
	for i, tr := range script {
		assert.Equal(t, domain.StageScript, tr.Stage)
		assert.Equal(t, SectionID(i), tr.SectionID)
	}

	synth := NextTriggers(job, domain.StageScript)
	require.Len(t, synth, 3)
	assert.Equal(t, domain.StageSynthesize, synth[0].Stage)

	assert.Empty(t, NextTriggers(job, domain.StageSynthesize))
}
