// Package fanout turns an analysis outline into sections and tracks per-section
// completion for the script and synthesize stages.
package fanout

import (
	"fmt"
	"strings"

	"github.com/cuongbtq/lecturecast/internal/domain"
)

// MaxSections bounds the fan-out of a single document
const MaxSections = 50

// SectionID is the stable id of the section at position (zero based)
func SectionID(position int) string {
	return fmt.Sprintf("s%02d", position+1)
}

// Materialize builds the fixed section sequence from an outline.
// An outline without sections is a malformed collaborator response.
func Materialize(outline *domain.Outline) ([]domain.Section, error) {
	if outline == nil || len(outline.Sections) == 0 {
		return nil, fmt.Errorf("%w: outline has no sections", domain.ErrMalformedResponse)
	}
	if len(outline.Sections) > MaxSections {
		return nil, fmt.Errorf("%w: outline has %d sections, limit is %d", domain.ErrMalformedResponse, len(outline.Sections), MaxSections)
	}

	sections := make([]domain.Section, len(outline.Sections))
	for i, so := range outline.Sections {
		title := strings.TrimSpace(so.Title)
		if title == "" {
			title = fmt.Sprintf("Section %d", i+1)
		}
		sections[i] = domain.Section{
			ID:       SectionID(i),
			Position: i,
			Title:    title,
			Outline:  so,
		}
	}
	return sections, nil
}

// Complete reports whether every section's flag for stage is set.
// It is false for an empty sequence and for whole-document stages.
func Complete(sections []domain.Section, stage domain.Stage) bool {
	if !stage.PerSection() || len(sections) == 0 {
		return false
	}
	for _, s := range sections {
		if !s.Done(stage) {
			return false
		}
	}
	return true
}

// Done counts the sections whose flag for stage is set
func Done(sections []domain.Section, stage domain.Stage) int {
	n := 0
	for _, s := range sections {
		if s.Done(stage) {
			n++
		}
	}
	return n
}

// Pending lists the ids of sections still outstanding for stage, in order
func Pending(sections []domain.Section, stage domain.Stage) []string {
	var ids []string
	for _, s := range sections {
		if !s.Done(stage) {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// NextTriggers returns the triggers to emit once completed has finished for the job
func NextTriggers(job *domain.Job, completed domain.Stage) []domain.Trigger {
	next := completed.Next()
	if next == "" {
		return nil
	}
	if !next.PerSection() {
		return []domain.Trigger{{JobID: job.ID, Stage: next}}
	}

	triggers := make([]domain.Trigger, 0, len(job.Sections))
	for _, s := range job.Sections {
		triggers = append(triggers, domain.Trigger{JobID: job.ID, SectionID: s.ID, Stage: next})
	}
	return triggers
}
