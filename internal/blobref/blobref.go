// Package blobref names the object store keys a job reads and writes.
// It performs no I/O.
package blobref

import (
	"fmt"
	"path"
	"regexp"

	"github.com/cuongbtq/lecturecast/internal/domain"
)

const DefaultPrefix = "uploads"

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Resolver maps (job, stage, section) triples to canonical keys
type Resolver struct {
	prefix      string
	audioFormat string
}

// New creates a Resolver. Empty values fall back to "uploads" and "mp3".
func New(prefix, audioFormat string) *Resolver {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if audioFormat == "" {
		audioFormat = "mp3"
	}
	return &Resolver{prefix: prefix, audioFormat: audioFormat}
}

// Source is the key of the uploaded document
func (r *Resolver) Source(jobID string) string {
	return path.Join(r.prefix, jobID, "original.pdf")
}

// Analysis is the key of the outline written by analyze
func (r *Resolver) Analysis(jobID string) string {
	return path.Join(r.prefix, jobID, "analysis.json")
}

// Script is the key of one section's script
func (r *Resolver) Script(jobID, sectionID string) string {
	return path.Join(r.prefix, jobID, "script", fmt.Sprintf("section_%s.json", sectionID))
}

// Audio is the key of one section's synthesized audio
func (r *Resolver) Audio(jobID, sectionID string) string {
	return path.Join(r.prefix, jobID, "audio", fmt.Sprintf("section_%s.%s", sectionID, r.audioFormat))
}

// Timings is the key of one section's word timing list
func (r *Resolver) Timings(jobID, sectionID string) string {
	return path.Join(r.prefix, jobID, "audio", fmt.Sprintf("section_%s_timestamps.json", sectionID))
}

// Locate returns every key the stage writes for the triple, primary output first
func (r *Resolver) Locate(jobID string, stage domain.Stage, sectionID string) ([]string, error) {
	if !segmentPattern.MatchString(jobID) {
		return nil, fmt.Errorf("invalid job id %q", jobID)
	}
	if stage.PerSection() {
		if !segmentPattern.MatchString(sectionID) {
			return nil, fmt.Errorf("invalid section id %q", sectionID)
		}
	} else if sectionID != "" {
		return nil, fmt.Errorf("stage %s is not per-section", stage)
	}

	switch stage {
	case domain.StageIngest:
		return []string{r.Source(jobID)}, nil
	case domain.StageAnalyze:
		return []string{r.Analysis(jobID)}, nil
	case domain.StageScript:
		return []string{r.Script(jobID, sectionID)}, nil
	case domain.StageSynthesize:
		return []string{r.Audio(jobID, sectionID), r.Timings(jobID, sectionID)}, nil
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
}
