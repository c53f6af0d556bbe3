package domain

import "fmt"

// Progress is the client facing status triple
type Progress struct {
	Status     JobStatus `json:"status"`
	Percentage int       `json:"percentage"`
	Message    string    `json:"message"`
}

// Project derives the polling view of a job. It reads nothing but the job.
func Project(job *Job) Progress {
	p := Progress{
		Status:     job.Status,
		Percentage: job.Status.Percentage(),
	}

	switch job.Status {
	case JobStatusUploaded:
		p.Message = "PDF uploaded successfully, starting analysis..."
	case JobStatusAnalyzing:
		p.Message = "Analyzing document with AI..."
	case JobStatusAnalyzed:
		p.Message = "Document analysis complete"
	case JobStatusGeneratingScript:
		p.Message = sectionMessage("Writing section %d of %d...", "Writing lecture script...", job.Sections, StageScript)
	case JobStatusScriptGenerated:
		p.Message = "Script generation complete"
	case JobStatusGeneratingAudio:
		p.Message = sectionMessage("Synthesizing audio for section %d of %d...", "Synthesizing audio (this may take a while)...", job.Sections, StageSynthesize)
	case JobStatusCompleted:
		p.Message = "Lecture generation complete! Ready to play."
	case JobStatusFailed:
		p.Percentage = job.FailedFrom.Percentage()
		p.Message = failureMessage(job.Failure)
	default:
		p.Message = fmt.Sprintf("Unknown status %q", job.Status)
	}

	return p
}

func sectionMessage(format, fallback string, sections []Section, stage Stage) string {
	if len(sections) == 0 {
		return fallback
	}
	done := 0
	for _, s := range sections {
		if s.Done(stage) {
			done++
		}
	}
	current := done + 1
	if current > len(sections) {
		current = len(sections)
	}
	return fmt.Sprintf(format, current, len(sections))
}

func failureMessage(f *Failure) string {
	if f == nil {
		return "Processing failed"
	}
	return fmt.Sprintf("%s failed: %s", f.Stage.Label(), f.Message)
}
