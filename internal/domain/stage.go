package domain

import "fmt"

// Stage is one pipeline phase
type Stage string

const (
	StageIngest     Stage = "ingest"
	StageAnalyze    Stage = "analyze"
	StageScript     Stage = "script"
	StageSynthesize Stage = "synthesize"
)

// Stages lists the stages in pipeline order
var Stages = []Stage{StageIngest, StageAnalyze, StageScript, StageSynthesize}

// ParseStage converts a wire value into a Stage
func ParseStage(s string) (Stage, error) {
	for _, stage := range Stages {
		if string(stage) == s {
			return stage, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// PerSection reports whether the stage fans out one invocation per section
func (s Stage) PerSection() bool {
	return s == StageScript || s == StageSynthesize
}

// Next returns the stage that follows s, or "" after synthesize
func (s Stage) Next() Stage {
	for i, stage := range Stages {
		if stage == s && i+1 < len(Stages) {
			return Stages[i+1]
		}
	}
	return ""
}

// Statuses returns the status the stage starts from, the one it runs in and
// the one it completes with. Ingest only has a completion status.
func (s Stage) Statuses() (entry, running, done JobStatus) {
	switch s {
	case StageIngest:
		return "", "", JobStatusUploaded
	case StageAnalyze:
		return JobStatusUploaded, JobStatusAnalyzing, JobStatusAnalyzed
	case StageScript:
		return JobStatusAnalyzed, JobStatusGeneratingScript, JobStatusScriptGenerated
	case StageSynthesize:
		return JobStatusScriptGenerated, JobStatusGeneratingAudio, JobStatusCompleted
	default:
		return "", "", ""
	}
}

// Label is the human readable stage name used in progress messages
func (s Stage) Label() string {
	switch s {
	case StageIngest:
		return "Upload"
	case StageAnalyze:
		return "Analysis"
	case StageScript:
		return "Script generation"
	case StageSynthesize:
		return "Audio synthesis"
	default:
		return string(s)
	}
}
