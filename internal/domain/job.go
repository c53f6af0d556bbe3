package domain

import (
	"sort"
	"time"
)

// Job is the full persisted state of one document-to-audio run
type Job struct {
	ID         string
	Status     JobStatus
	FailedFrom JobStatus
	Source     Source
	Persona    Persona
	Sections   []Section
	Outputs    []StageOutput
	Ledger     Ledger
	Failure    *Failure
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Source describes the uploaded document
type Source struct {
	Filename  string
	SizeBytes int64
	PageCount int
	Location  string
}

// Section is one independently processable unit of the outline
type Section struct {
	ID         string
	Position   int
	Title      string
	Outline    SectionOutline
	ScriptDone bool
	AudioDone  bool
}

// Done reports the section's completion flag for a per-section stage
func (s Section) Done(stage Stage) bool {
	switch stage {
	case StageScript:
		return s.ScriptDone
	case StageSynthesize:
		return s.AudioDone
	default:
		return false
	}
}

// MarkDone sets the completion flag for stage. Setting it twice is a no-op.
func (s *Section) MarkDone(stage Stage) {
	switch stage {
	case StageScript:
		s.ScriptDone = true
	case StageSynthesize:
		s.AudioDone = true
	}
}

// OutputStatus is the stage-local status of a persisted output
type OutputStatus string

const (
	OutputStatusCommitted OutputStatus = "committed"
)

// StageOutput records where a stage wrote its result for one (stage, section) pair.
// SectionID is empty for whole-document stages.
type StageOutput struct {
	Stage     Stage
	SectionID string
	Locations []string
	Status    OutputStatus
	// DurationSeconds is set by synthesize
	DurationSeconds float64
	CreatedAt       time.Time
}

// Output looks up the output for a (stage, section) pair
func (j *Job) Output(stage Stage, sectionID string) (StageOutput, bool) {
	for _, out := range j.Outputs {
		if out.Stage == stage && out.SectionID == sectionID {
			return out, true
		}
	}
	return StageOutput{}, false
}

// Section looks up a section by id
func (j *Job) Section(sectionID string) (Section, bool) {
	for _, s := range j.Sections {
		if s.ID == sectionID {
			return s, true
		}
	}
	return Section{}, false
}

// PreviousSection returns the section positioned right before sectionID
func (j *Job) PreviousSection(sectionID string) (Section, bool) {
	current, ok := j.Section(sectionID)
	if !ok {
		return Section{}, false
	}
	for _, s := range j.Sections {
		if s.Position == current.Position-1 {
			return s, true
		}
	}
	return Section{}, false
}

// FailureClass groups failures the way the retry policy sees them
type FailureClass string

const (
	FailureClassExternal  FailureClass = "external_call"
	FailureClassStorage   FailureClass = "storage"
	FailureClassMalformed FailureClass = "malformed_response"
	FailureClassInternal  FailureClass = "internal"
)

// Failure is the recorded cause of a terminal failure
type Failure struct {
	Stage      Stage
	SectionID  string
	Class      FailureClass
	Message    string
	RetryCount int
	At         time.Time
}

// LedgerEntry is one category accumulator of the cost ledger
type LedgerEntry struct {
	Quantity  float64
	AmountUSD float64
}

// Ledger maps cost categories to their running totals
type Ledger map[string]LedgerEntry

// Total sums the monetary estimate over all categories
func (l Ledger) Total() float64 {
	var total float64
	for _, entry := range l {
		total += entry.AmountUSD
	}
	return total
}

// Categories returns the category names in a stable order
func (l Ledger) Categories() []string {
	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UsageRecord is the usage one external call reports, tagged by pricing category
type UsageRecord struct {
	Provider string  `json:"provider"`
	Category string  `json:"category"`
	Quantity float64 `json:"quantity"`
}
