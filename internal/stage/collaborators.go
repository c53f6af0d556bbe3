package stage

import (
	"context"
	"time"

	"github.com/cuongbtq/lecturecast/internal/domain"
)

// Document is the input of the document-understanding call
type Document struct {
	JobID     string
	Filename  string
	Data      []byte
	PageCount int
}

// Analyzer produces an outline for a document
type Analyzer interface {
	Analyze(ctx context.Context, doc Document) (*domain.Outline, []domain.UsageRecord, error)
}

// ScriptRequest is the input of the script-generation call
type ScriptRequest struct {
	JobID         string
	Section       domain.Section
	TotalSections int
	Persona       domain.Persona
	// DocumentSummary is the analysis summary of the whole document
	DocumentSummary string
	// PriorContext is the tail of the previous section's script, empty for the first section
	PriorContext string
}

// ScriptWriter turns a section outline into spoken-style text
type ScriptWriter interface {
	Write(ctx context.Context, req ScriptRequest) (*domain.Script, []domain.UsageRecord, error)
}

// Synthesizer turns script text into audio with word timings
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice domain.VoiceConfig) (*domain.Speech, error)
}

// SynthesizerSelector picks the synthesizer for a voice configuration
type SynthesizerSelector interface {
	For(voice domain.VoiceConfig) (Synthesizer, error)
}

// Emitter publishes triggers. EmitDelayed re-queues a trigger after delay.
type Emitter interface {
	Emit(ctx context.Context, triggers ...domain.Trigger) error
	EmitDelayed(ctx context.Context, trigger domain.Trigger, delay time.Duration) error
}
