package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cuongbtq/lecturecast/internal/blobref"
	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/cuongbtq/lecturecast/internal/fanout"
	"github.com/cuongbtq/lecturecast/internal/objectstore"
)

// PriorContextLength is how many trailing characters of the previous
// section's script are handed to the script writer
const PriorContextLength = 200

// Result is what one successful unit of stage work produced
type Result struct {
	Locations       []string
	DurationSeconds float64
	// Sections is set by analysis only
	Sections []domain.Section
	Usage    []domain.UsageRecord
}

// Work performs the collaborator call of a stage and stores its output
type Work interface {
	Run(ctx context.Context, job *domain.Job, trigger domain.Trigger) (*Result, error)
}

// storageError marks failures of the object store so they are classified as such
type storageError struct {
	err error
}

func (e *storageError) Error() string { return e.err.Error() }
func (e *storageError) Unwrap() error { return e.err }

func storageErr(op, key string, err error) error {
	return &storageError{err: fmt.Errorf("%s %s: %w", op, key, err)}
}

// internalError marks failures caused by this system's own configuration
type internalError struct {
	err error
}

func (e *internalError) Error() string { return e.err.Error() }
func (e *internalError) Unwrap() error { return e.err }

func classify(err error) domain.FailureClass {
	var (
		se *storageError
		ie *internalError
	)
	switch {
	case errors.As(err, &ie):
		return domain.FailureClassInternal
	case errors.Is(err, domain.ErrMalformedResponse), errors.Is(err, domain.ErrInvalidUsage):
		return domain.FailureClassMalformed
	case errors.As(err, &se):
		return domain.FailureClassStorage
	default:
		return domain.FailureClassExternal
	}
}

// AnalyzeWork turns the source document into an outline and the section list
type AnalyzeWork struct {
	analyzer Analyzer
	blobs    objectstore.Store
	refs     *blobref.Resolver
}

// NewAnalyzeWork creates the analyze stage work
func NewAnalyzeWork(analyzer Analyzer, blobs objectstore.Store, refs *blobref.Resolver) *AnalyzeWork {
	return &AnalyzeWork{analyzer: analyzer, blobs: blobs, refs: refs}
}

func (w *AnalyzeWork) Run(ctx context.Context, job *domain.Job, _ domain.Trigger) (*Result, error) {
	source := job.Source.Location
	if source == "" {
		source = w.refs.Source(job.ID)
	}
	data, err := w.blobs.Get(ctx, source)
	if err != nil {
		return nil, storageErr("read", source, err)
	}

	outline, records, err := w.analyzer.Analyze(ctx, Document{
		JobID:     job.ID,
		Filename:  job.Source.Filename,
		Data:      data,
		PageCount: job.Source.PageCount,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze document: %w", err)
	}

	sections, err := fanout.Materialize(outline)
	if err != nil {
		return nil, err
	}

	if err := putJSON(ctx, w.blobs, w.refs.Analysis(job.ID), outline); err != nil {
		return nil, err
	}

	locations, err := w.refs.Locate(job.ID, domain.StageAnalyze, "")
	if err != nil {
		return nil, err
	}
	return &Result{Locations: locations, Sections: sections, Usage: records}, nil
}

// ScriptWork writes the spoken script of one section
type ScriptWork struct {
	writer ScriptWriter
	blobs  objectstore.Store
	refs   *blobref.Resolver
}

// NewScriptWork creates the script stage work
func NewScriptWork(writer ScriptWriter, blobs objectstore.Store, refs *blobref.Resolver) *ScriptWork {
	return &ScriptWork{writer: writer, blobs: blobs, refs: refs}
}

func (w *ScriptWork) Run(ctx context.Context, job *domain.Job, trigger domain.Trigger) (*Result, error) {
	section, ok := job.Section(trigger.SectionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownSection, trigger.SectionID)
	}

	req := ScriptRequest{
		JobID:         job.ID,
		Section:       section,
		TotalSections: len(job.Sections),
		Persona:       job.Persona,
	}

	// Summary and prior context improve continuity but are not required
	var outline domain.Outline
	if err := getJSON(ctx, w.blobs, w.refs.Analysis(job.ID), &outline); err == nil {
		req.DocumentSummary = outline.Summary
	}
	if prev, ok := job.PreviousSection(section.ID); ok {
		var prevScript domain.Script
		if err := getJSON(ctx, w.blobs, w.refs.Script(job.ID, prev.ID), &prevScript); err == nil {
			req.PriorContext = tail(prevScript.Text, PriorContextLength)
		}
	}

	script, records, err := w.writer.Write(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("write script: %w", err)
	}
	if strings.TrimSpace(script.Text) == "" {
		return nil, fmt.Errorf("%w: empty script", domain.ErrMalformedResponse)
	}
	script.SectionID = section.ID
	if script.Title == "" {
		script.Title = section.Title
	}

	if err := putJSON(ctx, w.blobs, w.refs.Script(job.ID, section.ID), script); err != nil {
		return nil, err
	}

	locations, err := w.refs.Locate(job.ID, domain.StageScript, section.ID)
	if err != nil {
		return nil, err
	}
	return &Result{Locations: locations, Usage: records}, nil
}

// SynthesizeWork narrates one section script
type SynthesizeWork struct {
	selector SynthesizerSelector
	blobs    objectstore.Store
	refs     *blobref.Resolver
}

// NewSynthesizeWork creates the synthesize stage work
func NewSynthesizeWork(selector SynthesizerSelector, blobs objectstore.Store, refs *blobref.Resolver) *SynthesizeWork {
	return &SynthesizeWork{selector: selector, blobs: blobs, refs: refs}
}

func (w *SynthesizeWork) Run(ctx context.Context, job *domain.Job, trigger domain.Trigger) (*Result, error) {
	section, ok := job.Section(trigger.SectionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownSection, trigger.SectionID)
	}

	var script domain.Script
	if err := getJSON(ctx, w.blobs, w.refs.Script(job.ID, section.ID), &script); err != nil {
		return nil, err
	}

	synth, err := w.selector.For(job.Persona.Voice)
	if err != nil {
		return nil, &internalError{err: err}
	}

	speech, err := synth.Synthesize(ctx, script.Text, job.Persona.Voice)
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	if len(speech.Audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio", domain.ErrMalformedResponse)
	}

	audioKey := w.refs.Audio(job.ID, section.ID)
	if err := w.blobs.Put(ctx, audioKey, speech.Audio); err != nil {
		return nil, storageErr("write", audioKey, err)
	}
	if err := putJSON(ctx, w.blobs, w.refs.Timings(job.ID, section.ID), speech.Timings); err != nil {
		return nil, err
	}

	locations, err := w.refs.Locate(job.ID, domain.StageSynthesize, section.ID)
	if err != nil {
		return nil, err
	}
	return &Result{Locations: locations, DurationSeconds: speech.DurationSeconds, Usage: speech.Usage}, nil
}

func putJSON(ctx context.Context, blobs objectstore.Store, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := blobs.Put(ctx, key, data); err != nil {
		return storageErr("write", key, err)
	}
	return nil
}

func getJSON(ctx context.Context, blobs objectstore.Store, key string, v any) error {
	data, err := blobs.Get(ctx, key)
	if err != nil {
		return storageErr("read", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return storageErr("decode", key, err)
	}
	return nil
}

// tail returns the last n runes of s
func tail(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[len(r)-n:])
}
