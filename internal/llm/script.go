package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/cuongbtq/lecturecast/internal/stage"
	"github.com/openai/openai-go/v3"
)

// WordsPerMinute is the nominal narration pace used for duration estimates
const WordsPerMinute = 150

// ScriptWriter writes spoken lecture text for one section in a persona's voice
type ScriptWriter struct {
	client *Client
}

// NewScriptWriter creates a ScriptWriter
func NewScriptWriter(client *Client) *ScriptWriter {
	return &ScriptWriter{client: client}
}

var _ stage.ScriptWriter = (*ScriptWriter)(nil)

// Write generates the script of req.Section
func (w *ScriptWriter) Write(ctx context.Context, req stage.ScriptRequest) (*domain.Script, []domain.UsageRecord, error) {
	system := systemPrompt(req.Persona)
	user := sectionPrompt(req)

	// Roughly 1.5 tokens per spoken word, with headroom
	maxTokens := 0
	if req.Persona.Script.MaxSectionLength > 0 {
		maxTokens = req.Persona.Script.MaxSectionLength * 2
	}

	res, err := w.client.complete(ctx, completionRequest{
		model: w.client.cfg.ScriptModel,
		messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		maxTokens:  maxTokens,
		promptText: system + "\n" + user,
	})
	if err != nil {
		return nil, nil, err
	}

	words := len(strings.Fields(res.content))
	rate := req.Persona.Voice.SpeakingRate
	if rate <= 0 {
		rate = 1
	}

	script := &domain.Script{
		SectionID:                req.Section.ID,
		Title:                    req.Section.Title,
		Text:                     res.content,
		WordCount:                words,
		EstimatedDurationSeconds: float64(words) / (WordsPerMinute * rate) * 60,
	}

	w.client.logger.Info("Section script written",
		slog.String("job_id", req.JobID),
		slog.String("section_id", req.Section.ID),
		slog.Int("words", words),
	)

	return script, res.usage, nil
}

func systemPrompt(p domain.Persona) string {
	var b strings.Builder
	if p.SystemPrompt != "" {
		b.WriteString(p.SystemPrompt)
	} else {
		fmt.Fprintf(&b, "You are %s.", p.Name)
	}
	if p.Description != "" {
		fmt.Fprintf(&b, "\nDescription: %s", p.Description)
	}
	if len(p.Traits) > 0 {
		fmt.Fprintf(&b, "\nTraits: %s", strings.Join(p.Traits, ", "))
	}
	if p.Tone != "" {
		fmt.Fprintf(&b, "\nTone: %s", p.Tone)
	}
	if p.TeachingStyle != "" {
		fmt.Fprintf(&b, "\nTeaching style: %s", p.TeachingStyle)
	}
	return b.String()
}

func sectionPrompt(req stage.ScriptRequest) string {
	s := req.Section
	cfg := req.Persona.Script

	var b strings.Builder
	fmt.Fprintf(&b, "Convert section %d of %d of a document into a spoken lecture script.\n\n", s.Position+1, req.TotalSections)
	if req.DocumentSummary != "" {
		fmt.Fprintf(&b, "Document summary: %s\n\n", req.DocumentSummary)
	}
	fmt.Fprintf(&b, "Section title: %s\n", s.Title)
	if len(s.Outline.Topics) > 0 {
		fmt.Fprintf(&b, "Topics: %s\n", strings.Join(s.Outline.Topics, "; "))
	}
	if len(s.Outline.KeyPoints) > 0 {
		b.WriteString("Key points:\n")
		for _, kp := range s.Outline.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", kp)
		}
	}
	if s.Outline.DetailedContent != "" {
		fmt.Fprintf(&b, "Content:\n%s\n", s.Outline.DetailedContent)
	}
	if req.PriorContext != "" {
		fmt.Fprintf(&b, "\nThe previous section ended with: %q\n", req.PriorContext)
	}

	b.WriteString("\nGuidelines:\n")
	b.WriteString("- Write exactly what should be spoken. No scene directions, headings or markdown.\n")
	if req.Persona.HumorLevel != "" {
		fmt.Fprintf(&b, "- Use %s humor.\n", req.Persona.HumorLevel)
	}
	if cfg.IncludeExamples && cfg.ExampleCount > 0 {
		fmt.Fprintf(&b, "- Include %d examples", cfg.ExampleCount)
		if req.Persona.ExamplePreference != "" {
			fmt.Fprintf(&b, " drawn from %s", req.Persona.ExamplePreference)
		}
		b.WriteString(".\n")
	}
	if cfg.UseQuestions {
		fmt.Fprintf(&b, "- Ask rhetorical questions with %s frequency.\n", cfg.QuestionFrequency)
	}
	if req.PriorContext != "" {
		b.WriteString("- Connect naturally to the previous section.\n")
	}
	if cfg.MaxSectionLength > 0 {
		fmt.Fprintf(&b, "- Keep it under %d words.\n", cfg.MaxSectionLength)
	}
	return b.String()
}
