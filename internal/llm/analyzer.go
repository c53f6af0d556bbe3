package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/cuongbtq/lecturecast/internal/stage"
	"github.com/openai/openai-go/v3"
)

const analysisPrompt = `Analyze this PDF document for a lecture generation system.
Answer with a single JSON object using exactly these keys:

{
  "main_topics": ["main topics covered"],
  "difficulty_level": "Beginner|Intermediate|Advanced",
  "target_audience": "description of the intended audience",
  "document_type": "textbook|paper|slides|notes|other",
  "summary": "2-3 sentence overview of the entire document",
  "learning_objectives": ["what a listener should understand afterwards"],
  "suggested_sections": [
    {
      "title": "section title for the lecture",
      "topics": ["specific topics to cover"],
      "key_points": ["main point"],
      "detailed_content": "the material of this section, restated in full",
      "estimated_duration_minutes": 8
    }
  ]
}

Suggest between 1 and %d sections, in the order they should be taught.
Be thorough: cover every page, diagram and table.`

// Analyzer extracts a lecture outline from a PDF
type Analyzer struct {
	client      *Client
	maxSections int
}

// NewAnalyzer creates an Analyzer; maxSections bounds the suggested outline
func NewAnalyzer(client *Client, maxSections int) *Analyzer {
	return &Analyzer{client: client, maxSections: maxSections}
}

var _ stage.Analyzer = (*Analyzer)(nil)

// Analyze sends the document to the model and parses the outline
func (a *Analyzer) Analyze(ctx context.Context, doc stage.Document) (*domain.Outline, []domain.UsageRecord, error) {
	if len(doc.Data) == 0 {
		return nil, nil, fmt.Errorf("%w: empty document", domain.ErrInvalidDocument)
	}

	prompt := fmt.Sprintf(analysisPrompt, a.maxSections)
	fileData := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(doc.Data)

	filename := doc.Filename
	if filename == "" {
		filename = "document.pdf"
	}

	res, err := a.client.complete(ctx, completionRequest{
		model: a.client.cfg.AnalysisModel,
		messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
					FileData: openai.String(fileData),
					Filename: openai.String(filename),
				}),
			}),
		},
		json:       true,
		promptText: prompt,
	})
	if err != nil {
		return nil, nil, err
	}

	outline, err := ParseOutline(res.content)
	if err != nil {
		return nil, nil, err
	}

	a.client.logger.Info("Document analyzed",
		slog.String("job_id", doc.JobID),
		slog.Int("pages", doc.PageCount),
		slog.Int("sections", len(outline.Sections)),
	)

	return outline, res.usage, nil
}
