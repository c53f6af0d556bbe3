package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/cuongbtq/lecturecast/internal/stage"
	"github.com/cuongbtq/lecturecast/internal/usage"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	DefaultOpenAIModel = "tts-1"
	openAIHDModel      = "tts-1-hd"
	// openAIInputLimit stays under the 4096 character cap of the speech endpoint
	openAIInputLimit = 4000
)

// OpenAIConfig holds settings for the OpenAI speech synthesizer
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OpenAI synthesizes speech with the OpenAI audio API. Word timings are
// estimated since the endpoint returns audio only.
type OpenAI struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI synthesizer
func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: logger,
	}, nil
}

var _ stage.Synthesizer = (*OpenAI)(nil)

// Synthesize renders text chunk by chunk and concatenates the MP3 frames
func (o *OpenAI) Synthesize(ctx context.Context, text string, voice domain.VoiceConfig) (*domain.Speech, error) {
	text = CleanText(text)
	if text == "" {
		return nil, fmt.Errorf("%w: nothing to synthesize", domain.ErrMalformedResponse)
	}

	model := o.model
	if voice.Model != "" {
		model = voice.Model
	}
	speed := voice.SpeakingRate
	if speed <= 0 {
		speed = 1
	}

	var (
		audio    []byte
		timings  []domain.WordTiming
		duration float64
	)
	for _, chunk := range SplitText(text, openAIInputLimit) {
		resp, err := o.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
			Input:          chunk,
			Model:          openai.SpeechModel(model),
			Voice:          openai.AudioSpeechNewParamsVoice(voice.VoiceID),
			ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
			Speed:          openai.Float(speed),
		})
		if err != nil {
			var apiErr *openai.Error
			if errors.As(err, &apiErr) {
				return nil, fmt.Errorf("openai speech failed with status %d: %w", apiErr.StatusCode, err)
			}
			return nil, fmt.Errorf("openai speech failed: %w", err)
		}

		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read speech audio: %w", err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: empty audio", domain.ErrMalformedResponse)
		}
		audio = append(audio, data...)

		chunkTimings, chunkDuration := EstimateTimings(chunk, speed, duration)
		timings = append(timings, chunkTimings...)
		duration += chunkDuration
	}

	category := usage.CategoryTTSOpenAICharacters
	if model == openAIHDModel {
		category = usage.CategoryTTSOpenAIHDCharacters
	}
	chars := float64(utf8.RuneCountInString(text))

	o.logger.Debug("OpenAI speech synthesized",
		slog.String("model", model),
		slog.String("voice", voice.VoiceID),
		slog.Int("bytes", len(audio)),
		slog.Float64("duration_seconds", duration),
	)

	return &domain.Speech{
		Audio:           audio,
		Format:          "mp3",
		Timings:         timings,
		DurationSeconds: duration,
		Usage: []domain.UsageRecord{
			{Provider: string(domain.VoiceProviderOpenAI), Category: category, Quantity: chars},
			{Provider: string(domain.VoiceProviderOpenAI), Category: usage.CategoryTTSAudioSeconds, Quantity: duration},
		},
	}, nil
}
