package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/avast/retry-go/v4"
	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/cuongbtq/lecturecast/internal/stage"
	"github.com/cuongbtq/lecturecast/internal/usage"
)

const (
	DefaultElevenLabsBaseURL = "https://api.elevenlabs.io"
	DefaultElevenLabsModel   = "eleven_multilingual_v2"
)

// ElevenLabsConfig holds settings for the ElevenLabs synthesizer
type ElevenLabsConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ElevenLabs synthesizes speech with character-aligned timestamps
type ElevenLabs struct {
	cfg        ElevenLabsConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewElevenLabs creates an ElevenLabs synthesizer
func NewElevenLabs(cfg ElevenLabsConfig, logger *slog.Logger) (*ElevenLabs, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("elevenlabs api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultElevenLabsBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultElevenLabsModel
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &ElevenLabs{cfg: cfg, httpClient: httpClient, logger: logger}, nil
}

var _ stage.Synthesizer = (*ElevenLabs)(nil)

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type speechResponse struct {
	AudioBase64 string     `json:"audio_base64"`
	Alignment   *alignment `json:"alignment"`
}

// Synthesize calls the with-timestamps endpoint and groups the character
// alignment into word timings
func (e *ElevenLabs) Synthesize(ctx context.Context, text string, voice domain.VoiceConfig) (*domain.Speech, error) {
	text = CleanText(text)
	if text == "" {
		return nil, fmt.Errorf("%w: nothing to synthesize", domain.ErrMalformedResponse)
	}
	if voice.VoiceID == "" {
		return nil, errors.New("elevenlabs voice id is required")
	}

	model := e.cfg.Model
	if voice.Model != "" {
		model = voice.Model
	}

	body, err := json.Marshal(speechRequest{
		Text:    text,
		ModelID: model,
		VoiceSettings: voiceSettings{
			Stability:       voice.Stability,
			SimilarityBoost: voice.SimilarityBoost,
			Style:           voice.Style,
			UseSpeakerBoost: true,
			Speed:           voice.SpeakingRate,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode speech request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/with-timestamps",
		strings.TrimRight(e.cfg.BaseURL, "/"), url.PathEscape(voice.VoiceID))

	var resp speechResponse
	err = retry.Do(
		func() error {
			return e.post(ctx, endpoint, body, &resp)
		},
		retry.Context(ctx),
		retry.Attempts(uint(e.cfg.MaxRetries+1)),
		retry.Delay(e.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: audio is not base64: %v", domain.ErrMalformedResponse, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio", domain.ErrMalformedResponse)
	}

	var (
		timings  []domain.WordTiming
		duration float64
	)
	if resp.Alignment != nil {
		timings = resp.Alignment.words()
		duration = resp.Alignment.duration()
	}
	if len(timings) == 0 {
		timings, duration = EstimateTimings(text, voice.SpeakingRate, 0)
	}

	e.logger.Debug("ElevenLabs speech synthesized",
		slog.String("voice", voice.VoiceID),
		slog.Int("bytes", len(audio)),
		slog.Int("words", len(timings)),
		slog.Float64("duration_seconds", duration),
	)

	return &domain.Speech{
		Audio:           audio,
		Format:          "mp3",
		Timings:         timings,
		DurationSeconds: duration,
		Usage: []domain.UsageRecord{
			{Provider: string(domain.VoiceProviderElevenLabs), Category: usage.CategoryTTSElevenLabsCharacter, Quantity: float64(utf8.RuneCountInString(text))},
			{Provider: string(domain.VoiceProviderElevenLabs), Category: usage.CategoryTTSAudioSeconds, Quantity: duration},
		},
	}, nil
}

func (e *ElevenLabs) post(ctx context.Context, endpoint string, body []byte, out *speechResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return retry.Unrecoverable(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("xi-api-key", e.cfg.APIKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("elevenlabs returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return err
		}
		return retry.Unrecoverable(err)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Unrecoverable(fmt.Errorf("%w: decode elevenlabs response: %v", domain.ErrMalformedResponse, err))
	}
	return nil
}
