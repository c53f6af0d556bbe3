package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/cuongbtq/lecturecast/internal/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func usageQuantity(records []domain.UsageRecord, category string) float64 {
	for _, r := range records {
		if r.Category == category {
			return r.Quantity
		}
	}
	return -1
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "## Heading\nSome **bold** text", want: "Heading\nSome bold text"},
		{in: "plain", want: "plain"},
		{in: " *** ", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanText(tt.in))
	}
}

func TestEstimateTimings(t *testing.T) {
	timings, duration := EstimateTimings("one two three", 1, 0)
	require.Len(t, timings, 3)
	assert.InDelta(t, 1.2, duration, 1e-9)
	assert.Equal(t, "two", timings[1].Word)
	assert.InDelta(t, 0.4, timings[1].Start, 1e-9)
	assert.InDelta(t, 0.8, timings[1].End, 1e-9)

	fast, fastDuration := EstimateTimings("one two three", 2, 10)
	assert.InDelta(t, 0.6, fastDuration, 1e-9)
	assert.InDelta(t, 10.0, fast[0].Start, 1e-9)

	none, zero := EstimateTimings("   ", 1, 0)
	assert.Empty(t, none)
	assert.Zero(t, zero)
}

func TestSplitText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{name: "fits", text: "Short one.", limit: 100, want: []string{"Short one."}},
		{name: "empty", text: "  ", limit: 10, want: nil},
		{
			name:  "sentence boundaries",
			text:  "First sentence. Second sentence! Third?",
			limit: 20,
			want:  []string{"First sentence.", "Second sentence!", "Third?"},
		},
		{
			name:  "long sentence split on spaces",
			text:  "alpha beta gamma delta",
			limit: 11,
			want:  []string{"alpha beta", "gamma delta"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitText(tt.text, tt.limit)
			assert.Equal(t, tt.want, got)
			for _, c := range got {
				assert.LessOrEqual(t, len(c), tt.limit)
			}
		})
	}
}

func TestAlignment_Words(t *testing.T) {
	a := alignment{
		Characters: []string{"H", "i", " ", "y", "o", "u", "."},
		Starts:     []float64{0.0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6},
		Ends:       []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7},
	}
	words := a.words()
	require.Len(t, words, 2)
	assert.Equal(t, domain.WordTiming{Word: "Hi", Start: 0.0, End: 0.2}, words[0])
	assert.Equal(t, domain.WordTiming{Word: "you.", Start: 0.3, End: 0.7}, words[1])
	assert.InDelta(t, 0.7, a.duration(), 1e-9)

	// mismatched slices are truncated to the shortest
	short := alignment{Characters: []string{"a", "b"}, Starts: []float64{0}, Ends: []float64{0.1}}
	assert.Equal(t, []domain.WordTiming{{Word: "a", Start: 0, End: 0.1}}, short.words())
}

func TestRegistry_For(t *testing.T) {
	reg := NewRegistry()
	el, err := NewElevenLabs(ElevenLabsConfig{APIKey: "k"}, discardLogger())
	require.NoError(t, err)
	reg.Register(domain.VoiceProviderElevenLabs, el)

	got, err := reg.For(domain.VoiceConfig{Provider: domain.VoiceProviderElevenLabs})
	require.NoError(t, err)
	assert.Same(t, el, got)

	_, err = reg.For(domain.VoiceConfig{Provider: domain.VoiceProviderOpenAI})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestOpenAI_Synthesize(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fake-mp3"))
	}))
	defer srv.Close()

	synth, err := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/"}, discardLogger())
	require.NoError(t, err)

	speech, err := synth.Synthesize(context.Background(), "**Hello** there, class.", domain.VoiceConfig{
		Provider:     domain.VoiceProviderOpenAI,
		VoiceID:      "onyx",
		SpeakingRate: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("ID3fake-mp3"), speech.Audio)
	assert.Equal(t, "mp3", speech.Format)
	assert.Len(t, speech.Timings, 3)
	assert.InDelta(t, 1.2, speech.DurationSeconds, 1e-9)
	assert.Equal(t, float64(len("Hello there, class.")), usageQuantity(speech.Usage, usage.CategoryTTSOpenAICharacters))
	assert.Equal(t, "onyx", gotBody["voice"])
	assert.Equal(t, "Hello there, class.", gotBody["input"])
}

func TestOpenAI_HDModelCategory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("mp3"))
	}))
	defer srv.Close()

	synth, err := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/"}, discardLogger())
	require.NoError(t, err)

	speech, err := synth.Synthesize(context.Background(), "abc", domain.VoiceConfig{VoiceID: "echo", Model: "tts-1-hd"})
	require.NoError(t, err)
	assert.Equal(t, 3.0, usageQuantity(speech.Usage, usage.CategoryTTSOpenAIHDCharacters))
	assert.Equal(t, -1.0, usageQuantity(speech.Usage, usage.CategoryTTSOpenAICharacters))
}

func TestOpenAI_EmptyText(t *testing.T) {
	synth, err := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1/"}, discardLogger())
	require.NoError(t, err)

	_, err = synth.Synthesize(context.Background(), "# *", domain.VoiceConfig{VoiceID: "onyx"})
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func elevenLabsResponse(audio string) map[string]any {
	return map[string]any{
		"audio_base64": base64.StdEncoding.EncodeToString([]byte(audio)),
		"alignment": map[string]any{
			"characters":                    []string{"G", "o", " ", "t", "e", "a", "m"},
			"character_start_times_seconds": []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6},
			"character_end_times_seconds":   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.9},
		},
	}
}

func TestElevenLabs_Synthesize(t *testing.T) {
	var gotReq speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/voice-123/with-timestamps", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("xi-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(elevenLabsResponse("audio-bytes"))
	}))
	defer srv.Close()

	synth, err := NewElevenLabs(ElevenLabsConfig{APIKey: "secret", BaseURL: srv.URL}, discardLogger())
	require.NoError(t, err)

	speech, err := synth.Synthesize(context.Background(), "Go team", domain.VoiceConfig{
		Provider:        domain.VoiceProviderElevenLabs,
		VoiceID:         "voice-123",
		Stability:       0.5,
		SimilarityBoost: 0.75,
		SpeakingRate:    1.1,
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("audio-bytes"), speech.Audio)
	require.Len(t, speech.Timings, 2)
	assert.Equal(t, "team", speech.Timings[1].Word)
	assert.InDelta(t, 0.9, speech.DurationSeconds, 1e-9)
	assert.Equal(t, 7.0, usageQuantity(speech.Usage, usage.CategoryTTSElevenLabsCharacter))

	assert.Equal(t, DefaultElevenLabsModel, gotReq.ModelID)
	assert.Equal(t, 0.75, gotReq.VoiceSettings.SimilarityBoost)
	assert.True(t, gotReq.VoiceSettings.UseSpeakerBoost)
}

func TestElevenLabs_Errors(t *testing.T) {
	tests := []struct {
		name      string
		responses []int
		wantCalls int32
		wantErr   bool
	}{
		{name: "retries server errors then succeeds", responses: []int{http.StatusServiceUnavailable, http.StatusOK}, wantCalls: 2},
		{name: "gives up after attempts", responses: []int{http.StatusBadGateway, http.StatusBadGateway, http.StatusBadGateway}, wantCalls: 2, wantErr: true},
		{name: "does not retry client errors", responses: []int{http.StatusUnauthorized}, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				status := tt.responses[min(int(n), len(tt.responses))-1]
				if status != http.StatusOK {
					w.WriteHeader(status)
					_, _ = w.Write([]byte(`{"detail":"nope"}`))
					return
				}
				_ = json.NewEncoder(w).Encode(elevenLabsResponse("ok"))
			}))
			defer srv.Close()

			synth, err := NewElevenLabs(ElevenLabsConfig{
				APIKey:     "k",
				BaseURL:    srv.URL,
				MaxRetries: 1,
				RetryDelay: time.Millisecond,
			}, discardLogger())
			require.NoError(t, err)

			_, err = synth.Synthesize(context.Background(), "Go team", domain.VoiceConfig{VoiceID: "v"})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestElevenLabs_FallsBackToEstimatedTimings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"audio_base64": base64.StdEncoding.EncodeToString([]byte("x")),
		})
	}))
	defer srv.Close()

	synth, err := NewElevenLabs(ElevenLabsConfig{APIKey: "k", BaseURL: srv.URL}, discardLogger())
	require.NoError(t, err)

	speech, err := synth.Synthesize(context.Background(), strings.Repeat("word ", 150), domain.VoiceConfig{VoiceID: "v", SpeakingRate: 1})
	require.NoError(t, err)
	assert.Len(t, speech.Timings, 150)
	assert.InDelta(t, 60.0, speech.DurationSeconds, 1e-6)
}
