package tts

import (
	"errors"
	"fmt"

	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/cuongbtq/lecturecast/internal/stage"
)

// ErrUnknownProvider is returned when no synthesizer is registered for a voice provider
var ErrUnknownProvider = errors.New("unknown voice provider")

// Registry maps voice providers to synthesizers
type Registry struct {
	synthesizers map[domain.VoiceProvider]stage.Synthesizer
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{synthesizers: make(map[domain.VoiceProvider]stage.Synthesizer)}
}

// Register adds or replaces the synthesizer for provider
func (r *Registry) Register(provider domain.VoiceProvider, s stage.Synthesizer) {
	r.synthesizers[provider] = s
}

var _ stage.SynthesizerSelector = (*Registry)(nil)

// For returns the synthesizer for voice.Provider
func (r *Registry) For(voice domain.VoiceConfig) (stage.Synthesizer, error) {
	s, ok := r.synthesizers[voice.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, voice.Provider)
	}
	return s, nil
}
