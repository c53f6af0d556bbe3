package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultPersonaID is used when an upload names no persona or an unknown one
const DefaultPersonaID = "prof-classics-001"

// VoiceProvider names a speech synthesis backend
type VoiceProvider string

const (
	VoiceProviderOpenAI     VoiceProvider = "openai"
	VoiceProviderElevenLabs VoiceProvider = "elevenlabs"
)

// Valid reports whether p is a recognized provider
func (p VoiceProvider) Valid() bool {
	return p == VoiceProviderOpenAI || p == VoiceProviderElevenLabs
}

// Level is a low/medium/high knob used by persona settings
type Level string

const (
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
)

func (l Level) valid() bool {
	switch l {
	case LevelLow, LevelModerate, LevelMedium, LevelHigh:
		return true
	}
	return false
}

// Persona is the narrator profile a job is scripted and voiced with
type Persona struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	Description       string       `json:"description"`
	SystemPrompt      string       `json:"system_prompt,omitempty"`
	Traits            []string     `json:"traits,omitempty"`
	TeachingStyle     string       `json:"teaching_style"`
	Tone              string       `json:"tone"`
	HumorLevel        Level        `json:"humor_level"`
	ExamplePreference string       `json:"example_preference,omitempty"`
	Voice             VoiceConfig  `json:"voice"`
	Script            ScriptConfig `json:"script"`
	BuiltIn           bool         `json:"built_in"`
}

// VoiceConfig selects and tunes the synthesizer
type VoiceConfig struct {
	Provider        VoiceProvider `json:"provider"`
	VoiceID         string        `json:"voice_id"`
	Model           string        `json:"model,omitempty"`
	Stability       float64       `json:"stability"`
	SimilarityBoost float64       `json:"similarity_boost"`
	Style           float64       `json:"style"`
	SpeakingRate    float64       `json:"speaking_rate"`
}

// ScriptConfig shapes the generated script
type ScriptConfig struct {
	MaxSectionLength  int   `json:"max_section_length"`
	IncludeExamples   bool  `json:"include_examples"`
	ExampleCount      int   `json:"example_count"`
	UseQuestions      bool  `json:"use_questions"`
	QuestionFrequency Level `json:"question_frequency"`
}

var personaIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)

// Validate checks a persona once, when it enters the system
func (p *Persona) Validate() error {
	if !personaIDPattern.MatchString(p.ID) {
		return fmt.Errorf("invalid persona id %q", p.ID)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("persona name is required")
	}
	if p.HumorLevel != "" && !p.HumorLevel.valid() {
		return fmt.Errorf("invalid humor_level %q", p.HumorLevel)
	}
	if err := p.Voice.Validate(); err != nil {
		return fmt.Errorf("invalid voice: %w", err)
	}
	if err := p.Script.Validate(); err != nil {
		return fmt.Errorf("invalid script config: %w", err)
	}
	return nil
}

// Validate checks the voice settings ranges
func (v *VoiceConfig) Validate() error {
	if !v.Provider.Valid() {
		return fmt.Errorf("unknown provider %q", v.Provider)
	}
	if strings.TrimSpace(v.VoiceID) == "" {
		return fmt.Errorf("voice_id is required")
	}
	for name, value := range map[string]float64{
		"stability":        v.Stability,
		"similarity_boost": v.SimilarityBoost,
		"style":            v.Style,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if v.SpeakingRate < 0.25 || v.SpeakingRate > 4.0 {
		return fmt.Errorf("speaking_rate must be between 0.25 and 4.0")
	}
	return nil
}

// Validate checks the script settings
func (c *ScriptConfig) Validate() error {
	if c.MaxSectionLength <= 0 {
		return fmt.Errorf("max_section_length must be greater than 0")
	}
	if c.ExampleCount < 0 {
		return fmt.Errorf("example_count must not be negative")
	}
	if c.QuestionFrequency != "" && !c.QuestionFrequency.valid() {
		return fmt.Errorf("invalid question_frequency %q", c.QuestionFrequency)
	}
	return nil
}

// DefaultScriptConfig mirrors the settings a persona gets when it specifies none
func DefaultScriptConfig() ScriptConfig {
	return ScriptConfig{
		MaxSectionLength:  500,
		IncludeExamples:   true,
		ExampleCount:      2,
		UseQuestions:      true,
		QuestionFrequency: LevelMedium,
	}
}

// BuiltInPersonas returns the personas that ship with the service
func BuiltInPersonas() []Persona {
	classics := DefaultScriptConfig()
	classics.MaxSectionLength = 600

	straight := DefaultScriptConfig()
	straight.MaxSectionLength = 400
	straight.ExampleCount = 1
	straight.UseQuestions = false

	coach := DefaultScriptConfig()
	coach.QuestionFrequency = LevelHigh

	return []Persona{
		{
			ID:                "prof-classics-001",
			Name:              "Professor Classics",
			Description:       "Witty, Socratic, uses analogies",
			SystemPrompt:      "You are Professor Classics, a witty and knowledgeable university professor. You teach with the Socratic method and historical analogies, and you only teach from the provided material.",
			Traits:            []string{"witty", "knowledgeable", "engaging", "slightly dramatic"},
			TeachingStyle:     "Uses Socratic method to guide discovery and connects concepts to history",
			Tone:              "Conversational with academic rigor, like a beloved university professor",
			HumorLevel:        LevelModerate,
			ExamplePreference: "historical and classical analogies",
			Voice: VoiceConfig{
				Provider:        VoiceProviderOpenAI,
				VoiceID:         "onyx",
				Stability:       0.5,
				SimilarityBoost: 0.75,
				SpeakingRate:    1.0,
			},
			Script:  classics,
			BuiltIn: true,
		},
		{
			ID:                "dr-straightforward-001",
			Name:              "Dr. Straightforward",
			Description:       "Direct, no-nonsense, efficient",
			SystemPrompt:      "You are Dr. Straightforward. You explain concepts directly with clear definitions and no unnecessary metaphors. Stick strictly to the provided material.",
			Traits:            []string{"precise", "clear", "efficient", "focused"},
			TeachingStyle:     "Direct instruction with clear definitions and logical flow",
			Tone:              "Professional and concise",
			HumorLevel:        LevelLow,
			ExamplePreference: "technical and practical examples",
			Voice: VoiceConfig{
				Provider:        VoiceProviderOpenAI,
				VoiceID:         "echo",
				Stability:       0.4,
				SimilarityBoost: 0.8,
				SpeakingRate:    1.0,
			},
			Script:  straight,
			BuiltIn: true,
		},
		{
			ID:                "coach-motivator-001",
			Name:              "Coach Motivator",
			Description:       "Encouraging, enthusiastic, practical",
			SystemPrompt:      "You are Coach Motivator. You are high-energy, supportive and practical, and you frame every concept as a challenge to be mastered.",
			Traits:            []string{"enthusiastic", "supportive", "energetic", "practical"},
			TeachingStyle:     "Encourages the learner, frames challenges as opportunities",
			Tone:              "High energy and motivational",
			HumorLevel:        LevelModerate,
			ExamplePreference: "sports and real-world application analogies",
			Voice: VoiceConfig{
				Provider:        VoiceProviderElevenLabs,
				VoiceID:         "pNInz6obpgDQGcFmaJgB",
				Model:           "eleven_multilingual_v2",
				Stability:       0.5,
				SimilarityBoost: 0.75,
				SpeakingRate:    1.1,
			},
			Script:  coach,
			BuiltIn: true,
		},
	}
}

// BuiltInPersona looks up a built-in persona by id
func BuiltInPersona(id string) (Persona, bool) {
	for _, p := range BuiltInPersonas() {
		if p.ID == id {
			return p, true
		}
	}
	return Persona{}, false
}
