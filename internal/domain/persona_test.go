package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltInPersonasAreValid(t *testing.T) {
	personas := BuiltInPersonas()
	require.Len(t, personas, 3)
	for _, p := range personas {
		assert.NoError(t, p.Validate(), p.ID)
		assert.True(t, p.BuiltIn)
	}

	_, ok := BuiltInPersona(DefaultPersonaID)
	assert.True(t, ok)
}

func TestPersona_Validate(t *testing.T) {
	valid := func() Persona {
		p, _ := BuiltInPersona("dr-straightforward-001")
		p.ID = "custom-narrator"
		p.BuiltIn = false
		return p
	}

	tests := []struct {
		name      string
		mutate    func(p *Persona)
		wantErr   bool
		errString string
	}{
		{name: "valid persona", mutate: func(p *Persona) {}},
		{name: "bad id", mutate: func(p *Persona) { p.ID = "Bad ID!" }, wantErr: true, errString: "invalid persona id"},
		{name: "missing name", mutate: func(p *Persona) { p.Name = " " }, wantErr: true, errString: "persona name is required"},
		{name: "unknown provider", mutate: func(p *Persona) { p.Voice.Provider = "google" }, wantErr: true, errString: "unknown provider"},
		{name: "missing voice id", mutate: func(p *Persona) { p.Voice.VoiceID = "" }, wantErr: true, errString: "voice_id is required"},
		{name: "stability out of range", mutate: func(p *Persona) { p.Voice.Stability = 1.5 }, wantErr: true, errString: "stability must be between 0 and 1"},
		{name: "speaking rate too slow", mutate: func(p *Persona) { p.Voice.SpeakingRate = 0.1 }, wantErr: true, errString: "speaking_rate"},
		{name: "zero section length", mutate: func(p *Persona) { p.Script.MaxSectionLength = 0 }, wantErr: true, errString: "max_section_length"},
		{name: "bad question frequency", mutate: func(p *Persona) { p.Script.QuestionFrequency = "always" }, wantErr: true, errString: "question_frequency"},
		{name: "bad humor level", mutate: func(p *Persona) { p.HumorLevel = "extreme" }, wantErr: true, errString: "humor_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
