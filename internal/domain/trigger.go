package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Trigger is the message that starts one stage handler invocation.
// Delivery is at-least-once and unordered across sections.
type Trigger struct {
	JobID     string `json:"job_id"`
	SectionID string `json:"section_id,omitempty"`
	Stage     Stage  `json:"stage"`
	Attempt   int    `json:"attempt,omitempty"`
}

// Validate checks a decoded trigger
func (t Trigger) Validate() error {
	if _, err := uuid.Parse(t.JobID); err != nil {
		return fmt.Errorf("%w: job_id must be a valid UUID", ErrInvalidTrigger)
	}
	if _, err := ParseStage(string(t.Stage)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
	}
	if t.Stage.PerSection() && t.SectionID == "" {
		return fmt.Errorf("%w: stage %s requires section_id", ErrInvalidTrigger, t.Stage)
	}
	if !t.Stage.PerSection() && t.SectionID != "" {
		return fmt.Errorf("%w: stage %s takes no section_id", ErrInvalidTrigger, t.Stage)
	}
	return nil
}

// DecodeTrigger parses and validates a trigger message body
func DecodeTrigger(body []byte) (Trigger, error) {
	var t Trigger
	if err := json.Unmarshal(body, &t); err != nil {
		return Trigger{}, fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
	}
	if err := t.Validate(); err != nil {
		return Trigger{}, err
	}
	return t, nil
}
