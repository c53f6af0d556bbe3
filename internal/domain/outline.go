package domain

// Outline is the structured result of document analysis
type Outline struct {
	MainTopics         []string         `json:"main_topics"`
	DifficultyLevel    string           `json:"difficulty_level"`
	TargetAudience     string           `json:"target_audience"`
	Summary            string           `json:"summary"`
	DocumentType       string           `json:"document_type,omitempty"`
	LearningObjectives []string         `json:"learning_objectives,omitempty"`
	Sections           []SectionOutline `json:"suggested_sections"`
}

// SectionOutline is the analysis plan for one section
type SectionOutline struct {
	Title                    string   `json:"title"`
	Topics                   []string `json:"topics,omitempty"`
	KeyPoints                []string `json:"key_points,omitempty"`
	DetailedContent          string   `json:"detailed_content,omitempty"`
	EstimatedDurationMinutes float64  `json:"estimated_duration_minutes,omitempty"`
}

// Script is the spoken-style text for one section
type Script struct {
	SectionID                string  `json:"section_id"`
	Title                    string  `json:"title"`
	Text                     string  `json:"text"`
	WordCount                int     `json:"word_count"`
	EstimatedDurationSeconds float64 `json:"estimated_duration_seconds"`
}

// WordTiming places one spoken word on the audio timeline, in seconds
type WordTiming struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Speech is the result of one synthesis call
type Speech struct {
	Audio           []byte
	Format          string
	Timings         []WordTiming
	DurationSeconds float64
	Usage           []UsageRecord
}
