package dto

// UploadResponse is returned by POST /api/v1/jobs
type UploadResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
	Message   string `json:"message"`
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobSummaryDTO `json:"jobs"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type JobSummaryDTO struct {
	JobID      string  `json:"job_id"`
	Filename   string  `json:"filename"`
	PersonaID  string  `json:"persona_id"`
	Status     string  `json:"status"`
	Percentage int     `json:"percentage"`
	TotalUSD   float64 `json:"total_usd"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

// JobStatusResponse is the polling view of one job
type JobStatusResponse struct {
	JobID     string      `json:"job_id"`
	Status    string      `json:"status"`
	Progress  ProgressDTO `json:"progress"`
	Document  DocumentDTO `json:"document"`
	PersonaID string      `json:"persona_id"`
	Cost      CostDTO     `json:"cost"`
	Failure   *FailureDTO `json:"failure,omitempty"`
	// Sections and TotalDurationSeconds are set once the job completed
	Sections             []SectionDTO `json:"sections,omitempty"`
	TotalDurationSeconds float64      `json:"total_duration_seconds,omitempty"`
	CreatedAt            string       `json:"created_at"`
	UpdatedAt            string       `json:"updated_at"`
}

type ProgressDTO struct {
	Percentage int    `json:"percentage"`
	Message    string `json:"message"`
}

type DocumentDTO struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	PageCount int    `json:"page_count"`
}

type CostDTO struct {
	TotalUSD   float64                `json:"total_usd"`
	Categories map[string]CategoryDTO `json:"categories"`
}

type CategoryDTO struct {
	Quantity  float64 `json:"quantity"`
	AmountUSD float64 `json:"amount_usd"`
}

type FailureDTO struct {
	Stage      string `json:"stage"`
	SectionID  string `json:"section_id,omitempty"`
	Class      string `json:"class"`
	Message    string `json:"message"`
	RetryCount int    `json:"retry_count"`
	At         string `json:"at"`
}

type SectionDTO struct {
	SectionID       string  `json:"section_id"`
	Position        int     `json:"position"`
	Title           string  `json:"title"`
	Script          string  `json:"script,omitempty"`
	Audio           string  `json:"audio,omitempty"`
	Timings         string  `json:"timings,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
