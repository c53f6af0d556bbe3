package stage

import (
	"time"

	"github.com/cuongbtq/lecturecast/internal/domain"
)

// Policy bounds how a stage calls its collaborator
type Policy struct {
	// MaxAttempts is the number of failed attempts after which the job fails
	MaxAttempts int
	// Timeout bounds one collaborator call
	Timeout     time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultPolicy returns the built-in policy of a stage
func DefaultPolicy(stage domain.Stage) Policy {
	p := Policy{
		MaxAttempts: 3,
		Timeout:     2 * time.Minute,
		BackoffBase: 2 * time.Second,
		BackoffMax:  time.Minute,
	}
	switch stage {
	case domain.StageAnalyze:
		p.Timeout = 5 * time.Minute
	case domain.StageSynthesize:
		p.MaxAttempts = 2
		p.Timeout = 5 * time.Minute
	}
	return p
}

// Backoff returns the delay before retry number attempt (1-based):
// BackoffBase doubled per previous attempt, capped at BackoffMax
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.BackoffMax > 0 && d >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if p.BackoffMax > 0 && d > p.BackoffMax {
		return p.BackoffMax
	}
	return d
}

func (p Policy) withDefaults(stage domain.Stage) Policy {
	def := DefaultPolicy(stage)
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = def.BackoffBase
	}
	if p.BackoffMax <= 0 {
		p.BackoffMax = def.BackoffMax
	}
	return p
}

// Definition binds a stage to its policy and work
type Definition struct {
	Stage  domain.Stage
	Policy Policy
	Work   Work
}
