// Package usage converts per-call usage records into ledger charges.
package usage

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/cuongbtq/lecturecast/internal/domain"
)

// Pricing categories
const (
	CategoryLLMInputTokens         = "llm_input_tokens"
	CategoryLLMOutputTokens        = "llm_output_tokens"
	CategoryTTSOpenAICharacters    = "tts_openai_characters"
	CategoryTTSOpenAIHDCharacters  = "tts_openai_hd_characters"
	CategoryTTSElevenLabsCharacter = "tts_elevenlabs_characters"
	CategoryTTSAudioSeconds        = "tts_audio_seconds"
)

// RateTable maps a category to its USD price per unit
type RateTable map[string]float64

// DefaultRates is the rate table compiled into this build
var DefaultRates = RateTable{
	CategoryLLMInputTokens:         0.5e-6,
	CategoryLLMOutputTokens:        3.0e-6,
	CategoryTTSOpenAICharacters:    0.015 / 1000,
	CategoryTTSOpenAIHDCharacters:  0.03 / 1000,
	CategoryTTSElevenLabsCharacter: 200e-6,
	CategoryTTSAudioSeconds:        0,
}

// With returns a copy of r with overrides applied
func (r RateTable) With(overrides map[string]float64) RateTable {
	out := make(RateTable, len(r)+len(overrides))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Validate rejects rates that could make a charge negative or undefined
func (r RateTable) Validate() error {
	for category, rate := range r {
		if !finite(rate) || rate < 0 {
			return fmt.Errorf("rate for %s must be a non-negative number, got %v", category, rate)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Charge is one category increment to apply to a job ledger
type Charge struct {
	Category  string
	Quantity  float64
	AmountUSD float64
}

// Accumulator prices usage records
type Accumulator struct {
	rates  RateTable
	logger *slog.Logger
}

// NewAccumulator creates an Accumulator; a nil table means DefaultRates
func NewAccumulator(rates RateTable, logger *slog.Logger) *Accumulator {
	if rates == nil {
		rates = DefaultRates
	}
	return &Accumulator{rates: rates, logger: logger}
}

// Charges groups records by category and prices them with the current table.
// Charges are increments; the caller adds them to the ledger, never replaces it.
func (a *Accumulator) Charges(records []domain.UsageRecord) ([]Charge, error) {
	byCategory := make(map[string]*Charge)
	for _, rec := range records {
		if rec.Quantity < 0 || !finite(rec.Quantity) {
			return nil, fmt.Errorf("%w: %s %v", domain.ErrInvalidUsage, rec.Category, rec.Quantity)
		}
		if rec.Category == "" {
			return nil, fmt.Errorf("usage record from %q has no category", rec.Provider)
		}
		if rec.Quantity == 0 {
			continue
		}

		rate, ok := a.rates[rec.Category]
		if !ok && a.logger != nil {
			a.logger.Warn("No rate for usage category, recording quantity only",
				slog.String("category", rec.Category),
				slog.String("provider", rec.Provider),
			)
		}

		c, ok := byCategory[rec.Category]
		if !ok {
			c = &Charge{Category: rec.Category}
			byCategory[rec.Category] = c
		}
		c.Quantity += rec.Quantity
		c.AmountUSD += rec.Quantity * rate
	}

	charges := make([]Charge, 0, len(byCategory))
	for _, c := range byCategory {
		charges = append(charges, *c)
	}
	sort.Slice(charges, func(i, j int) bool { return charges[i].Category < charges[j].Category })
	return charges, nil
}

// Apply adds charges to an in-memory ledger. Stores use it to keep the same
// additive rule the database enforces with per-category upserts.
func Apply(ledger domain.Ledger, charges []Charge) {
	for _, c := range charges {
		entry := ledger[c.Category]
		entry.Quantity += c.Quantity
		entry.AmountUSD += c.AmountUSD
		ledger[c.Category] = entry
	}
}
