// Package tts turns script text into narrated audio with word timings.
package tts

import (
	"strings"

	"github.com/cuongbtq/lecturecast/internal/domain"
)

// WordsPerMinute is the narration pace assumed when a provider returns no timings
const WordsPerMinute = 150

var markdownStripper = strings.NewReplacer("*", "", "#", "")

// CleanText removes markdown artifacts that would otherwise be read aloud
func CleanText(text string) string {
	return strings.TrimSpace(markdownStripper.Replace(text))
}

// EstimateTimings spreads the words of text evenly over the duration implied
// by WordsPerMinute scaled by rate. offset shifts the whole timeline.
func EstimateTimings(text string, rate, offset float64) ([]domain.WordTiming, float64) {
	if rate <= 0 {
		rate = 1
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, 0
	}

	perWord := 60 / (WordsPerMinute * rate)
	timings := make([]domain.WordTiming, 0, len(words))
	at := offset
	for _, w := range words {
		timings = append(timings, domain.WordTiming{Word: w, Start: at, End: at + perWord})
		at += perWord
	}
	return timings, perWord * float64(len(words))
}

// SplitText breaks text into chunks of at most limit bytes on sentence
// boundaries. A single sentence longer than limit is split on spaces.
func SplitText(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}

	for _, sentence := range sentences(text) {
		if cur.Len()+len(sentence)+1 > limit {
			flush()
		}
		if len(sentence) > limit {
			for _, w := range strings.Fields(sentence) {
				if cur.Len()+len(w)+1 > limit {
					flush()
				}
				if cur.Len() > 0 {
					cur.WriteByte(' ')
				}
				cur.WriteString(w)
			}
			continue
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(sentence)
	}
	flush()
	return chunks
}

func sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '?', '!':
			if i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\n' {
				if s := strings.TrimSpace(text[start : i+1]); s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// alignment is character-level timing as returned by providers that support it
type alignment struct {
	Characters []string  `json:"characters"`
	Starts     []float64 `json:"character_start_times_seconds"`
	Ends       []float64 `json:"character_end_times_seconds"`
}

// words groups character timings into word timings. Whitespace ends a word.
func (a alignment) words() []domain.WordTiming {
	n := min(len(a.Characters), len(a.Starts), len(a.Ends))

	var (
		timings []domain.WordTiming
		word    strings.Builder
		start   float64
		end     float64
	)
	for i := 0; i < n; i++ {
		ch := a.Characters[i]
		if strings.TrimSpace(ch) == "" {
			if word.Len() > 0 {
				timings = append(timings, domain.WordTiming{Word: word.String(), Start: start, End: end})
				word.Reset()
			}
			continue
		}
		if word.Len() == 0 {
			start = a.Starts[i]
		}
		word.WriteString(ch)
		end = a.Ends[i]
	}
	if word.Len() > 0 {
		timings = append(timings, domain.WordTiming{Word: word.String(), Start: start, End: end})
	}
	return timings
}

func (a alignment) duration() float64 {
	if len(a.Ends) == 0 {
		return 0
	}
	return a.Ends[len(a.Ends)-1]
}
