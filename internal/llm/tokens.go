package llm

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates token counts when a provider reports none.
// The cl100k_base encoding is loaded on first use; if it cannot be loaded the
// counter falls back to four characters per token.
type TokenCounter struct {
	exact    bool
	once     sync.Once
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter creates a counter; exact=false always uses the character estimate
func NewTokenCounter(exact bool) *TokenCounter {
	return &TokenCounter{exact: exact}
}

// Count returns the token count of text
func (tc *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if tc.exact {
		tc.once.Do(func() {
			encoding, err := tiktoken.GetEncoding("cl100k_base")
			if err == nil {
				tc.encoding = encoding
			}
		})
		if tc.encoding != nil {
			return len(tc.encoding.Encode(text, nil, nil))
		}
	}
	n := utf8.RuneCountInString(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
