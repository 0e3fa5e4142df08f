// Package token provides the token counting utilities used for context
// budgeting and reporting. Budget decisions use Estimate, a pure function of
// the text length, so eviction and truncation are reproducible across runs.
// Count uses the cl100k_base encoding from tiktoken-go for display purposes
// and falls back to Estimate if the encoding cannot be initialized.
package token

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	once     sync.Once
	encoding *tiktoken.Tiktoken
)

func initEncoding() {
	once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
}

// Estimate returns a deterministic token estimate: max(1, runes/4).
// Empty text estimates to 0. This is the only counter the context
// assembler consults when enforcing budgets.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	estimate := len([]rune(text)) / 4
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}

// Count returns an accurate token count using the cl100k_base encoding.
// Falls back to Estimate when tiktoken is unavailable. Used for stats and
// display only, never for budgeting.
func Count(text string) int {
	initEncoding()
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return Estimate(text)
}
