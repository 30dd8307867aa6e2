// Package tokens holds the two token counters the engine uses: the budget
// estimator (4 characters per token, always) and an optional exact counter
// for reporting.
package tokens

import (
	"encoding/json"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimate approximates the token cost of text as ceil(len/4). Budget math
// everywhere depends on this exact rule; do not swap in a real tokenizer.
func Estimate(text string) int {
	return (len(text) + 3) / 4
}

// EstimateValue serializes a structured value to JSON and applies the same
// estimation rule.
func EstimateValue(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return Estimate(string(data))
}

var (
	tk     *tiktoken.Tiktoken
	tkErr  error
	tkOnce sync.Once
)

// Count returns the exact cl100k_base token count of text. It is used for
// stats output only, never for budget decisions, and falls back to the
// estimator when the encoding is unavailable (offline first run).
func Count(text string) int {
	tkOnce.Do(func() {
		tk, tkErr = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	})
	if tkErr != nil || tk == nil {
		return Estimate(text)
	}
	return len(tk.Encode(text, nil, nil))
}
