package agent

import (
	"github.com/pkoukk/tiktoken-go"
)

// estimateTokens approximates a token count for providers that report
// no usage. Falls back to a bytes/4 heuristic when the encoding is
// unavailable (e.g. offline).
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
