package ai

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/arturoeanton/go-star-search/internal/port"
)

// contextLengthHints are substrings providers use when an input is too long.
var contextLengthHints = []string{
	"maximum context length",
	"context length",
	"too many tokens",
	"input length exceeds",
}

// classifyStatus maps an HTTP status and error message onto port errors so the
// indexer can decide between skipping an item and failing the run.
func classifyStatus(provider string, code int, message string) error {
	lower := strings.ToLower(message)
	for _, hint := range contextLengthHints {
		if strings.Contains(lower, hint) {
			return fmt.Errorf("%s: %w: %s", provider, port.ErrLengthExceeded, message)
		}
	}

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%s: %w (%d): %s", provider, port.ErrProviderAuth, code, message)
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%s: %w (%d): %s", provider, port.ErrRateOrNetwork, code, message)
	}
	return fmt.Errorf("%s API error (%d): %s", provider, code, message)
}

func checkDimension(provider string, want int, vectors [][]float32) error {
	if want <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != want {
			return fmt.Errorf("%s: %w: vector %d has %d components, want %d", provider, port.ErrDimensionMismatch, i, len(v), want)
		}
	}
	return nil
}
