// Package budget shrinks document text to fit an embedding model's token limit.
//
// No tokenizer is involved: a token is approximated as CharsPerToken runes.
// Every function here is pure, so the same input always yields the same text.
package budget

import (
	"math"
	"strings"

	"github.com/arturoeanton/go-star-search/internal/domain"
)

const (
	// CharsPerToken approximates how many characters make up one token.
	CharsPerToken = 4

	// DefaultTokenBudget is the per-document budget handed to the embedder.
	DefaultTokenBudget = 6000

	// ShrinkFactor is applied to the budget after a length-exceeded rejection.
	ShrinkFactor = 0.75

	// TruncationMarker joins head and tail when Fit cuts text.
	TruncationMarker = "\n[...content truncated...]\n"

	// ContentMarker joins head and tail of an oversized readme.
	ContentMarker = "\n[...README truncated...]\n"

	// NoContent stands in for an empty readme.
	NoContent = "No README available"

	headFraction        = 0.6
	longInputFraction   = 0.4
	contentHeadFraction = 0.6
	formattingAllowance = 100
	longInputMultiplier = 2
)

// MaxChars returns the character ceiling for a token budget.
func MaxChars(tokenBudget int) int {
	if tokenBudget <= 0 {
		return 0
	}
	return tokenBudget * CharsPerToken
}

// Fit returns text unchanged when it is within tokenBudget, otherwise a head
// and tail slice joined by TruncationMarker. The result never exceeds
// MaxChars(tokenBudget) runes. Inputs longer than twice the limit keep less
// head and more tail.
func Fit(text string, tokenBudget int) string {
	maxChars := MaxChars(tokenBudget)
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	fraction := headFraction
	if len(runes) > maxChars*longInputMultiplier {
		fraction = longInputFraction
	}
	return headTail(runes, maxChars, fraction, TruncationMarker)
}

// Document composes the text embedded for an item: metadata first, which is
// never cut, then as much of the readme as the remaining budget allows. Fit is
// applied to the result as a final guard.
func Document(item domain.Item, tokenBudget int) string {
	metadata := Metadata(item)

	content := item.Content
	if strings.TrimSpace(content) == "" {
		content = NoContent
	}

	remaining := MaxChars(tokenBudget) - runeLen(metadata) - formattingAllowance
	if runes := []rune(content); len(runes) > remaining {
		if remaining > 0 {
			content = headTail(runes, remaining, contentHeadFraction, ContentMarker)
		} else {
			content = ""
		}
	}

	return Fit(metadata+"\n\nREADME:\n"+content, tokenBudget)
}

// Metadata renders the descriptive lines of an item.
func Metadata(item domain.Item) string {
	lines := []string{"Repository: " + item.Name}
	if item.Description != "" {
		lines = append(lines, "Description: "+item.Description)
	}
	if len(item.Topics) > 0 {
		lines = append(lines, "Topics: "+strings.Join(item.Topics, ", "))
	}
	return strings.Join(lines, "\n")
}

// Shrink reduces a token budget by ShrinkFactor, never below one token.
func Shrink(tokenBudget int) int {
	next := int(math.Floor(float64(tokenBudget) * ShrinkFactor))
	if next < 1 {
		return 1
	}
	return next
}

// headTail keeps fraction of the available space from the start of runes and
// the rest from the end, so that the output is exactly limit runes long.
func headTail(runes []rune, limit int, fraction float64, marker string) string {
	markerLen := runeLen(marker)
	if limit <= markerLen {
		return string(runes[:limit])
	}

	avail := limit - markerLen
	head := int(float64(avail) * fraction)
	tail := avail - head

	var b strings.Builder
	b.Grow(limit * 4)
	b.WriteString(string(runes[:head]))
	b.WriteString(marker)
	b.WriteString(string(runes[len(runes)-tail:]))
	return b.String()
}

func runeLen(s string) int {
	return len([]rune(s))
}
