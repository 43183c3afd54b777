// Package processor prepares extracted document text for embedding: the
// Normalizer cleans it, the Chunker splits it into bounded overlapping
// segments.
package processor

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars caps normalized text so a pathological PDF cannot balloon
// the pipeline.
const DefaultMaxChars = 5_000_000

// Normalizer cleans raw extracted text. It is total over its input: every
// string in yields a string out, never an error.
type Normalizer struct {
	maxChars int
}

// NewNormalizer creates a normalizer with the given size cap. A
// non-positive cap falls back to DefaultMaxChars.
func NewNormalizer(maxChars int) *Normalizer {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Normalizer{maxChars: maxChars}
}

// Normalize strips null characters, collapses all line-ending variants to
// "\n", and truncates to the size cap.
func (n *Normalizer) Normalize(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return truncate(text, n.maxChars)
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
