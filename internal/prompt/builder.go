// Package prompt assembles generation prompts from retrieved passages. The
// builder is pure: no I/O, no side effects, total over its input domain.
package prompt

import (
	"fmt"
	"strings"

	"github.com/paperquery/paperquery/internal/models"
)

const qaInstructions = "You are a precise study assistant. Answer ONLY using the provided excerpts. " +
	"Cite the excerpts you used inline as [index], matching the numbered excerpts below. " +
	"If the excerpts do not contain the answer, say \"I don't know\"."

const summaryInstructions = "You are a precise study assistant. Summarize the provided excerpts in your own words. " +
	"Paraphrase only: never copy more than 5 consecutive words verbatim from the excerpts. " +
	"Keep the summary between 90 and 120 words."

// summaryTriggers select the summarization template when any of them
// appears in the question, case-insensitively.
var summaryTriggers = []string{"summarize", "summary"}

// Build assembles the prompt for question against the retrieved passages,
// rendered in the order supplied (distance-ascending). An empty passage
// list still produces a valid prompt with an empty context section.
func Build(question string, passages []models.Passage) string {
	var sb strings.Builder
	sb.WriteString(instructionsFor(question))
	sb.WriteString("\n\nCONTEXT:\n")
	sb.WriteString(renderPassages(passages))
	sb.WriteString("\n\nQUESTION: ")
	sb.WriteString(question)
	return sb.String()
}

func instructionsFor(question string) string {
	q := strings.ToLower(question)
	for _, trigger := range summaryTriggers {
		if strings.Contains(q, trigger) {
			return summaryInstructions
		}
	}
	return qaInstructions
}

// renderPassages renders each passage as "[index] title\ntext", 1-based,
// joined by blank lines.
func renderPassages(passages []models.Passage) string {
	parts := make([]string, len(passages))
	for i, p := range passages {
		parts[i] = fmt.Sprintf("[%d] %s\n%s", i+1, p.Title, p.Text)
	}
	return strings.Join(parts, "\n\n")
}
