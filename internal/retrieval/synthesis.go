package retrieval

import (
	"fmt"
	"strings"
)

const defaultMaxContextTokens = 3000

const synthesisInstructions = `You are an expert analyst specializing in startup funding and venture capital.
Answer only from the numbered funding records you are given and cite them as [n].
Give specific companies, amounts, investors and dates when the records contain them.
If the records are limited or do not answer the question, say so plainly instead of guessing.`

// buildSynthesisPrompt renders the evidence as compact numbered records,
// keeping records in rank order and dropping any that no longer fit the token
// budget.
func buildSynthesisPrompt(query string, docs []string, metas []Metadata, distances []float64, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = defaultMaxContextTokens
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %q\n\nRetrieved funding records:\n", query)
	remaining := maxTokens - EstimateTokens(sb.String())

	included := 0
	for i, doc := range docs {
		entry := formatRecord(i+1, doc, metaAt(metas, i), distanceAt(distances, i))
		tokens := EstimateTokens(entry)
		if tokens > remaining {
			continue
		}
		sb.WriteString(entry)
		remaining -= tokens
		included++
	}
	if included < len(docs) {
		fmt.Fprintf(&sb, "(%d further records omitted for length)\n", len(docs)-included)
	}
	sb.WriteString("\nAnswer the question using these records.")
	return sb.String()
}

func formatRecord(n int, doc string, meta Metadata, distance float64) string {
	name := meta.EntityName
	if name == "" {
		name = "Unknown"
	}
	text := strings.Join(strings.Fields(doc), " ")
	return fmt.Sprintf("[%d] %s (relevance %.2f): %s\n", n, name, 1-distance, text)
}

func metaAt(metas []Metadata, i int) Metadata {
	if i < len(metas) {
		return metas[i]
	}
	return Metadata{}
}

func distanceAt(distances []float64, i int) float64 {
	if i < len(distances) {
		return distances[i]
	}
	return 1
}

// EstimateTokens approximates the token count at four characters per token.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
