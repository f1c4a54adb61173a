package match

import (
	"fmt"
	"strings"

	"github.com/jinford/nutrilog/internal/core/nutrition"
)

const systemPrompt = `You are a nutrition database matcher. Given a user's food search term and a list of candidate foods from a database, select the single best match.

Rules:
1. Consider semantic meaning, not just text similarity
2. "chicken breast" should match "Chicken, broilers or fryers, breast" over "Chicken, canned"
3. Generic terms like "apple" should match the plain/raw version over processed variants
4. If the user specifies preparation (e.g., "grilled salmon"), prefer raw/unprocessed if no exact match
5. Consider the category as additional context

Output ONLY a single number (1-indexed) representing the best match. No explanation, no text, just the number.
If none of the candidates are reasonable matches, output 0.`

// BuildCandidateList は候補を1始まりの番号付きリストに整形する
func BuildCandidateList(candidates []nutrition.Candidate) string {
	lines := make([]string, len(candidates))
	for i, c := range candidates {
		lines[i] = fmt.Sprintf("%d. %s (%s)", i+1, c.Name, c.Category)
	}
	return strings.Join(lines, "\n")
}

// BuildUserPrompt は照合用のユーザープロンプトを構築する
func BuildUserPrompt(term string, candidates []nutrition.Candidate) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("User searched for: %q\n\n", term))
	sb.WriteString("Candidates:\n")
	sb.WriteString(BuildCandidateList(candidates))
	sb.WriteString("\n\nWhich number is the best match?")
	return sb.String()
}
