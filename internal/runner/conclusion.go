package runner

import "strings"

// ConclusionMarker is the section header models are asked to put their
// final answer under.
const ConclusionMarker = "### Conclusion"

// ExtractConclusion returns the trimmed text after the first conclusion
// marker, or the whole trimmed text when there is none.
func ExtractConclusion(text string) string {
	if _, after, found := strings.Cut(text, ConclusionMarker); found {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(text)
}
