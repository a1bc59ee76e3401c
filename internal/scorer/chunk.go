package scorer

import "strings"

// Chunks returns every run of window consecutive whitespace-separated tokens
// of text, joined by single spaces, ordered by start offset. A text of n
// tokens yields n-window+1 chunks, or none when n < window.
func Chunks(text string, window int) []string {
	if window < 0 {
		return nil
	}
	tokens := strings.Fields(text)
	if len(tokens) < window {
		return nil
	}

	chunks := make([]string, 0, len(tokens)-window+1)
	for i := 0; i+window <= len(tokens); i++ {
		chunks = append(chunks, strings.Join(tokens[i:i+window], " "))
	}
	return chunks
}
