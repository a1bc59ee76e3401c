package scorer

import "strings"

var (
	// punctuationReplacer blanks out the characters that carry no meaning
	// when comparing a gold answer against free-form text.
	punctuationReplacer = strings.NewReplacer(
		".", " ",
		";", " ",
		":", " ",
		"*", " ",
		`"`, " ",
		"-", " ",
	)

	// commaReplacer additionally blanks out commas. Commas are kept when a gold
	// answer still has to be split into its enumerated items.
	commaReplacer = strings.NewReplacer(
		".", " ",
		",", " ",
		";", " ",
		":", " ",
		"*", " ",
		`"`, " ",
		"-", " ",
	)
)

// Normalize canonicalizes free-form text for comparison: punctuation becomes
// whitespace, whitespace runs collapse to a single space, surrounding space is
// trimmed and the result is lowercased. Commas are only replaced when
// removeComma is true.
//
// Normalize is idempotent for a fixed removeComma.
func Normalize(text string, removeComma bool) string {
	r := punctuationReplacer
	if removeComma {
		r = commaReplacer
	}
	return strings.ToLower(strings.Join(strings.Fields(r.Replace(text)), " "))
}
