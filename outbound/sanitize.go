// Package outbound prepares reply text for the modem: it folds it into the
// ASCII subset the GSM text mode path can carry and splits it into
// SMS-sized chunks.
package outbound

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/unicode/runenames"
)

var punctuation = strings.NewReplacer(
	"\u2018", "'", // left single quote
	"\u2019", "'", // right single quote, apostrophe
	"\u201a", "'",
	"\u201c", `"`,
	"\u201d", `"`,
	"\u201e", `"`,
	"\u2013", "-", // en dash
	"\u2014", "-", // em dash
	"\u2026", "...",
	"\u00a0", " ", // no-break space
	"\u2022", "*", // bullet
)

// Sanitize returns text reduced to ASCII.
//
// Symbols such as emoji are replaced by their Unicode name in brackets,
// e.g. "[grinning_face]". Typographic quotes and dashes become their ASCII
// counterparts, accented letters lose their accents, and anything still
// outside ASCII is dropped.
func Sanitize(text string) string {
	text = punctuation.Replace(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r > unicode.MaxASCII && unicode.Is(unicode.So, r) {
			b.WriteString(symbolTag(r))
			continue
		}
		b.WriteRune(r)
	}

	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	folded, _, err := transform.String(t, b.String())
	if err != nil {
		return asciiOnly(b.String())
	}
	return folded
}

func symbolTag(r rune) string {
	name := runenames.Name(r)
	if name == "" {
		return ""
	}
	return "[" + strings.ReplaceAll(strings.ToLower(name), " ", "_") + "]"
}

func asciiOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)
}
