package safety

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxInputLength caps sanitized input. Longer messages are truncated, not
// rejected.
const maxInputLength = 2000

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// Sanitize strips markup and normalizes user input before screening and
// prompt assembly:
//   - HTML/script tags are removed
//   - zero-width and combining characters that could evade pattern matching
//     are dropped
//   - runs of whitespace collapse to single spaces
//   - the result is truncated to maxInputLength characters
func Sanitize(input string) string {
	stripped := tagPattern.ReplaceAllString(input, "")

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		if unicode.Is(unicode.Cf, r) || unicode.Is(unicode.Mn, r) {
			continue
		}
		if unicode.IsSpace(r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}

	collapsed := strings.Join(strings.Fields(b.String()), " ")
	if len(collapsed) > maxInputLength {
		// Never cut a multi-byte rune in half; back up to its start.
		cut := maxInputLength
		for cut > 0 && !utf8.RuneStart(collapsed[cut]) {
			cut--
		}
		collapsed = collapsed[:cut]
	}
	return collapsed
}
