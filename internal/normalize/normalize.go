// Package normalize canonicalizes free-text vendor strings so that
// evidence keyed on "the same vendor" actually unions correctly.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// asciiFold decomposes to NFKD and drops combining marks, turning
// "Café Münchén" into "Cafe Munchen".
var asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var (
	// posPrefixRe strips point-of-sale / transaction-type prefixes that
	// banks prepend to the merchant name.
	posPrefixRe = regexp.MustCompile(`^(?:pos purchase|pos|web auth|debit card purchase|debit|card transaction|ach|recurring payment|chk card)\s+`)

	// storeNumberRe strips trailing store/location identifiers.
	storeNumberRe = regexp.MustCompile(`\s*(?:#\s?\d+|store\s+\d+|location\s+\d+|unit\s+\d+|no\.?\s?\d+)\s*$`)

	// trailingDigitsRe strips a bare trailing numeric blob left over after
	// the labeled forms above ("STARBUCKS 08821").
	trailingDigitsRe = regexp.MustCompile(`\s+\d{3,}$`)

	nonAlnumRe    = regexp.MustCompile(`[^a-z0-9\s]`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	corpStopwords = map[string]bool{
		"inc": true, "llc": true, "corp": true, "co": true, "ltd": true,
		"incorporated": true, "corporation": true, "company": true,
	}
)

// Key canonicalizes a raw vendor string into the aggregation and rule-match
// key. Pure and deterministic: equal merchants must produce equal keys, and
// distinct merchants must not collide, or evidence unions and leakage-free
// evaluation splits both break.
func Key(raw string) string {
	s, _, err := transform.String(asciiFold, raw)
	if err != nil {
		// Fold failures leave the input untouched rather than dropping it;
		// the remaining pipeline still applies.
		s = raw
	}
	s = strings.ToLower(strings.TrimSpace(s))

	for {
		stripped := posPrefixRe.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}

	s = storeNumberRe.ReplaceAllString(s, "")
	s = trailingDigitsRe.ReplaceAllString(s, "")
	s = nonAlnumRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	words := strings.Fields(s)
	kept := words[:0]
	for i, w := range words {
		// Stopwords are only corporate suffixes when they are not the whole
		// name ("CO" alone stays).
		if corpStopwords[w] && !(i == 0 && len(words) == 1) {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}
