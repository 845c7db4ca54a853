package rules

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var legalSuffixes = map[string]bool{
	"inc":          true,
	"incorporated": true,
	"llc":          true,
	"llp":          true,
	"lp":           true,
	"corp":         true,
	"corporation":  true,
	"co":           true,
	"company":      true,
	"ltd":          true,
	"limited":      true,
	"plc":          true,
	"gmbh":         true,
	"sa":           true,
	"pty":          true,
}

// NormalizeText lowercases s, strips accents, turns punctuation into spaces
// and collapses whitespace.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(strings.ToLower(s)) {
		switch {
		case unicode.In(r, unicode.Mn):
			// combining mark left over from NFD
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '\'':
			// "McDonald's" -> "mcdonalds"
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeVendor normalizes a merchant name for matching: NormalizeText
// plus removal of trailing legal suffixes such as "Inc." or "LLC".
func NormalizeVendor(s string) string {
	tokens := strings.Fields(NormalizeText(s))
	for len(tokens) > 1 && legalSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// Tokens returns the set of normalized tokens in s.
func Tokens(s string) map[string]bool {
	fields := strings.Fields(NormalizeText(s))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
