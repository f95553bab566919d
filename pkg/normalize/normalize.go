// Package normalize provides deterministic text canonicalization for
// reference-data names. Every comparison in the matching pipeline happens on
// normalized text; raw input is only kept for display and provenance.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// accentStripper decomposes to NFD, drops combining marks, and recomposes.
// "Société" → "Societe".
var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize canonicalizes a free-text name: trim, strip diacritics, collapse
// whitespace runs, and drop characters outside the allowed set (alphanumeric,
// space, hyphen, period, comma, ampersand, parentheses, apostrophe).
// Pure, total, and idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(name string) string {
	s := strings.TrimSpace(name)
	if s == "" {
		return ""
	}

	if stripped, _, err := transform.String(accentStripper, s); err == nil {
		s = stripped
	}

	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteRune(' ')
				prevSpace = true
			}
		case allowedPunct(r):
			b.WriteRune(r)
			prevSpace = false
		}
	}

	return strings.TrimSpace(b.String())
}

// Key is the case-insensitive comparison key used by every lookup map.
func Key(name string) string {
	return strings.ToLower(Normalize(name))
}

func allowedPunct(r rune) bool {
	switch r {
	case '-', '.', ',', '&', '(', ')', '\'':
		return true
	}
	return false
}

// suffixTable is the recognized legal-entity suffix set, keyed by the
// lowercased, punctuation-stripped final token.
var suffixTable = map[string]struct{}{
	"llc": {}, "ltd": {}, "limited": {}, "inc": {}, "incorporated": {},
	"plc": {}, "corp": {}, "co": {}, "company": {},
	"gmbh": {}, "ag": {}, "kg": {}, "sa": {}, "sarl": {}, "sas": {},
	"srl": {}, "spa": {}, "nv": {}, "bv": {}, "ab": {}, "as": {}, "oy": {},
	"llp": {}, "lp": {}, "pty": {}, "kk": {}, "pte": {},
}

// exactSuffixSet is a deliberately small equivalence set used by the
// aggressive suffix-aware exact check. "Acme" and "Acme LLC" collapse to the
// same key; "Corp" and "Corporation" do not (synonyms are out of scope), and
// two-letter country suffixes like SA/AG stay out so those variants surface
// through fuzzy review instead of silently collapsing.
var exactSuffixSet = map[string]struct{}{
	"llc": {}, "ltd": {}, "inc": {}, "corp": {}, "plc": {}, "co": {},
	"gmbh": {},
}

// ExtractSuffix returns the recognized legal-entity suffix at the end of the
// name (lowercased, punctuation stripped), if the name ends with one preceded
// by a space or comma.
func ExtractSuffix(name string) (string, bool) {
	return trailingSuffix(name, suffixTable)
}

// StripSuffix removes a suffix from the small exact-equivalence set, for the
// suffix-aware exact check. Returns the comparison key of the remainder, or
// "" when no recognized suffix is present.
func StripSuffix(name string) string {
	return stripTrailing(name, exactSuffixSet)
}

// StripAnySuffix removes any suffix from the full recognized table. Used as a
// likely-same signal during fuzzy re-ranking ("Acme Inc" and "Acme
// Incorporated" share a stem), never for exact matching.
func StripAnySuffix(name string) string {
	return stripTrailing(name, suffixTable)
}

func stripTrailing(name string, table map[string]struct{}) string {
	key := Key(name)
	if _, ok := trailingSuffix(key, table); !ok {
		return ""
	}
	trimmed := strings.TrimRight(key, " ,")
	trimmed = trimmed[:len(trimmed)-len(lastToken(trimmed))]
	return strings.TrimRight(trimmed, " ,")
}

func trailingSuffix(name string, table map[string]struct{}) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	token := lastToken(key)
	if token == "" || len(token) == len(key) {
		// a bare suffix is a name, not a suffixed name
		return "", false
	}
	sep := key[len(key)-len(token)-1]
	if sep != ' ' && sep != ',' {
		return "", false
	}
	cleaned := stripTokenPunct(token)
	if cleaned == "" {
		return "", false
	}
	if _, ok := table[cleaned]; !ok {
		return "", false
	}
	return cleaned, true
}

func lastToken(s string) string {
	s = strings.TrimRight(s, " ,")
	idx := strings.LastIndexAny(s, " ,")
	if idx == -1 {
		return s
	}
	return s[idx+1:]
}

func stripTokenPunct(token string) string {
	var b strings.Builder
	for _, r := range token {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DefaultShortNameLength is the column budget for generated short names.
const DefaultShortNameLength = 50

// GenerateShortName derives a display-friendly short form of a name. It is a
// convenience for rendering, never an identity: matching must not use it.
//
// Strategy, in order: keep the name when it fits; drop a recognized legal
// suffix; build an acronym from capitalized words; truncate with an ellipsis.
func GenerateShortName(name string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultShortNameLength
	}
	trimmed := strings.TrimSpace(name)
	runes := []rune(trimmed)
	if len(runes) <= maxLength {
		return trimmed
	}

	if _, ok := ExtractSuffix(trimmed); ok {
		base := strings.TrimRight(trimmed, " ,")
		base = strings.TrimSpace(base[:len(base)-len(lastToken(base))])
		base = strings.TrimRight(base, " ,")
		if base != "" && len([]rune(base)) <= maxLength {
			return base
		}
	}

	if acronym, ok := buildAcronym(trimmed); ok {
		return acronym
	}

	// Truncate on runes: multi-byte characters survive Normalize and a byte
	// slice could cut one in half.
	if maxLength > 3 {
		return string(runes[:maxLength-3]) + "..."
	}
	return string(runes[:maxLength])
}

// buildAcronym collects first letters of capitalized words longer than two
// characters. Only worthwhile for long multi-word names: requires more than
// three words and an acronym length within [3,10].
func buildAcronym(name string) (string, bool) {
	words := strings.Fields(name)
	if len(words) <= 3 {
		return "", false
	}
	var b strings.Builder
	for _, w := range words {
		r := []rune(w)
		if len(r) > 2 && unicode.IsUpper(r[0]) {
			b.WriteRune(r[0])
		}
	}
	acronym := b.String()
	if len(acronym) < 3 || len(acronym) > 10 {
		return "", false
	}
	return acronym, true
}
