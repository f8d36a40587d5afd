// Package concept turns raw medical concept labels into canonical slugs and
// renders slugs back into human-readable labels.
//
// A slug is an ASCII token in [a-z0-9_] that always starts with Namespace.
// Labels taken from UMLS-coded sources look like "UMLS:C0008031_chest_pain";
// their slug is "umls_c0008031_chest_pain".
package concept

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Namespace prefixes every concept slug.
const Namespace = "umls_"

// ErrUnusableLabel is returned by NormalizeStrict when a raw label carries no
// usable characters.
var ErrUnusableLabel = errors.New("label normalizes to an empty concept identifier")

var (
	sourcePrefix = regexp.MustCompile(`(?i)^umls:`)
	invalidChars = regexp.MustCompile(`[^a-z0-9_]`)
	codedSlug    = regexp.MustCompile(`(?i)^umls[_:](c[0-9]+)_(.+)`)
	bareMarker   = regexp.MustCompile(`(?i)^umls[_:]`)
	bareCode     = regexp.MustCompile(`^c[0-9]+_`)
)

// Normalize returns the canonical slug for raw. It never fails: input with no
// usable characters yields the bare Namespace. Normalize is idempotent.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = sourcePrefix.ReplaceAllString(s, "")
	s = strings.NewReplacer(":", "_", " ", "_").Replace(s)
	s = strings.ToLower(transliterate(s))
	s = invalidChars.ReplaceAllString(s, "")
	if !strings.HasPrefix(s, Namespace) {
		s = Namespace + s
	}
	return s
}

// NormalizeStrict is Normalize for build-time input: it rejects labels that
// are blank or normalize to the bare Namespace.
func NormalizeStrict(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrUnusableLabel
	}
	slug := Normalize(raw)
	if slug == Namespace {
		return "", ErrUnusableLabel
	}
	return slug, nil
}

// Render converts a slug to a display label. With showCode set and a concept
// code present the result is "C0008031: chest pain", otherwise "chest pain".
func Render(slug string, showCode bool) string {
	code, label := Split(slug)
	if showCode && code != "" {
		return strings.ToUpper(code) + ": " + label
	}
	return label
}

// Split separates a slug into its concept code (possibly empty) and its
// free-text label with underscores turned into spaces.
func Split(slug string) (code, label string) {
	slug = asciiOnly(slug)
	if m := codedSlug.FindStringSubmatch(slug); m != nil {
		return m[1], strings.ReplaceAll(m[2], "_", " ")
	}
	label = bareMarker.ReplaceAllString(slug, "")
	label = bareCode.ReplaceAllString(label, "")
	return "", strings.ReplaceAll(label, "_", " ")
}

// FreeText strips a leading "UMLS:<code>_" marker from a raw label and
// lowercases the rest. Raw labels without a code are returned lowercased.
func FreeText(raw string) string {
	s := strings.TrimSpace(raw)
	if loc := sourcePrefix.FindStringIndex(s); loc != nil {
		rest := s[loc[1]:]
		if i := strings.Index(rest, "_"); i >= 0 {
			rest = rest[i+1:]
		}
		s = rest
	}
	return strings.ToLower(strings.ReplaceAll(s, "_", " "))
}

// transliterate decomposes accented letters and drops the combining marks so
// that "Fièvre" becomes "Fievre". Anything else outside ASCII is removed later.
func transliterate(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func asciiOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] < utf8.RuneSelf {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
