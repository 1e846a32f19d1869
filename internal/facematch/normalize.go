package facematch

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxNameLength is the longest accepted identity name in runes.
const MaxNameLength = 64

var (
	errEmptyName    = errors.New("name is empty")
	errNameTooLong  = errors.New("name is longer than 64 characters")
	errNameControl  = errors.New("name contains control characters")
	errNameSlash    = errors.New("name contains a path separator")
	errNameEncoding = errors.New("name is not valid UTF-8")
)

// NormalizeName trims surrounding whitespace and converts to NFC so that
// visually identical names map to the same storage key.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ValidateName normalises name and checks it can serve as a storage key.
// Comparison stays case-sensitive: "Alice" and "alice" are distinct.
func ValidateName(name string) (string, error) {
	if !utf8.ValidString(name) {
		return "", errNameEncoding
	}
	name = NormalizeName(name)
	if name == "" {
		return "", errEmptyName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", errNameTooLong
	}
	for _, r := range name {
		switch {
		case r == '/' || r == '\\':
			return "", errNameSlash
		case unicode.IsControl(r):
			return "", errNameControl
		}
	}
	return name, nil
}

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// FoldName reduces a name to a loose comparison key (lowercase, no
// diacritics, spaces for dashes). Used only to warn about lookalike names.
func FoldName(name string) string {
	name = RemoveDiacritics(NormalizeName(name))
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}
