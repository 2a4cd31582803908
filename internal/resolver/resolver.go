// Package resolver turns free text (English or Japanese) into a canonical city
// name. It is pure: every function reads the static tables in tables.go and
// nothing else.
package resolver

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// cityPatterns are tried in order; the first pattern that matches decides.
// Whitespace classes include U+3000 so full-width spaces separate words too.
// The English prepositions need word boundaries or they match inside names
// such as "Atlantis" or "Beijing".
var cityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:weather|天気|てんき|天候)[\s\x{3000}]*(?:for|in|at|4|の)?[\s\x{3000}]*([A-Za-zぁ-んァ-ン一-龯]+)`),
	regexp.MustCompile(`(?i)([A-Za-zぁ-んァ-ン一-龯]+)(?:[\s\x{3000}]+の天気|[\s\x{3000}]+weather|[\s\x{3000}]+の天候)`),
	regexp.MustCompile(`(?i)(?:\b(?:in|at|for)\b|の)[\s\x{3000}]*([A-Za-zぁ-んァ-ン一-龯]+)`),
	regexp.MustCompile(`(?i)\b(?:weather|天気)[\s\x{3000}]*(?:for|4)[\s\x{3000}]+([A-Za-zぁ-んァ-ン一-龯]+)`),
}

// Resolve extracts the city a message is most likely about.
// Returns ("", false) when nothing in the text looks like a city.
func Resolve(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}
	lower := strings.ToLower(trimmed)

	if city, ok := exactMatch(trimmed); ok {
		return city, true
	}

	for _, d := range districts {
		if strings.Contains(trimmed, d.key) || strings.Contains(lower, strings.ToLower(d.key)) {
			return d.city, true
		}
	}

	for _, c := range localizedCities {
		if strings.Contains(trimmed, c.key) {
			return c.city, true
		}
	}

	for _, p := range cityPatterns {
		m := p.FindStringSubmatch(text)
		if len(m) < 2 || m[1] == "" {
			continue
		}
		candidate := strings.TrimSpace(m[1])
		if city, ok := exactMatch(candidate); ok {
			return city, true
		}
		return candidate, true
	}

	for _, token := range commonCities {
		if strings.Contains(lower, token) {
			return capitalize(token), true
		}
	}
	return "", false
}

// Normalize maps a caller-supplied city through the exact-match tables only.
// Unknown names come back trimmed but otherwise unchanged.
func Normalize(candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if city, ok := exactMatch(trimmed); ok {
		return city
	}
	return trimmed
}

// exactMatch checks the localized table, then districts exactly, then districts lower-cased.
func exactMatch(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	if city, ok := localizedIndex[s]; ok {
		return city, true
	}
	if city, ok := districtIndex[s]; ok {
		return city, true
	}
	if city, ok := districtIndex[strings.ToLower(s)]; ok {
		return city, true
	}
	return "", false
}

// LooksLikeCity reports whether a message is short enough and free of
// whitespace so it can be tried verbatim as a city name.
func LooksLikeCity(message string, maxRunes int) bool {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" || utf8.RuneCountInString(trimmed) >= maxRunes {
		return false
	}
	return strings.IndexFunc(trimmed, unicode.IsSpace) < 0
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
