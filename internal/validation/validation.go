// Package validation checks request fields before they reach the assistant.
package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var (
	// ErrCityTooLong is returned when a city exceeds the maximum length in runes.
	ErrCityTooLong = errors.New("city too long")

	// ErrMessageRequired is returned for an empty or whitespace-only chat message.
	ErrMessageRequired = errors.New("Message is required")

	// ErrMessageTooLong is returned when a chat message exceeds the maximum length in runes.
	ErrMessageTooLong = errors.New("message too long")

	// ErrPromptRequired is returned for an empty suggestion prompt.
	ErrPromptRequired = errors.New("Prompt is required")

	// ErrLocationRequired is returned when neither city nor coordinates are given.
	ErrLocationRequired = errors.New("Please provide either city name or coordinates (lat, lon)")

	// ErrInvalidCoordinates is returned for unparseable or out-of-range coordinates.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// ValidateCity cleans a caller-supplied city. Runes other than letters (any
// script), digits, comma, hyphen, period and apostrophe become spaces, runs of
// whitespace collapse to one space and the result is trimmed. An empty result
// is valid: callers treat it as "no city". Only an over-long city is rejected.
func ValidateCity(input string, maxLen int) (string, error) {
	s := strings.Join(strings.FieldsFunc(input, func(r rune) bool {
		return r == ' ' || !isAllowedCityRune(r)
	}), " ")
	if maxLen > 0 && len([]rune(s)) > maxLen {
		return "", ErrCityTooLong
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.Mn, r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'', 'ー', '・':
		return true
	}
	return false
}

// ValidateMessage rejects empty messages and messages over maxLen runes.
// The message is returned as given; the resolver does its own trimming.
func ValidateMessage(input string, maxLen int) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", ErrMessageRequired
	}
	if maxLen > 0 && len([]rune(input)) > maxLen {
		return "", ErrMessageTooLong
	}
	return input, nil
}

// ValidatePrompt rejects empty suggestion prompts and prompts over maxLen runes.
func ValidatePrompt(input string, maxLen int) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", ErrPromptRequired
	}
	if maxLen > 0 && len([]rune(input)) > maxLen {
		return "", ErrMessageTooLong
	}
	return input, nil
}

// ParseCoordinates parses query-string coordinates. ok is false when both
// are empty. Supplying only one of the pair is an error.
func ParseCoordinates(latStr, lonStr string) (lat, lon float64, ok bool, err error) {
	latStr, lonStr = strings.TrimSpace(latStr), strings.TrimSpace(lonStr)
	if latStr == "" && lonStr == "" {
		return 0, 0, false, nil
	}
	if latStr == "" || lonStr == "" {
		return 0, 0, false, fmt.Errorf("%w: lat and lon must be given together", ErrInvalidCoordinates)
	}
	lat, err = strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("%w: lat %q", ErrInvalidCoordinates, latStr)
	}
	lon, err = strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("%w: lon %q", ErrInvalidCoordinates, lonStr)
	}
	if err := ValidateCoordinates(lat, lon); err != nil {
		return 0, 0, false, err
	}
	return lat, lon, true, nil
}

// ValidateCoordinates checks latitude and longitude ranges.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 || lat != lat {
		return fmt.Errorf("%w: lat %v out of range", ErrInvalidCoordinates, lat)
	}
	if lon < -180 || lon > 180 || lon != lon {
		return fmt.Errorf("%w: lon %v out of range", ErrInvalidCoordinates, lon)
	}
	return nil
}
