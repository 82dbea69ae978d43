package parser

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	nonDigitPattern   = regexp.MustCompile(`[^0-9]`)
	nonDecimalPattern = regexp.MustCompile(`[^0-9.]`)
)

// ParseInt keeps only the digits of text and parses them.
// Text without digits (or too many of them to fit an int) yields 0.
func ParseInt(text string) int {
	digits := nonDigitPattern.ReplaceAllString(text, "")
	if digits == "" {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

// ParseFloat keeps only digits and dots of text and parses the longest
// valid prefix, so "1.2.3" reads as 1.2. Text without digits yields 0.
func ParseFloat(text string) float64 {
	cleaned := nonDecimalPattern.ReplaceAllString(text, "")

	// Cut at the second dot
	if first := strings.IndexByte(cleaned, '.'); first != -1 {
		if second := strings.IndexByte(cleaned[first+1:], '.'); second != -1 {
			cleaned = cleaned[:first+1+second]
		}
	}

	cleaned = strings.TrimSuffix(cleaned, ".")
	if cleaned == "" {
		return 0
	}

	val, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return val
}

// NormalizeFloor repairs floor numbers glued to neighbouring digits in the
// card markup: anything above 999 keeps only its first two digits.
func NormalizeFloor(raw int) int {
	if raw <= 999 {
		return raw
	}
	s := strconv.Itoa(raw)
	n, _ := strconv.Atoi(s[:2])
	return n
}

// EncodeTags returns the JSON array form of the non-empty tag labels.
func EncodeTags(tags []string) string {
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = CleanText(tag); tag != "" {
			cleaned = append(cleaned, tag)
		}
	}
	data, err := json.Marshal(cleaned)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// CleanText trims text and collapses any run of unicode whitespace
// (including non-breaking spaces) into a single space.
func CleanText(text string) string {
	return strings.Join(strings.FieldsFunc(text, unicode.IsSpace), " ")
}
