package util

import (
	"regexp"
	"strings"
)

var reSpaces = regexp.MustCompile(`\s+`)

func NormalizeSpaces(input string) string {
	input = strings.ReplaceAll(input, "\u00A0", " ")
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// NormalizeHeader lowercases a spreadsheet header and folds separators to "_",
// so "Partner Name" and "partner_name" address the same column.
func NormalizeHeader(input string) string {
	s := strings.ToLower(NormalizeSpaces(input))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return s
}

// ContainsFold reports whether needle is a case-insensitive substring of haystack.
// needle must already be lowercased.
func ContainsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), needle)
}

func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func FloatPtr(v float64) *float64 {
	return &v
}

func IntPtr(v int) *int {
	return &v
}
