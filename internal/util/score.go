package util

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var scorePattern = regexp.MustCompile(`^([0-9]+(?:[.,][0-9]+)?)\s*(%?)$`)

// ParseScore reads a similarity written as 0.85, "0,85" or "85%".
// Values outside [0,1] after percent scaling are rejected.
func ParseScore(input string) (float64, bool) {
	compact := strings.TrimSpace(strings.ReplaceAll(input, "\u00A0", " "))
	m := scorePattern.FindStringSubmatch(compact)
	if m == nil {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return 0, false
	}
	if m[2] == "%" {
		parsed /= 100
	}
	return ClampScore(parsed)
}

func ClampScore(v float64) (float64, bool) {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return 0, false
	}
	return v, true
}
