package sheets

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	progMetalYearPattern = regexp.MustCompile(`^(\d{4})\s+Prog-metal$`)
	bareYearPattern      = regexp.MustCompile(`^\d{4}$`)
	leadingYearPattern   = regexp.MustCompile(`^(\d{4})`)
)

// In-scope tab suffixes. Matching is case-sensitive.
const (
	ProgMetalSuffix = " Prog-metal"
	ProgRockSuffix  = " Prog-rock"
)

// NormalizeLabel trims a raw tab label and reports whether it is usable.
//
// A usable label is non-empty ASCII made of letters, digits, spaces, dashes and underscores.
// Tabs, newlines and other control characters make the label unusable.
func NormalizeLabel(raw string) (string, bool) {
	label := strings.TrimSpace(raw)
	if label == "" {
		return "", false
	}

	for _, c := range label {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == ' ', c == '-', c == '_':
		default:
			return "", false
		}
	}
	return label, true
}

// ExtractYear finds the release year a tab label refers to.
//
// "2025 Prog-metal" and "2017" are the known layouts; any label starting with four digits
// falls back to those digits.
func ExtractYear(label string) (int, bool) {
	if m := progMetalYearPattern.FindStringSubmatch(label); m != nil {
		return atoi(m[1])
	}
	if bareYearPattern.MatchString(label) {
		return atoi(label)
	}
	if m := leadingYearPattern.FindStringSubmatch(label); m != nil {
		return atoi(m[1])
	}
	return 0, false
}

// IsInScope reports whether a tab holds release rows to import.
func IsInScope(label string) bool {
	return strings.HasSuffix(label, ProgMetalSuffix) ||
		strings.HasSuffix(label, ProgRockSuffix) ||
		bareYearPattern.MatchString(label)
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
