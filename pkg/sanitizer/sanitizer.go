// Package sanitizer normalizes free-text input (addresses, category
// labels) before validation and persistence.
package sanitizer

import (
	"regexp"
	"strings"
	"unicode"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var (
	reKeepLettersOnly = regexp.MustCompile(`[^\p{L}]+`)
	reTrimUnderscores = regexp.MustCompile(`_+`)
)

// TrimAndNormalize trims leading/trailing whitespace and collapses internal
// runs of whitespace to single spaces.
func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		} else {
			result.WriteRune(r)
			lastWasSpace = false
		}
	}
	return result.String()
}

func collapseUnderscores(s string) string {
	s = reTrimUnderscores.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// NormalizeAddress keeps human-readable address text, whitespace-collapsed.
func NormalizeAddress(address string) string {
	return TrimAndNormalize(address)
}

// SanitizeCategoryLabel produces the canonical, lowercased key form of a
// service category label for matching and filtering.
func SanitizeCategoryLabel(input string) string {
	p := Pipeline{
		TrimAndNormalize,
		strings.ToLower,
		func(s string) string { return reKeepLettersOnly.ReplaceAllString(s, "_") },
		collapseUnderscores,
	}
	return p.Apply(input)
}

// SanitizeSlice applies strategy to every value, dropping empties and
// duplicates while preserving first-seen order.
func SanitizeSlice(values []string, strategy Strategy) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, v := range values {
		s := strategy(v)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
