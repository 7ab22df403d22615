// Package strings provides string normalization utilities.
package strings

import (
	"strings"
	"unicode"
)

// DigitsOnly strips every non-digit rune.
//
// Example:
//
//	DigitsOnly("010-1234 5678")
//	// Returns: "01012345678"
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CollapseSpace trims s and replaces every run of whitespace with a single space.
//
// Example:
//
//	CollapseSpace("  Kim   Min\tJun ")
//	// Returns: "Kim Min Jun"
func CollapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// FoldIdentity is CollapseSpace plus lowercasing, for comparing human names
// where letter case and spacing carry no identity.
func FoldIdentity(s string) string {
	return strings.ToLower(CollapseSpace(s))
}
