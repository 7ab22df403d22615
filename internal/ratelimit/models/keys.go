package models

import "strings"

// KeyPrefix namespaces marker keys in the shared ledger.
type KeyPrefix string

const (
	KeyPrefixIP KeyPrefix = "rl"
)

// SanitizeKeySegment escapes delimiter characters in marker key segments
// to prevent key collision attacks where client-controlled identifiers containing
// ':' could manipulate adjacent keys.
//
// IPv6 addresses are the common case: "2001:db8::1" becomes "2001_db8__1".
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// NewRateLimitKey builds the marker key for one source address.
func NewRateLimitKey(prefix KeyPrefix, identifier string) string {
	return string(prefix) + ":" + SanitizeKeySegment(identifier)
}
