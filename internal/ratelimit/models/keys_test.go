package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRateLimitKey(t *testing.T) {
	assert.Equal(t, "rl:203.0.113.7", NewRateLimitKey(KeyPrefixIP, "203.0.113.7"))
	assert.Equal(t, "rl:2001_db8__1", NewRateLimitKey(KeyPrefixIP, "2001:db8::1"))
	assert.NotEqual(t,
		NewRateLimitKey(KeyPrefixIP, "a:b"),
		NewRateLimitKey(KeyPrefix("rl:a"), "b"),
		"identifier delimiters must not collide with prefixes")
}
