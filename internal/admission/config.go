package admission

import (
	"fmt"
	"time"
)

// DuplicateKeyMode selects which normalized fields identify a registrant.
type DuplicateKeyMode string

const (
	// DuplicateKeyNameBirthPhone identifies a registrant by child name, child
	// birth date and parent phone.
	DuplicateKeyNameBirthPhone DuplicateKeyMode = "name_birth_phone"
	// DuplicateKeyPhoneBirth identifies a registrant by parent phone and child
	// birth date, so siblings sharing a birth date collapse into one.
	DuplicateKeyPhoneBirth DuplicateKeyMode = "phone_birth"
)

// ParseDuplicateKeyMode validates a configured mode. Empty selects the default.
func ParseDuplicateKeyMode(s string) (DuplicateKeyMode, error) {
	switch DuplicateKeyMode(s) {
	case "":
		return DuplicateKeyNameBirthPhone, nil
	case DuplicateKeyNameBirthPhone, DuplicateKeyPhoneBirth:
		return DuplicateKeyMode(s), nil
	default:
		return "", fmt.Errorf("unknown duplicate key mode %q", s)
	}
}

// Config enumerates every admission option. The pipeline reads nothing from
// the environment.
type Config struct {
	OpenAt               time.Time
	RateLimitWindow      time.Duration
	DuplicateWindow      time.Duration
	DuplicateSuppression bool
	DuplicateKeyMode     DuplicateKeyMode
	ExportLimit          int
}

// DefaultConfig opens at 2025-10-12 17:00 UTC+09:00 with a one minute rate
// limit and five minute duplicate window.
func DefaultConfig() Config {
	return Config{
		OpenAt:               time.Date(2025, 10, 12, 17, 0, 0, 0, time.FixedZone("KST", 9*60*60)),
		RateLimitWindow:      60 * time.Second,
		DuplicateWindow:      300 * time.Second,
		DuplicateSuppression: true,
		DuplicateKeyMode:     DuplicateKeyNameBirthPhone,
		ExportLimit:          1000,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.OpenAt.IsZero() {
		c.OpenAt = def.OpenAt
	}
	if c.DuplicateWindow <= 0 {
		c.DuplicateWindow = def.DuplicateWindow
	}
	if c.DuplicateKeyMode == "" {
		c.DuplicateKeyMode = def.DuplicateKeyMode
	}
	if c.ExportLimit <= 0 {
		c.ExportLimit = def.ExportLimit
	}
	return c
}
