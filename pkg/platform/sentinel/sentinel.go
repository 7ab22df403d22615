package sentinel

import "errors"

// Sentinel errors for infrastructure facts. The ledger and other infrastructure
// layers return these (optionally wrapped) so services can translate them into
// domain errors.
//
// - ErrNotFound: key does not exist in the store
// - ErrInvalidState: stored value cannot be interpreted
// - ErrUnavailable: store or downstream temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
