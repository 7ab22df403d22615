package audit

import (
	"fmt"
	"time"
)

// LogKey is the ledger key holding the accumulated plain-text acceptance log.
const LogKey = "log"

// Event summarizes one accepted submission for the human-readable log.
type Event struct {
	Timestamp     time.Time
	SourceAddress string
	Branch        string
	ChildName     string
	AddrBase      string
	AddrDetail    string
}

// Line renders the event as a single newline-terminated log line:
//
//	[2025-10-12T08:00:01.000Z] 203.0.113.7 | Gangnam | Kim Minji | Seoul 12-3
func (e Event) Line() string {
	return fmt.Sprintf("[%s] %s | %s | %s | %s %s\n",
		e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		e.SourceAddress, e.Branch, e.ChildName, e.AddrBase, e.AddrDetail)
}
