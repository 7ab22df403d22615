package admission

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/epitomedu/epi/internal/admission/models"
	pstrings "github.com/epitomedu/epi/pkg/platform/strings"
)

const (
	// RecordKeyPrefix namespaces accepted records in the ledger.
	RecordKeyPrefix = "apply:"
	// DuplicateKeyPrefix namespaces duplicate markers in the ledger.
	DuplicateKeyPrefix = "dup:"
)

// RecordKey returns the ledger key of the record with the given id.
func RecordKey(id string) string {
	return RecordKeyPrefix + id
}

// DuplicateKey derives the duplicate marker key from a normalized submission.
// The identifying fields are hashed so the key space carries no personal data.
func DuplicateKey(mode DuplicateKeyMode, sub models.Submission) string {
	var parts []string
	switch mode {
	case DuplicateKeyPhoneBirth:
		parts = []string{sub.ParentPhone, sub.ChildBirth}
	default:
		parts = []string{pstrings.FoldIdentity(sub.ChildName), sub.ChildBirth, sub.ParentPhone}
	}
	sum := sha256.Sum256([]byte(string(mode) + "\x1f" + strings.Join(parts, "\x1f")))
	return DuplicateKeyPrefix + hex.EncodeToString(sum[:])
}

// NewID returns "<13-digit unix millis>-<12 hex chars>". Ids sort by
// acceptance time to the millisecond.
func NewID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%013d-%s", now.UnixMilli(), random[:12])
}
