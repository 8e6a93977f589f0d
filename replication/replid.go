package replication

import (
	"strings"

	"github.com/google/uuid"
)

// NewReplID mints a 40-hex-character replication identifier by
// concatenating two UUIDs (stripped of their dashes) and truncating to
// length, the same generator the teacher uses for its transaction IDs.
func NewReplID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[:40]
}
