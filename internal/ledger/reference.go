package ledger

import (
	"crypto/rand"
	"fmt"
	"time"
)

const (
	referencePrefix = "KLP"
	base36Charset   = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	randomLength    = 6
)

// NewReference returns a human-facing transaction reference of the form
// KLP-<unix millis>-<6 base36 chars>. Unique enough for a per-user ledger;
// not a cryptographic identifier.
func NewReference(now time.Time) string {
	b := make([]byte, randomLength)
	rand.Read(b)
	for i := range b {
		b[i] = base36Charset[int(b[i])%len(base36Charset)]
	}
	return fmt.Sprintf("%s-%d-%s", referencePrefix, now.UnixMilli(), string(b))
}
