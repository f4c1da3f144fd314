package entitlement

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashEmail produces the deterministic one-way key for the bonus claim
// registry. Normalization must stay stable forever: changing it would
// let old claimants re-claim under a new hash.
func HashEmail(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
