package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for trace digests.
const (
	DomainCycle = "incr/cycle/v1"
	DomainTrace = "incr/trace/v1"
)

// Digest hashes the canonical form of v under domain.
// Format: SHA256(domain + 0x00 + canonical JSON).
func Digest(domain string, v Value) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
