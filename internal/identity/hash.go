package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Hash derives the fixed-width anonymized key for a real patient identifier.
// The first 8 hex characters of the SHA-256 digest are read as an unsigned
// integer and zero-padded to 10 decimal digits, so the same identifier maps
// to the same key on every platform and every run without persisted state.
func Hash(value string) string {
	digest := sha256.Sum256([]byte(value))
	n, err := strconv.ParseUint(hex.EncodeToString(digest[:])[:8], 16, 64)
	if err != nil {
		// hex.EncodeToString output is always parseable
		panic(err)
	}
	return fmt.Sprintf("%010d", n)
}

// ShortHash returns a 7-character content hash used to disambiguate
// directory names that would otherwise collide.
func ShortHash(value string) string {
	digest := sha256.Sum256([]byte(value))
	return hex.EncodeToString(digest[:])[:7]
}
