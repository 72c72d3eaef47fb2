package registry

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// GenerateSecret returns a URL-safe random secret of 32 bytes entropy.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// DigestKey returns the SHA-256 hex digest of a raw key. Only digests are
// ever persisted; the raw key cannot be recovered from storage.
func DigestKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// DigestsEqual compares two key digests in constant time.
func DigestsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// FormatCredential joins a raw secret with its scope ID. Both the project
// API key and the user management token use the "<raw>:<id>" shape so the
// verifier can locate the record without a digest index scan.
func FormatCredential(raw, id string) string {
	return raw + ":" + id
}

// SplitCredential splits a presented credential into raw secret and scope
// ID. The secret itself may not contain a colon (base64url never does).
func SplitCredential(credential string) (raw, id string, ok bool) {
	raw, id, ok = strings.Cut(credential, ":")
	if !ok || raw == "" || id == "" {
		return "", "", false
	}
	return raw, id, true
}
