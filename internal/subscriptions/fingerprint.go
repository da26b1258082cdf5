package subscriptions

import (
	"encoding/base64"
	"strings"

	"github.com/zeebo/blake3"
)

// FingerprintLength is the length of a subscription fingerprint.
const FingerprintLength = 32

// Fingerprint derives the dedupe key from a push endpoint URL:
// BLAKE3-256 of the URL, base64url without padding, truncated.
// Every call site uses this function; fingerprints are stored and compared as-is.
func Fingerprint(endpoint string) string {
	sum := blake3.Sum256([]byte(endpoint))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:FingerprintLength]
}

// ResolveFingerprint accepts either an endpoint URL or a fingerprint and returns the fingerprint.
func ResolveFingerprint(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if strings.Contains(ref, "://") {
		if err := validateEndpoint(ref); err != nil {
			return "", ErrInvalidReference
		}
		return Fingerprint(ref), nil
	}
	if isFingerprint(ref) {
		return ref, nil
	}
	return "", ErrInvalidReference
}

func isFingerprint(s string) bool {
	if len(s) != FingerprintLength {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
