package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
)

// VerifySignature checks the HMAC-SHA256 signature the upstream provider
// attaches to each delivery. The header value is either a bare hex digest or
// the "v1,<timestamp>,<signature>" form; the last comma-separated part is
// the digest.
func VerifySignature(body []byte, signature, signingKey string) bool {
	if signature == "" || signingKey == "" {
		slog.Warn("missing webhook signature or signing key")
		return false
	}

	mac := hmac.New(sha256.New, []byte(signingKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	actual := signature
	if parts := strings.Split(signature, ","); len(parts) >= 3 {
		actual = parts[2]
	}

	ok := hmac.Equal([]byte(expected), []byte(actual))
	if !ok {
		slog.Warn("webhook signature verification failed")
	}
	return ok
}
