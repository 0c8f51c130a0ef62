package render

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// UnsubscribeToken computes the signed token for an address: HMAC-SHA256 of
// the lowercased email, hex-encoded and truncated to 16 characters. The
// dashboard's unsubscribe endpoint verifies the same derivation.
func UnsubscribeToken(secret, email string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.ToLower(email)))
	return hex.EncodeToString(mac.Sum(nil))[:16]
}

// VerifyUnsubscribeToken reports whether token matches the expected
// derivation for email. Comparison is constant-time.
func VerifyUnsubscribeToken(secret, email, token string) bool {
	return hmac.Equal([]byte(UnsubscribeToken(secret, email)), []byte(token))
}

// UnsubscribeURL builds the full signed unsubscribe link for an address.
func (r *Renderer) UnsubscribeURL(email string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", UnsubscribeToken(r.UnsubscribeSecret, email))
	return fmt.Sprintf("%s/api/unsubscribe?%s", strings.TrimRight(r.BaseURL, "/"), q.Encode())
}
