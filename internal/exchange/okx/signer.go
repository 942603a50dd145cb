package okx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"time"
)

// timestampLayout is the ISO-8601 millisecond format OKX expects in
// OK-ACCESS-TIMESTAMP.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Signer produces OK-ACCESS-SIGN values.
type Signer struct {
	secretKey string
}

func NewSigner(secretKey string) *Signer {
	return &Signer{secretKey: secretKey}
}

// Sign is base64(HMAC-SHA256(timestamp + method + requestPath + body)).
// requestPath includes the encoded query string for GET requests.
func (s *Signer) Sign(timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(timestamp + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Timestamp formats t for OK-ACCESS-TIMESTAMP.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
