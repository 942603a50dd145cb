package bybit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// DefaultRecvWindow is the request validity window in milliseconds.
const DefaultRecvWindow = "5000"

// Signer produces X-BAPI-SIGN values.
type Signer struct {
	apiKey    string
	secretKey string
}

func NewSigner(apiKey, secretKey string) *Signer {
	return &Signer{apiKey: apiKey, secretKey: secretKey}
}

// Sign is hex(HMAC-SHA256(timestamp + apiKey + recvWindow + payload)),
// where payload is the query string for GET and the JSON body for POST.
func (s *Signer) Sign(timestamp, recvWindow, payload string) string {
	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(timestamp + s.apiKey + recvWindow + payload))
	return hex.EncodeToString(mac.Sum(nil))
}
