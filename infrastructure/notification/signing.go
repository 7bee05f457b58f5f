package notification

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Webhook signature headers.
const (
	HeaderSignature   = "X-Clitools-Signature"
	HeaderTimestamp   = "X-Clitools-Timestamp"
	HeaderSignatureV2 = "X-Clitools-Signature-V2"
)

// Signer signs webhook payloads with HMAC-SHA256.
type Signer struct{}

// NewSigner creates a payload signer.
func NewSigner() *Signer {
	return &Signer{}
}

// SignPayload returns "sha256=<hex>" for payload under secret.
func (s *Signer) SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches payload.
func (s *Signer) VerifySignature(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(s.SignPayload(payload, secret)), []byte(signature))
}

// SignedHeaders returns the signature headers for a request sent at ts.
// The V2 signature covers "<unix ts>.<payload>" to bound replays.
func (s *Signer) SignedHeaders(payload []byte, secret string, ts time.Time) map[string]string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	return map[string]string{
		HeaderSignature:   s.SignPayload(payload, secret),
		HeaderTimestamp:   unix,
		HeaderSignatureV2: s.SignPayload([]byte(unix+"."+string(payload)), secret),
	}
}

// VerifyTimestampedSignature checks a V2 signature and that ts is within tolerance of now.
func (s *Signer) VerifyTimestampedSignature(payload []byte, secret, signature string, ts int64, tolerance time.Duration) bool {
	now := time.Now().Unix()
	window := int64(tolerance.Seconds())
	if ts < now-window || ts > now+window {
		return false
	}
	expected := s.SignPayload([]byte(fmt.Sprintf("%d.%s", ts, payload)), secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
