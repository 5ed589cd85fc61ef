package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
)

// Authentication header names.
const (
	HeaderAccessKey       = "KALSHI-ACCESS-KEY"
	HeaderAccessSignature = "KALSHI-ACCESS-SIGNATURE"
	HeaderAccessTimestamp = "KALSHI-ACCESS-TIMESTAMP"
)

// RequestSigner produces the RSA-PSS-SHA256 authentication headers for
// exchange requests. The signed message is the millisecond timestamp, the
// HTTP method and the request path (without query string) concatenated.
type RequestSigner struct {
	keyID string
	key   *rsa.PrivateKey
	now   func() time.Time
}

// NewRequestSigner returns a signer for the API key keyID.
func NewRequestSigner(keyID string, key *rsa.PrivateKey) *RequestSigner {
	return &RequestSigner{keyID: keyID, key: key, now: time.Now}
}

// KeyID returns the API key identifier.
func (s *RequestSigner) KeyID() string { return s.keyID }

// Headers signs method and path and returns the three authentication headers.
func (s *RequestSigner) Headers(method, path string) (http.Header, error) {
	if s == nil || s.key == nil {
		return nil, fmt.Errorf("crypto: private key not configured: %w", domain.ErrSigningFailed)
	}

	ts := strconv.FormatInt(s.now().UnixMilli(), 10)
	sig, err := s.Sign(ts + method + path)
	if err != nil {
		return nil, err
	}

	h := make(http.Header, 3)
	h.Set(HeaderAccessKey, s.keyID)
	h.Set(HeaderAccessSignature, sig)
	h.Set(HeaderAccessTimestamp, ts)
	return h, nil
}

// Sign returns the base64 RSA-PSS signature of message. The salt length
// equals the digest length.
func (s *RequestSigner) Sign(message string) (string, error) {
	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", fmt.Errorf("crypto: RSA sign: %v: %w", err, domain.ErrSigningFailed)
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}

// Verify checks a signature produced by Sign against the signer's public key.
func (s *RequestSigner) Verify(message, signature string) error {
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("crypto: decode signature: %w", err)
	}
	hash := sha256.Sum256([]byte(message))
	return rsa.VerifyPSS(&s.key.PublicKey, crypto.SHA256, hash[:], raw, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
}
