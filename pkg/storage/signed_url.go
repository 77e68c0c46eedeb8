package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignedURLSigner creates and validates signed blob download tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Sign returns a token granting download access to blobID until the returned expiry.
func (s *SignedURLSigner) Sign(blobID string) (string, time.Time, error) {
	if blobID == "" {
		return "", time.Time{}, fmt.Errorf("blob id required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	return exp + "~" + s.mac(blobID, exp), expiresAt, nil
}

// Verify checks that token was issued for blobID and has not expired.
func (s *SignedURLSigner) Verify(blobID, token string) (time.Time, error) {
	exp, signature, ok := strings.Cut(token, "~")
	if !ok || exp == "" || signature == "" {
		return time.Time{}, fmt.Errorf("invalid token format")
	}
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp")
	}
	expected := s.mac(blobID, exp)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return time.Time{}, fmt.Errorf("invalid token signature")
	}
	expiresAt := time.Unix(expUnix, 0)
	if s.now().After(expiresAt) {
		return time.Time{}, fmt.Errorf("token expired")
	}
	return expiresAt, nil
}

func (s *SignedURLSigner) mac(blobID, exp string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(blobID + "|" + exp))
	return hex.EncodeToString(mac.Sum(nil))
}
