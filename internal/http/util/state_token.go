package util

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidState  = errors.New("invalid or expired state")
	ErrMissingSecret = errors.New("state secret is not configured")
)

const (
	expiryLen  = 4
	userIDLen  = 16
	nonceLen   = 8
	payloadLen = expiryLen + userIDLen + nonceLen
	sigLen     = 16
)

// StateSigner issues OAuth state tokens bound to a user so the callback can
// trust who started the flow.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewStateSigner returns a signer that issues compact HMAC state tokens.
func NewStateSigner(secret []byte, ttl time.Duration) *StateSigner {
	return &StateSigner{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue mints a state token for userID.
func (s *StateSigner) Issue(userID uuid.UUID) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrMissingSecret
	}

	payload := make([]byte, payloadLen) // expiry | user id | nonce
	expires := uint32(s.now().Add(s.ttl).Unix())
	binary.BigEndian.PutUint32(payload[:expiryLen], expires)
	copy(payload[expiryLen:expiryLen+userIDLen], userID[:])
	if _, err := rand.Read(payload[expiryLen+userIDLen:]); err != nil {
		return "", err
	}

	payloadEnc := base64.RawURLEncoding.EncodeToString(payload)
	sigEnc := base64.RawURLEncoding.EncodeToString(s.sign(payload)[:sigLen])
	return fmt.Sprintf("%s.%s", payloadEnc, sigEnc), nil
}

// Verify checks signature integrity and TTL, returning the user the state was issued to.
func (s *StateSigner) Verify(state string) (uuid.UUID, error) {
	if len(s.secret) == 0 {
		return uuid.Nil, ErrMissingSecret
	}

	parts := strings.SplitN(state, ".", 2)
	if len(parts) != 2 {
		return uuid.Nil, ErrInvalidState
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil || len(payload) != payloadLen {
		return uuid.Nil, ErrInvalidState
	}

	sigProvided, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil || len(sigProvided) != sigLen {
		return uuid.Nil, ErrInvalidState
	}

	if !hmac.Equal(sigProvided, s.sign(payload)[:sigLen]) {
		return uuid.Nil, ErrInvalidState
	}

	expires := binary.BigEndian.Uint32(payload[:expiryLen])
	if s.now().Unix() > int64(expires) {
		return uuid.Nil, ErrInvalidState
	}

	var userID uuid.UUID
	copy(userID[:], payload[expiryLen:expiryLen+userIDLen])
	return userID, nil
}

func (s *StateSigner) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte("ebay-state|"))
	mac.Write(payload)
	return mac.Sum(nil)
}
