package shared

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"time"
)

const (
	// CSRFSessionKey is the session key holding the active token.
	CSRFSessionKey = "csrf_token"
	// CSRFFormField is the hidden form field carrying the token back.
	CSRFFormField = "csrf_token"
)

// CSRFManager mints per-session CSRF tokens and checks submitted forms
// against them. A token is an HMAC over the session ID and issue time, so
// no state lives outside the session entry itself.
type CSRFManager struct {
	secret []byte
}

// NewCSRFManager builds a manager keyed with secret.
func NewCSRFManager(secret string) *CSRFManager {
	return &CSRFManager{secret: []byte(secret)}
}

// EnsureToken returns the session's token, minting one on first use. The
// token stays stable for the life of the session so several open forms
// can all submit against it.
func (m *CSRFManager) EnsureToken(ctx context.Context, sess *Session) (string, error) {
	if sess == nil {
		return "", errors.New("session missing")
	}
	if token := sess.Get(CSRFSessionKey); token != "" {
		return token, nil
	}
	token := m.mint(sess.ID)
	sess.Set(CSRFSessionKey, token)
	return token, nil
}

// VerifyToken checks a submitted token against the session's. A token
// absent on either side is ErrCSRFTokenMissing; a present but different
// one is ErrCSRFTokenMismatch.
func (m *CSRFManager) VerifyToken(ctx context.Context, sess *Session, token string) error {
	if sess == nil || token == "" {
		return ErrCSRFTokenMissing
	}
	expected := sess.Get(CSRFSessionKey)
	if expected == "" {
		return ErrCSRFTokenMissing
	}
	if !hmac.Equal([]byte(expected), []byte(token)) {
		return ErrCSRFTokenMismatch
	}
	return nil
}

func (m *CSRFManager) mint(sessionID string) string {
	mac := hmac.New(sha256.New, m.secret)
	_, _ = mac.Write([]byte(sessionID))
	_, _ = mac.Write([]byte{'|'})
	var issued [8]byte
	binary.BigEndian.PutUint64(issued[:], uint64(time.Now().UnixNano()))
	_, _ = mac.Write(issued[:])
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
