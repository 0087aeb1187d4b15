package auth

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Keys holds the independent HMAC keys derived from the signing secret, so a
// state token can never be replayed as a session token or vice versa.
type Keys struct {
	State   []byte
	Session []byte
}

const (
	stateKeyInfo   = "podcast-be/state-token/v1"
	sessionKeyInfo = "podcast-be/session-token/v1"
	derivedKeySize = 32
)

// DeriveKeys expands secret into per-purpose keys with HKDF-SHA256
func DeriveKeys(secret string) (*Keys, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret is empty")
	}

	stateKey, err := derive(secret, stateKeyInfo)
	if err != nil {
		return nil, err
	}
	sessionKey, err := derive(secret, sessionKeyInfo)
	if err != nil {
		return nil, err
	}

	return &Keys{State: stateKey, Session: sessionKey}, nil
}

func derive(secret, info string) ([]byte, error) {
	key := make([]byte, derivedKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", info, err)
	}
	return key, nil
}
