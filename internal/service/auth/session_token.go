package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired is returned for a correctly signed session token past its expiry
	ErrTokenExpired = errors.New("session token expired")
	// ErrTokenInvalid is returned for malformed or tampered session tokens
	ErrTokenInvalid = errors.New("session token invalid")
)

const (
	// SessionTTL is the lifetime of a session token
	SessionTTL = 7 * 24 * time.Hour

	sessionIssuer   = "podcast-be"
	sessionAudience = "podcast-be/api"
)

// SessionIssuer mints and verifies bearer session tokens
type SessionIssuer struct {
	key    []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewSessionIssuer creates an issuer signing with key. now may be nil.
func NewSessionIssuer(key []byte, now func() time.Time) *SessionIssuer {
	if now == nil {
		now = time.Now
	}
	s := &SessionIssuer{key: key, ttl: SessionTTL, now: now}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithAudience(sessionAudience),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s
}

// Issue mints a token whose subject is the local user id
func (s *SessionIssuer) Issue(userID int64) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    sessionIssuer,
		Subject:   strconv.FormatInt(userID, 10),
		Audience:  jwt.ClaimStrings{sessionAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify returns the user id carried by a valid token
func (s *SessionIssuer) Verify(token string) (int64, error) {
	if token == "" {
		return 0, ErrTokenInvalid
	}

	var claims jwt.RegisteredClaims
	_, err := s.parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return 0, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return 0, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("%w: bad subject", ErrTokenInvalid)
	}
	return userID, nil
}
