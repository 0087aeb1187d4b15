package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrStateExpired is returned for a correctly signed state older than its TTL
	ErrStateExpired = errors.New("state token expired")
	// ErrStateInvalid is returned for malformed, tampered or foreign state tokens
	ErrStateInvalid = errors.New("state token invalid")
)

const (
	// StateTTL bounds the time between starting login and the provider callback
	StateTTL = 10 * time.Minute

	stateIssuer    = "podcast-be/login"
	stateNonceSize = 32
	stateClockSkew = 30 * time.Second
)

// StateClaims is the verified content of a state token
type StateClaims struct {
	Nonce    string
	IssuedAt time.Time
}

type stateTokenClaims struct {
	Nonce     string `json:"nonce"`
	Timestamp int64  `json:"ts"` // issuance, unix milliseconds
	jwt.RegisteredClaims
}

// StateCodec issues and verifies the signed OAuth state parameter
type StateCodec struct {
	key    []byte
	ttl    time.Duration
	now    func() time.Time
	random func([]byte) (int, error)
	parser *jwt.Parser
}

// StateOption customizes a StateCodec
type StateOption func(*StateCodec)

// WithStateClock replaces time.Now
func WithStateClock(now func() time.Time) StateOption {
	return func(c *StateCodec) { c.now = now }
}

// NewStateCodec creates a codec signing with key
func NewStateCodec(key []byte, opts ...StateOption) *StateCodec {
	c := &StateCodec{
		key:    key,
		ttl:    StateTTL,
		now:    time.Now,
		random: rand.Read,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(stateClockSkew),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)
	return c
}

// Issue creates a fresh state token around a random nonce
func (c *StateCodec) Issue() (string, *StateClaims, error) {
	buf := make([]byte, stateNonceSize)
	if _, err := c.random(buf); err != nil {
		return "", nil, fmt.Errorf("generate state nonce: %w", err)
	}

	now := c.now()
	claims := &StateClaims{Nonce: hex.EncodeToString(buf), IssuedAt: now}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, stateTokenClaims{
		Nonce:     claims.Nonce,
		Timestamp: now.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    stateIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	})

	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", nil, fmt.Errorf("sign state token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks signature and age. It never panics on malformed input and
// only returns ErrStateExpired or ErrStateInvalid.
func (c *StateCodec) Verify(token string) (*StateClaims, error) {
	if token == "" {
		return nil, ErrStateInvalid
	}

	var claims stateTokenClaims
	_, err := c.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return c.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, fmt.Errorf("%w: %v", ErrStateExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrStateInvalid, err)
	}

	if claims.Nonce == "" || claims.Timestamp == 0 {
		return nil, fmt.Errorf("%w: missing nonce or timestamp", ErrStateInvalid)
	}

	// The embedded timestamp is checked independently of exp.
	issuedAt := time.UnixMilli(claims.Timestamp)
	age := c.now().Sub(issuedAt)
	if age > c.ttl {
		return nil, fmt.Errorf("%w: issued %s ago", ErrStateExpired, age.Round(time.Second))
	}
	if age < -stateClockSkew {
		return nil, fmt.Errorf("%w: issued in the future", ErrStateInvalid)
	}

	return &StateClaims{Nonce: claims.Nonce, IssuedAt: issuedAt}, nil
}

// UnverifiedNonce extracts the nonce without checking the signature. Only
// meaningful when compared against a nonce the server stored itself.
func (c *StateCodec) UnverifiedNonce(token string) (string, bool) {
	var claims stateTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.Nonce == "" {
		return "", false
	}
	return claims.Nonce, true
}

// NonceEqual compares nonces in constant time
func NonceEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
