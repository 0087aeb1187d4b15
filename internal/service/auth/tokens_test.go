package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testKeys(t *testing.T) *Keys {
	t.Helper()
	keys, err := DeriveKeys("unit-test-signing-secret-0123456789abcdef")
	require.NoError(t, err)
	return keys
}

func TestDeriveKeys(t *testing.T) {
	keys := testKeys(t)

	assert.Len(t, keys.State, derivedKeySize)
	assert.Len(t, keys.Session, derivedKeySize)
	assert.NotEqual(t, keys.State, keys.Session)

	again := testKeys(t)
	assert.Equal(t, keys.State, again.State)

	other, err := DeriveKeys("a-different-secret")
	require.NoError(t, err)
	assert.NotEqual(t, keys.State, other.State)

	_, err = DeriveKeys("")
	assert.Error(t, err)
}

func TestStateCodec_RoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
	codec := NewStateCodec(testKeys(t).State, WithStateClock(clock.Now))

	token, issued, err := codec.Issue()
	require.NoError(t, err)
	assert.Len(t, issued.Nonce, stateNonceSize*2)

	clock.Advance(StateTTL - time.Second)
	verified, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, issued.Nonce, verified.Nonce)
	assert.True(t, issued.IssuedAt.Equal(verified.IssuedAt))
}

func TestStateCodec_NoncesAreUnique(t *testing.T) {
	codec := NewStateCodec(testKeys(t).State)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		_, claims, err := codec.Issue()
		require.NoError(t, err)
		assert.False(t, seen[claims.Nonce])
		seen[claims.Nonce] = true
	}
}

func TestStateCodec_Expired(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
	}{
		{"just past TTL", StateTTL + time.Second},
		{"inside jwt leeway but past TTL", StateTTL + 20*time.Second},
		{"long past TTL", 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
			codec := NewStateCodec(testKeys(t).State, WithStateClock(clock.Now))

			token, _, err := codec.Issue()
			require.NoError(t, err)

			clock.Advance(tt.advance)
			_, err = codec.Verify(token)
			assert.ErrorIs(t, err, ErrStateExpired)
			assert.NotErrorIs(t, err, ErrStateInvalid)
		})
	}
}

func TestStateCodec_AnyBitFlipFailsClosed(t *testing.T) {
	codec := NewStateCodec(testKeys(t).State)

	token, _, err := codec.Issue()
	require.NoError(t, err)

	for i := 0; i < len(token); i++ {
		for bit := 0; bit < 8; bit++ {
			tampered := []byte(token)
			tampered[i] ^= 1 << bit

			_, err := codec.Verify(string(tampered))
			if !assert.ErrorIs(t, err, ErrStateInvalid, "byte %d bit %d", i, bit) {
				return
			}
		}
	}
}

func TestStateCodec_Invalid(t *testing.T) {
	keys := testKeys(t)
	codec := NewStateCodec(keys.State)
	otherCodec := NewStateCodec([]byte("another-key-entirely-0123456789ab"))

	foreign, _, err := otherCodec.Issue()
	require.NoError(t, err)

	session, _, err := NewSessionIssuer(keys.Session, nil).Issue(42)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"nonce": "abc", "ts": time.Now().UnixMilli(), "iss": stateIssuer,
		"exp": time.Now().Add(time.Minute).Unix(), "iat": time.Now().Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noNonce, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"ts": time.Now().UnixMilli(), "iss": stateIssuer,
		"exp": time.Now().Add(time.Minute).Unix(), "iat": time.Now().Unix(),
	}).SignedString(keys.State)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"two segments", "abc.def"},
		{"signed with another key", foreign},
		{"session token", session},
		{"alg none", none},
		{"missing nonce", noNonce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := codec.Verify(tt.token)
			assert.Nil(t, claims)
			assert.ErrorIs(t, err, ErrStateInvalid)
		})
	}
}

func TestStateCodec_FutureTimestamp(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
	codec := NewStateCodec(testKeys(t).State, WithStateClock(clock.Now))

	token, _, err := codec.Issue()
	require.NoError(t, err)

	clock.Advance(-5 * time.Minute)
	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, ErrStateInvalid)
}

func TestStateCodec_RandomFailure(t *testing.T) {
	codec := NewStateCodec(testKeys(t).State)
	codec.random = func([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

	_, _, err := codec.Issue()
	assert.Error(t, err)
}

func TestStateCodec_UnverifiedNonce(t *testing.T) {
	codec := NewStateCodec(testKeys(t).State)
	token, claims, err := codec.Issue()
	require.NoError(t, err)

	nonce, ok := codec.UnverifiedNonce(token)
	assert.True(t, ok)
	assert.Equal(t, claims.Nonce, nonce)

	_, ok = codec.UnverifiedNonce("garbage")
	assert.False(t, ok)
}

func TestNonceEqual(t *testing.T) {
	assert.True(t, NonceEqual("abc", "abc"))
	assert.False(t, NonceEqual("abc", "abd"))
	assert.False(t, NonceEqual("", ""))
	assert.False(t, NonceEqual("abc", ""))
}

func TestSessionIssuer_RoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
	issuer := NewSessionIssuer(testKeys(t).Session, clock.Now)

	token, expiresAt, err := issuer.Issue(42)
	require.NoError(t, err)
	assert.Equal(t, clock.now.Add(SessionTTL), expiresAt)

	clock.Advance(SessionTTL - time.Minute)
	userID, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestSessionIssuer_Expired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
	issuer := NewSessionIssuer(testKeys(t).Session, clock.Now)

	token, _, err := issuer.Issue(42)
	require.NoError(t, err)

	clock.Advance(SessionTTL + time.Second)
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestSessionIssuer_Invalid(t *testing.T) {
	keys := testKeys(t)
	issuer := NewSessionIssuer(keys.Session, nil)

	valid, _, err := issuer.Issue(7)
	require.NoError(t, err)
	tampered := valid[:len(valid)-2] + flipChar(valid[len(valid)-2])

	stateToken, _, err := NewStateCodec(keys.State).Issue()
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    sessionIssuer,
		Subject:   "not-a-number",
		Audience:  jwt.ClaimStrings{sessionAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(keys.Session)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":       "",
		"garbage":     "garbage",
		"tampered":    tampered,
		"state token": stateToken,
		"bad subject": badSubject,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := issuer.Verify(token)
			assert.ErrorIs(t, err, ErrTokenInvalid)
		})
	}
}

func flipChar(c byte) string {
	if c == 'A' {
		return "B"
	}
	return "A"
}

func TestSessionIssuer_TokenIsThreeSegments(t *testing.T) {
	token, _, err := NewSessionIssuer(testKeys(t).Session, nil).Issue(1)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."))
}
