package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "podcast-be/pkg/errors"
	"podcast-be/pkg/logger"
)

type verifierFunc func(string) (int64, error)

func (f verifierFunc) Verify(token string) (int64, error) { return f(token) }

func acceptOnly(valid string, id int64) TokenVerifier {
	return verifierFunc(func(token string) (int64, error) {
		if token == valid {
			return id, nil
		}
		return 0, errors.New("bad signature")
	})
}

func userEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserIDFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]int64{"user_id": id})
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.ErrorResponse {
	t.Helper()
	var body apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAuth(t *testing.T) {
	handler := RequestID(logger.NewNop())(Auth(acceptOnly("good", 7), logger.NewNop())(userEcho()))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantMsg    string
	}{
		{"valid token", "Bearer good", http.StatusOK, ""},
		{"lowercase scheme", "bearer good", http.StatusOK, ""},
		{"missing header", "", http.StatusUnauthorized, "Authorization header is required"},
		{"wrong scheme", "Basic good", http.StatusUnauthorized, "Invalid authorization header format"},
		{"empty token", "Bearer  ", http.StatusUnauthorized, "Token is required"},
		{"rejected token", "Bearer forged", http.StatusUnauthorized, InvalidTokenMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.JSONEq(t, `{"user_id":7}`, rec.Body.String())
				return
			}
			body := decodeError(t, rec)
			assert.Equal(t, apperrors.ErrorTypeAuthentication, body.Error.Type)
			assert.Equal(t, tt.wantMsg, body.Error.Message)
			assert.Equal(t, rec.Header().Get("X-Request-ID"), body.Error.RequestID)
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	handler := OptionalAuth(acceptOnly("good", 9), logger.NewNop())(userEcho())

	for _, header := range []string{"", "Bearer forged", "Token abc"} {
		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code, header)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.JSONEq(t, `{"user_id":9}`, rec.Body.String())
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("generates an id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusTeapot, rec.Code)
		_, err := uuid.Parse(seen)
		require.NoError(t, err)
		assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
	})

	t.Run("keeps a valid incoming id", func(t *testing.T) {
		incoming := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", incoming)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, incoming, seen)
	})

	t.Run("replaces a malformed incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "<script>")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.NotEqual(t, "<script>", seen)
		_, err := uuid.Parse(seen)
		assert.NoError(t, err)
	})
}

func TestCORS(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://studio.example.com"}
	handler := CORS(cfg, logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Origin", "https://studio.example.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "https://studio.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/auth/profile", nil)
		req.Header.Set("Origin", "https://studio.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPut)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
	})
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 2, CleanupInterval: time.Minute}, logger.NewNop())
	defer rl.Stop()

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	}))

	call := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/auth/linkedin", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusFound, call("10.0.0.1:5000").Code)
	assert.Equal(t, http.StatusFound, call("10.0.0.1:5001").Code)

	rec := call("10.0.0.1:5002")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, apperrors.ErrorTypeRateLimit, decodeError(t, rec).Error.Type)

	assert.Equal(t, http.StatusFound, call("10.0.0.2:5000").Code, "other clients keep their own bucket")
	assert.Equal(t, 2, rl.ClientCount())
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(PerMinute(30), logger.NewNop())
	defer rl.Stop()

	rl.limiterFor("10.0.0.1")
	rl.limiterFor("10.0.0.2")
	require.Equal(t, 2, rl.ClientCount())

	rl.cleanup(time.Now().Add(time.Minute))
	assert.Equal(t, 2, rl.ClientCount())

	rl.cleanup(time.Now().Add(11 * time.Minute))
	assert.Equal(t, 0, rl.ClientCount())

	rl.Stop()
	rl.Stop()
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 2, retryAfterSeconds(PerMinute(30).Rate))
	assert.Equal(t, 1, retryAfterSeconds(10))
	assert.Equal(t, 60, retryAfterSeconds(0))
}
