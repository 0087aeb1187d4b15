package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	apperrors "podcast-be/pkg/errors"
	"podcast-be/pkg/logger"
)

// ContextKey represents keys used in request context
type ContextKey string

const (
	// UserIDContextKey is the key for the authenticated local user id
	UserIDContextKey ContextKey = "user_id"
	// RequestIDContextKey is the key for request ID in context
	RequestIDContextKey ContextKey = "request_id"
)

// InvalidTokenMessage is the 401 message for any rejected session token
const InvalidTokenMessage = "Invalid or expired token"

// TokenVerifier validates a session token and returns its user id
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

// Auth rejects requests without a valid bearer session token
func Auth(verifier TokenVerifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err != nil {
				WriteError(w, r, apperrors.NewAuthenticationError(err.Error()), log)
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				log.WithError(err).WithField("token", logger.TokenPrefix(token)).Info("Session token rejected")
				WriteError(w, r, apperrors.NewAuthenticationError(InvalidTokenMessage), log)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
			log.WithField("user_id", userID).Debug("User authenticated successfully")

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches the user id when a valid token is present and
// otherwise continues anonymously
func OptionalAuth(verifier TokenVerifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			if userID, err := verifier.Verify(token); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), UserIDContextKey, userID))
			} else {
				log.WithError(err).Debug("Ignoring invalid optional session token")
			}

			next.ServeHTTP(w, r)
		})
	}
}

var (
	errNoAuthorization  = errors.New("Authorization header is required")
	errBadAuthorization = errors.New("Invalid authorization header format")
	errEmptyBearerToken = errors.New("Token is required")
)

// BearerToken extracts the token from an "Authorization: Bearer" header
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errNoAuthorization
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errBadAuthorization
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", errEmptyBearerToken
	}
	return token, nil
}

// UserIDFromContext returns the authenticated user id
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserIDContextKey).(int64)
	return id, ok && id > 0
}

// RequestIDFromContext returns the request id set by RequestID
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

// WriteError writes an AppError as the standard JSON error body
func WriteError(w http.ResponseWriter, r *http.Request, appErr *apperrors.AppError, log *logger.Logger) {
	entry := log.WithError(appErr).WithField("status", appErr.StatusCode)
	if appErr.StatusCode >= http.StatusInternalServerError {
		entry.Error("Request error")
	} else {
		entry.Debug("Request rejected")
	}

	if err := apperrors.Write(w, appErr, RequestIDFromContext(r.Context())); err != nil {
		log.WithError(err).Error("Failed to encode error response")
	}
}
