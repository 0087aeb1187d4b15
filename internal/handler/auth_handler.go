package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"podcast-be/internal/domain"
	"podcast-be/internal/middleware"
	"podcast-be/internal/service"
	"podcast-be/internal/service/auth"
	apperrors "podcast-be/pkg/errors"
	"podcast-be/pkg/logger"
)

const (
	// LoginSessionCookie carries the id of the server-side login state record
	LoginSessionCookie = "podcast_login_sid"

	loginSessionMaxAge = 600
	maxProfileBodySize = 16 << 10
)

// AuthHandler serves the login flow and the current-user endpoints
type AuthHandler struct {
	logins       *auth.Service
	users        service.UserService
	verifier     middleware.TokenVerifier
	logger       *logger.Logger
	secureCookie bool
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(logins *auth.Service, users service.UserService, verifier middleware.TokenVerifier, log *logger.Logger, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		logins:       logins,
		users:        users,
		verifier:     verifier,
		logger:       log,
		secureCookie: secureCookie,
	}
}

// LogoutResponse is the body of POST /auth/logout
type LogoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ProfileOptionsResponse lists the accepted persona and vertical values
type ProfileOptionsResponse struct {
	Personas  []string `json:"personas"`
	Verticals []string `json:"verticals"`
}

// Login handles GET /auth/{provider}
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	sessionID := uuid.NewString()
	target, toProvider := h.logins.BeginLogin(r.Context(), r.URL.Query().Get("token"), sessionID)
	if toProvider {
		h.setSessionCookie(w, sessionID, loginSessionMaxAge)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Callback handles GET /auth/{provider}/callback
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := auth.CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
	if c, err := r.Cookie(LoginSessionCookie); err == nil {
		params.SessionID = c.Value
	}

	target := h.logins.CompleteLogin(r.Context(), params)

	h.setSessionCookie(w, "", -1)
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperrors.NewAuthenticationError(middleware.InvalidTokenMessage))
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, h.userError(err))
		return
	}

	h.writeJSON(w, http.StatusOK, user.Public())
}

// UpdateProfile handles PUT /auth/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperrors.NewAuthenticationError(middleware.InvalidTokenMessage))
		return
	}

	var update domain.ProfileUpdate
	r.Body = http.MaxBytesReader(w, r.Body, maxProfileBodySize)
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.writeError(w, r, apperrors.NewValidationError("Invalid request body", nil))
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), userID, update)
	if err != nil {
		h.writeError(w, r, h.userError(err))
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"user_id":  userID,
		"persona":  user.Persona,
		"vertical": user.Vertical,
	}).Info("Profile updated")

	h.writeJSON(w, http.StatusOK, user.Public())
}

// ReInfer handles POST /auth/profile/reinfer
func (h *AuthHandler) ReInfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperrors.NewAuthenticationError(middleware.InvalidTokenMessage))
		return
	}

	user, err := h.users.ReInfer(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, h.userError(err))
		return
	}

	h.writeJSON(w, http.StatusOK, user.Public())
}

// ProfileOptions handles GET /auth/profile/options
func (h *AuthHandler) ProfileOptions(w http.ResponseWriter, r *http.Request) {
	tax := h.users.Taxonomy()
	h.writeJSON(w, http.StatusOK, ProfileOptionsResponse{
		Personas:  tax.PersonaNames(),
		Verticals: tax.VerticalNames(),
	})
}

// Logout handles POST /auth/logout. Session tokens are stateless, so this
// only drops the cached profile of a recognised caller.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if userID, ok := middleware.UserIDFromContext(r.Context()); ok {
		h.users.Forget(r.Context(), userID)
		h.logger.WithField("user_id", userID).Info("User logged out")
	}

	w.Header().Set("Cache-Control", "no-store")
	h.writeJSON(w, http.StatusOK, LogoutResponse{
		Success: true,
		Message: "Logged out successfully",
	})
}

// RegisterRoutes registers auth handler routes with the router
func (h *AuthHandler) RegisterRoutes(r chi.Router, loginLimit func(http.Handler) http.Handler) {
	provider := h.logins.ProviderName()

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if loginLimit != nil {
				r.Use(loginLimit)
			}
			r.Get("/"+provider, h.Login)
			r.Get("/"+provider+"/callback", h.Callback)
		})

		r.Get("/profile/options", h.ProfileOptions)
		r.With(middleware.OptionalAuth(h.verifier, h.logger)).Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(h.verifier, h.logger))
			r.Get("/me", h.Me)
			r.Put("/profile", h.UpdateProfile)
			r.Post("/profile/reinfer", h.ReInfer)
		})
	})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     LoginSessionCookie,
		Value:    value,
		Path:     "/auth",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// userError maps user service errors onto API errors
func (h *AuthHandler) userError(err error) *apperrors.AppError {
	var fieldErr *service.FieldError
	switch {
	case errors.As(err, &fieldErr):
		return apperrors.NewValidationError("Invalid "+fieldErr.Field, map[string]interface{}{
			"field":   fieldErr.Field,
			"value":   fieldErr.Value,
			"allowed": h.allowed(fieldErr.Field),
		})
	case errors.Is(err, service.ErrValidationFailed):
		return apperrors.NewValidationError("Invalid profile", nil)
	case errors.Is(err, service.ErrUserNotFound):
		return apperrors.NewNotFoundError("User not found")
	case errors.Is(err, service.ErrProviderUnavailable):
		return apperrors.NewExternalError("Could not reach the identity provider", err)
	case errors.Is(err, service.ErrConflict):
		return apperrors.NewConflictError("Profile was modified concurrently", err)
	case errors.Is(err, service.ErrTransientStoreFailure):
		return apperrors.NewUnavailableError("Service temporarily unavailable", err)
	default:
		return apperrors.NewInternalError("Internal server error", err)
	}
}

func (h *AuthHandler) allowed(field string) []string {
	tax := h.users.Taxonomy()
	if field == "vertical" {
		return tax.VerticalNames()
	}
	return tax.PersonaNames()
}

func (h *AuthHandler) writeError(w http.ResponseWriter, r *http.Request, appErr *apperrors.AppError) {
	middleware.WriteError(w, r, appErr, h.logger)
}

func (h *AuthHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}
