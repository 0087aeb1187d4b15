package service

import (
	"context"
	"errors"

	"podcast-be/internal/domain"
	"podcast-be/internal/service/inference"
)

var (
	// ErrUserNotFound is returned when the referenced user does not exist
	ErrUserNotFound = errors.New("user not found")
	// ErrValidationFailed is returned when a user field is malformed or out of range
	ErrValidationFailed = errors.New("validation failed")
	// ErrTransientStoreFailure is returned when the user store cannot be reached; safe to retry
	ErrTransientStoreFailure = errors.New("transient store failure")
	// ErrConflict is returned when an upsert race could not be resolved
	ErrConflict = errors.New("conflict")
)

// IdentityProvider is an external OAuth/OIDC identity provider
type IdentityProvider interface {
	// Name is the route segment, e.g. "linkedin"
	Name() string

	// AuthCodeURL returns the authorization URL carrying state
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for credentials
	Exchange(ctx context.Context, code string) (*domain.ProviderCredentials, error)

	// FetchProfile loads the user's claims, falling back to the ID token if needed
	FetchProfile(ctx context.Context, creds *domain.ProviderCredentials) (*domain.ProfileClaims, error)

	// Refresh runs the refresh-token grant
	Refresh(ctx context.Context, creds *domain.ProviderCredentials) (*domain.ProviderCredentials, error)
}

// DemographicsRunner produces a best-effort guess and never fails
type DemographicsRunner interface {
	Run(ctx context.Context, accessToken string, hints domain.DemographicHints) domain.Demographics
}

// UpsertInput is everything known about a user after a successful provider login
type UpsertInput struct {
	Claims       *domain.ProfileClaims
	Creds        *domain.ProviderCredentials
	Demographics domain.Demographics
}

// UserService defines the user account operations
type UserService interface {
	// Upsert finds or creates the user for in.Claims.Subject and applies the login update rules
	Upsert(ctx context.Context, in UpsertInput) (*domain.User, error)

	// GetUser loads a user by local id
	GetUser(ctx context.Context, id int64) (*domain.User, error)

	// UpdateProfile sets persona and vertical explicitly
	UpdateProfile(ctx context.Context, id int64, update domain.ProfileUpdate) (*domain.User, error)

	// ReInfer runs demographic inference again and fills empty fields only
	ReInfer(ctx context.Context, id int64) (*domain.User, error)

	// Forget drops any cached copy of the user
	Forget(ctx context.Context, id int64)

	// Taxonomy returns the persona and vertical options
	Taxonomy() *inference.Taxonomy
}
