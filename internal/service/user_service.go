package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"podcast-be/internal/domain"
	"podcast-be/internal/metrics"
	"podcast-be/internal/repository"
	"podcast-be/internal/service/inference"
	"podcast-be/internal/service/linkedin"
	"podcast-be/pkg/logger"
)

// ErrProviderUnavailable is returned when re-inference cannot reach the identity provider
var ErrProviderUnavailable = errors.New("identity provider unavailable")

// FieldError reports a single rejected input field
type FieldError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return ErrValidationFailed
}

// Upsert paths, reported to metrics
const (
	pathFastUpdate       = "fast_update"
	pathCreated          = "created"
	pathLostRaceUpdate   = "lost_race_update"
	pathDuplicateRefetch = "duplicate_refetch"
)

type userService struct {
	repo     repository.UserRepository
	cache    *UserCache
	provider IdentityProvider
	inferrer DemographicsRunner
	taxonomy *inference.Taxonomy
	logger   *logger.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

// NewUserService creates the user service
func NewUserService(
	repo repository.UserRepository,
	cache *UserCache,
	provider IdentityProvider,
	inferrer DemographicsRunner,
	taxonomy *inference.Taxonomy,
	log *logger.Logger,
	rec metrics.Recorder,
) UserService {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &userService{
		repo:     repo,
		cache:    cache,
		provider: provider,
		inferrer: inferrer,
		taxonomy: taxonomy,
		logger:   log,
		metrics:  rec,
		now:      time.Now,
	}
}

func (s *userService) Upsert(ctx context.Context, in UpsertInput) (*domain.User, error) {
	if in.Claims == nil || in.Claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing external identity", ErrValidationFailed)
	}
	if in.Creds == nil {
		in.Creds = &domain.ProviderCredentials{}
	}

	email, err := normalizeEmail(in.Claims.Email)
	if err != nil {
		return nil, err
	}
	in.Claims.Email = email

	linkedinID := in.Claims.Subject
	log := s.logger.WithField("linkedin_id", linkedinID)

	// The unlocked lookup only classifies the path. Merges always run
	// against a row re-read under the identity lock.
	updatePath := pathFastUpdate
	if _, err := s.repo.GetByLinkedInID(ctx, linkedinID); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, storeError(err)
		}
		updatePath = pathLostRaceUpdate
	}

	var (
		user *domain.User
		path string
	)
	err = s.repo.InTx(ctx, linkedinID, func(tx repository.UserStore) error {
		found, err := tx.GetByLinkedInID(ctx, linkedinID)
		switch {
		case err == nil:
			applyLogin(found, in)
			user, path = found, updatePath
			return tx.Update(ctx, found)
		case errors.Is(err, repository.ErrNotFound):
			created := newUser(in)
			if err := tx.Create(ctx, created); err != nil {
				return err
			}
			user, path = created, pathCreated
			return nil
		default:
			return err
		}
	})

	if errors.Is(err, repository.ErrDuplicate) {
		log.WithError(err).Info("Duplicate on insert, re-fetching user")
		user, err = s.recoverDuplicate(ctx, in)
		path = pathDuplicateRefetch
	}
	if err != nil {
		return nil, storeError(err)
	}

	return s.finishUpsert(ctx, user, path, log), nil
}

// recoverDuplicate resolves a unique violation the re-check did not prevent
func (s *userService) recoverDuplicate(ctx context.Context, in UpsertInput) (*domain.User, error) {
	var user *domain.User
	err := s.repo.InTx(ctx, in.Claims.Subject, func(tx repository.UserStore) error {
		found, err := tx.GetByLinkedInID(ctx, in.Claims.Subject)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: unique violation for %s but no row by linkedin id", ErrConflict, in.Claims.Subject)
		}
		if err != nil {
			return err
		}
		applyLogin(found, in)
		user = found
		return tx.Update(ctx, found)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *userService) finishUpsert(ctx context.Context, user *domain.User, path string, log *logger.Logger) *domain.User {
	s.metrics.RecordUpsertPath(path)
	s.cache.CacheUser(ctx, user)
	log.WithFields(map[string]interface{}{
		"user_id":           user.ID,
		"path":              path,
		"profile_completed": user.ProfileCompleted,
	}).Debug("User upserted")
	return user
}

func (s *userService) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return s.cache.GetUserWithCache(ctx, id, func(ctx context.Context, id int64) (*domain.User, error) {
		u, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, storeError(err)
		}
		return u, nil
	})
}

func (s *userService) UpdateProfile(ctx context.Context, id int64, update domain.ProfileUpdate) (*domain.User, error) {
	persona := strings.TrimSpace(update.Persona)
	vertical := strings.TrimSpace(update.Vertical)

	if !s.taxonomy.ValidPersona(persona) {
		return nil, &FieldError{Field: "persona", Value: update.Persona, Reason: "not a valid persona"}
	}
	if !s.taxonomy.ValidVertical(vertical) {
		return nil, &FieldError{Field: "vertical", Value: update.Vertical, Reason: "not a valid vertical"}
	}

	return s.modify(ctx, id, func(u *domain.User) {
		u.Persona = persona
		u.Vertical = vertical
	})
}

func (s *userService) ReInfer(ctx context.Context, id int64) (*domain.User, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	log := s.logger.WithField("user_id", id)

	if current.Persona != "" && current.Vertical != "" {
		log.Debug("Profile already complete, skipping re-inference")
		return current, nil
	}

	creds, refreshed, claims, err := s.fetchWithRefresh(ctx, current.Credentials())
	if err != nil {
		log.WithError(err).Warn("Re-inference could not load provider profile")
		return nil, err
	}

	result := domain.NoDemographics
	if !claims.Partial {
		result = s.inferrer.Run(ctx, creds.AccessToken, claims.Hints())
	}

	log.WithFields(map[string]interface{}{
		"persona":    result.Persona,
		"vertical":   result.Vertical,
		"confidence": result.Confidence,
		"refreshed":  refreshed,
	}).Info("Demographics re-inferred")

	return s.modify(ctx, id, func(u *domain.User) {
		if refreshed {
			setCredentials(u, creds)
		}
		fillDemographics(u, result)
	})
}

// fetchWithRefresh loads the provider profile, refreshing credentials when
// they are expired or rejected
func (s *userService) fetchWithRefresh(ctx context.Context, creds domain.ProviderCredentials) (*domain.ProviderCredentials, bool, *domain.ProfileClaims, error) {
	refreshed := false
	refresh := func() error {
		if creds.RefreshToken == "" || refreshed {
			return fmt.Errorf("%w: credentials expired and cannot be refreshed", ErrProviderUnavailable)
		}
		next, err := s.provider.Refresh(ctx, &creds)
		if err != nil {
			return fmt.Errorf("%w: refresh: %w", ErrProviderUnavailable, err)
		}
		creds, refreshed = *next, true
		return nil
	}

	if creds.AccessToken == "" || creds.Expired(s.now()) {
		if err := refresh(); err != nil {
			return nil, false, nil, err
		}
	}

	claims, err := s.provider.FetchProfile(ctx, &creds)
	if errors.Is(err, linkedin.ErrUnauthorized) && !refreshed {
		if rerr := refresh(); rerr != nil {
			return nil, false, nil, rerr
		}
		claims, err = s.provider.FetchProfile(ctx, &creds)
	}
	if err != nil {
		return nil, false, nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	return &creds, refreshed, claims, nil
}

// modify applies fn to the user under the per-identity lock and persists it
func (s *userService) modify(ctx context.Context, id int64, fn func(u *domain.User)) (*domain.User, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}

	var user *domain.User
	err = s.repo.InTx(ctx, current.LinkedInID, func(tx repository.UserStore) error {
		u, err := tx.GetByLinkedInID(ctx, current.LinkedInID)
		if err != nil {
			return err
		}
		fn(u)
		u.RecomputeProfileCompleted()
		user = u
		return tx.Update(ctx, u)
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.cache.CacheUser(ctx, user)
	return user, nil
}

func (s *userService) Forget(ctx context.Context, id int64) {
	_ = s.cache.InvalidateUser(ctx, id)
}

func (s *userService) Taxonomy() *inference.Taxonomy {
	return s.taxonomy
}

func newUser(in UpsertInput) *domain.User {
	u := &domain.User{
		LinkedInID:        in.Claims.Subject,
		Email:             in.Claims.Email,
		Name:              in.Claims.DisplayName(),
		ProfilePictureURL: in.Claims.Picture,
	}
	setCredentials(u, in.Creds)
	fillDemographics(u, in.Demographics)
	u.RecomputeProfileCompleted()
	return u
}

// applyLogin merges a fresh login into an existing user. Credentials always
// change; profile fields only when a new non-empty value differs; persona
// and vertical only when empty.
func applyLogin(u *domain.User, in UpsertInput) {
	setCredentials(u, in.Creds)

	if v := in.Claims.Email; v != "" && v != u.Email {
		u.Email = v
	}
	if v := in.Claims.DisplayName(); v != "" && v != u.Name {
		u.Name = v
	}
	if v := in.Claims.Picture; v != "" && v != u.ProfilePictureURL {
		u.ProfilePictureURL = v
	}

	fillDemographics(u, in.Demographics)
	u.RecomputeProfileCompleted()
}

func setCredentials(u *domain.User, creds *domain.ProviderCredentials) {
	u.AccessToken = creds.AccessToken
	if creds.RefreshToken != "" {
		u.RefreshToken = creds.RefreshToken
	}
	u.TokenExpiresAt = creds.ExpiresAt
}

func fillDemographics(u *domain.User, d domain.Demographics) {
	if u.Persona == "" && d.Persona != "" {
		u.Persona = d.Persona
	}
	if u.Vertical == "" && d.Vertical != "" {
		u.Vertical = d.Vertical
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", &FieldError{Field: "email", Value: raw, Reason: "malformed address"}
	}
	return email, nil
}

// storeError maps repository errors onto the service failure taxonomy
func storeError(err error) error {
	switch {
	case errors.Is(err, ErrConflict), errors.Is(err, ErrValidationFailed):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return ErrUserNotFound
	case errors.Is(err, repository.ErrInvalidField):
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, repository.ErrUnavailable):
		return fmt.Errorf("%w: %w", ErrTransientStoreFailure, err)
	default:
		return err
	}
}
