package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"podcast-be/internal/domain"
	"podcast-be/internal/metrics"
	"podcast-be/internal/repository"
	"podcast-be/internal/service"
	"podcast-be/pkg/logger"
	"podcast-be/pkg/sanitize"
)

// Login steps, in order. Each is logged at debug as the flow reaches it.
const (
	stepInit                     = "init"
	stepAwaitingProviderRedirect = "awaiting_provider_redirect"
	stepAwaitingCallback         = "awaiting_callback"
	stepStateVerified            = "state_verified"
	stepProfileFetched           = "profile_fetched"
	stepDemographicsAttempted    = "demographics_attempted"
	stepUserUpserted             = "user_upserted"
	stepTokenIssued              = "token_issued"
)

const (
	outcomeSuccess      = "success"
	outcomeShortCircuit = "short_circuit"
)

// Options configures the login Service
type Options struct {
	Provider service.IdentityProvider
	Users    service.UserService
	Inferrer service.DemographicsRunner
	States   *StateCodec
	Sessions *SessionIssuer

	// StateStore holds the fallback copy of each login state. Nil disables the fallback.
	StateStore repository.LoginStateStore

	FrontendURL  string
	RequireEmail bool

	Logger  *logger.Logger
	Metrics metrics.Recorder
}

// Service runs the provider login flow. Both entry points always produce a
// redirect target; failures become a frontend error URL.
type Service struct {
	provider     service.IdentityProvider
	users        service.UserService
	inferrer     service.DemographicsRunner
	states       *StateCodec
	sessions     *SessionIssuer
	stateStore   repository.LoginStateStore
	frontendURL  string
	requireEmail bool
	logger       *logger.Logger
	metrics      metrics.Recorder
	now          func() time.Time
}

// NewService creates the login service
func NewService(opts Options) *Service {
	rec := opts.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Service{
		provider:     opts.Provider,
		users:        opts.Users,
		inferrer:     opts.Inferrer,
		states:       opts.States,
		sessions:     opts.Sessions,
		stateStore:   opts.StateStore,
		frontendURL:  strings.TrimRight(opts.FrontendURL, "/"),
		requireEmail: opts.RequireEmail,
		logger:       opts.Logger.WithField("provider", opts.Provider.Name()),
		metrics:      rec,
		now:          time.Now,
	}
}

// ProviderName is the route segment of the configured provider
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// CallbackParams is what the provider sends back to the callback route
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string

	// SessionID identifies the browser session holding the fallback state
	SessionID string
}

// BeginLogin returns where to send the user agent to start a login and
// whether that target is the provider. A valid session token for an
// existing user skips the provider round trip.
func (s *Service) BeginLogin(ctx context.Context, existingToken, sessionID string) (target string, toProvider bool) {
	s.step(stepInit)

	if existingToken != "" {
		if target, ok := s.shortCircuit(ctx, existingToken); ok {
			return target, false
		}
	}

	state, claims, err := s.states.Issue()
	if err != nil {
		return s.fail(domain.NewLoginError(domain.ErrCodeServiceUnavailable, "", err)), false
	}

	if s.stateStore != nil && sessionID != "" {
		record := &repository.LoginState{Nonce: claims.Nonce, IssuedAt: claims.IssuedAt}
		if err := s.stateStore.Save(ctx, sessionID, record); err != nil {
			// the signed token alone is enough to verify the callback
			s.logger.WithError(err).Warn("Failed to store login state fallback")
		}
	}

	s.step(stepAwaitingProviderRedirect)
	return s.provider.AuthCodeURL(state), true
}

func (s *Service) shortCircuit(ctx context.Context, token string) (string, bool) {
	userID, err := s.sessions.Verify(token)
	if err != nil {
		s.logger.WithError(err).Debug("Presented session token rejected, starting login")
		return "", false
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Debug("Session token user unavailable, starting login")
		return "", false
	}

	target, err := s.issueSession(user.ID)
	if err != nil {
		return s.fail(err), true
	}

	s.metrics.RecordLoginOutcome(outcomeShortCircuit)
	s.logger.WithField("user_id", user.ID).Info("Already signed in, skipping provider login")
	return target, true
}

// CompleteLogin handles the provider callback and returns the redirect target
func (s *Service) CompleteLogin(ctx context.Context, p CallbackParams) (target string) {
	defer func() {
		if r := recover(); r != nil {
			target = s.fail(domain.NewLoginError(domain.ErrCodeServiceUnavailable, "", fmt.Errorf("panic: %v", r)))
		}
	}()

	target, err := s.completeLogin(ctx, p)
	if err != nil {
		return s.fail(err)
	}
	return target
}

func (s *Service) completeLogin(ctx context.Context, p CallbackParams) (string, error) {
	s.step(stepAwaitingCallback)

	if p.Error != "" {
		message := sanitize.Text(p.ErrorDescription)
		return "", domain.NewLoginError(domain.ErrCodeProviderDenied, message, fmt.Errorf("provider returned %q", p.Error))
	}
	if p.Code == "" {
		return "", domain.NewLoginError(domain.ErrCodeProviderDenied, "", errors.New("callback without authorization code"))
	}

	if err := s.verifyState(ctx, p.State, p.SessionID); err != nil {
		return "", domain.NewLoginError(domain.ErrCodeSecurityCheckFailed, "", err)
	}
	s.step(stepStateVerified)

	creds, err := s.provider.Exchange(ctx, p.Code)
	if err != nil {
		return "", domain.NewLoginError(domain.ErrCodeProfileUnavailable, "", fmt.Errorf("exchange code: %w", err))
	}

	claims, err := s.provider.FetchProfile(ctx, creds)
	if err != nil {
		return "", domain.NewLoginError(domain.ErrCodeProfileUnavailable, "", err)
	}
	if claims.Subject == "" {
		return "", domain.NewLoginError(domain.ErrCodeProfileUnavailable, "", errors.New("profile has no subject"))
	}
	if claims.Email == "" && s.requireEmail {
		return "", domain.NewLoginError(domain.ErrCodeEmailRequired, "", fmt.Errorf("no email for %s", claims.Subject))
	}
	s.step(stepProfileFetched)

	demographics := domain.NoDemographics
	if !claims.Partial {
		demographics = s.inferrer.Run(ctx, creds.AccessToken, claims.Hints())
	}
	s.step(stepDemographicsAttempted)

	user, err := s.users.Upsert(ctx, service.UpsertInput{
		Claims:       claims,
		Creds:        creds,
		Demographics: demographics,
	})
	if err != nil {
		return "", upsertLoginError(err)
	}
	s.step(stepUserUpserted)

	target, err := s.issueSession(user.ID)
	if err != nil {
		return "", err
	}

	s.metrics.RecordLoginOutcome(outcomeSuccess)
	s.logger.WithFields(map[string]interface{}{
		"user_id":           user.ID,
		"profile_completed": user.ProfileCompleted,
		"partial_profile":   claims.Partial,
	}).Info("Login completed")
	return target, nil
}

// verifyState accepts a correctly signed, unexpired state token. If the
// token is unusable for any reason other than age, the nonce saved for this
// browser session is accepted instead. The saved copy is consumed either way.
func (s *Service) verifyState(ctx context.Context, state, sessionID string) error {
	stored := s.takeStoredState(ctx, sessionID)

	_, err := s.states.Verify(state)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStateExpired) || stored == nil {
		return err
	}

	if s.now().Sub(stored.IssuedAt) > StateTTL {
		return fmt.Errorf("%w: stored state expired", ErrStateExpired)
	}
	nonce, ok := s.states.UnverifiedNonce(state)
	if !ok || !NonceEqual(nonce, stored.Nonce) {
		return err
	}

	s.metrics.RecordStateFallback()
	s.logger.WithError(err).Info("State token accepted through session fallback")
	return nil
}

func (s *Service) takeStoredState(ctx context.Context, sessionID string) *repository.LoginState {
	if s.stateStore == nil || sessionID == "" {
		return nil
	}
	stored, err := s.stateStore.Take(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.WithError(err).Warn("Failed to read login state fallback")
		}
		return nil
	}
	return stored
}

func (s *Service) issueSession(userID int64) (string, error) {
	token, _, err := s.sessions.Issue(userID)
	if err != nil {
		return "", domain.NewLoginError(domain.ErrCodeServiceUnavailable, "", fmt.Errorf("issue session token: %w", err))
	}
	s.step(stepTokenIssued)
	return s.frontendURL + "/auth/callback?" + url.Values{"token": {token}}.Encode(), nil
}

// fail converts any error into the frontend error redirect
func (s *Service) fail(err error) string {
	var loginErr *domain.LoginError
	if !errors.As(err, &loginErr) {
		loginErr = domain.NewLoginError(domain.ErrCodeServiceUnavailable, "", err)
	}

	s.metrics.RecordLoginOutcome(string(loginErr.Code))
	log := s.logger.WithField("code", string(loginErr.Code))
	if loginErr.Err != nil {
		log = log.WithError(loginErr.Err)
	}
	switch loginErr.Code {
	case domain.ErrCodeServiceUnavailable, domain.ErrCodeAccountError:
		log.Error("Login failed")
	default:
		log.Warn("Login failed")
	}

	query := url.Values{
		"code":    {string(loginErr.Code)},
		"message": {loginErr.Message},
	}
	return s.frontendURL + "/auth/error?" + query.Encode()
}

func (s *Service) step(name string) {
	s.logger.WithField("step", name).Debug("Login step")
}

func upsertLoginError(err error) *domain.LoginError {
	switch {
	case errors.Is(err, service.ErrValidationFailed), errors.Is(err, service.ErrConflict):
		return domain.NewLoginError(domain.ErrCodeAccountError, "", err)
	default:
		return domain.NewLoginError(domain.ErrCodeServiceUnavailable, "", err)
	}
}
