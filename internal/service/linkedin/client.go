// Package linkedin talks to LinkedIn's OAuth 2.0 / OpenID Connect endpoints:
// authorization URL, code exchange, token refresh and profile retrieval.
package linkedin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	oauthlinkedin "golang.org/x/oauth2/linkedin"

	"podcast-be/internal/domain"
	"podcast-be/internal/metrics"
	"podcast-be/pkg/logger"
)

var (
	// ErrUnauthorized means LinkedIn rejected the credential or request (4xx); retrying cannot help
	ErrUnauthorized = errors.New("linkedin: request rejected")
	// ErrUnavailable means LinkedIn could not be reached or kept failing
	ErrUnavailable = errors.New("linkedin: unavailable")
)

// DefaultScopes are requested on every authorization
var DefaultScopes = []string{oidc.ScopeOpenID, "profile", "email"}

const (
	DefaultUserInfoURL    = "https://api.linkedin.com/v2/userinfo"
	DefaultRequestTimeout = 15 * time.Second
	DefaultMaxRetries     = 2
	DefaultRetryDelay     = time.Second
)

// Config configures the LinkedIn client
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Endpoint     oauth2.Endpoint
	UserInfoURL  string

	RequestTimeout time.Duration // per userinfo attempt
	MaxRetries     int           // additional attempts after the first
	RetryDelay     time.Duration // attempt n waits n*RetryDelay

	// Verifier checks ID token signatures for the fallback path. When nil the
	// token is decoded without verification; it was received directly from
	// the token endpoint over TLS.
	Verifier *oidc.IDTokenVerifier
}

// Client implements the LinkedIn identity provider
type Client struct {
	oauth      *oauth2.Config
	cfg        Config
	httpClient *http.Client
	logger     *logger.Logger
	metrics    metrics.Recorder
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient creates a LinkedIn client, filling unset values with defaults
func NewClient(cfg Config, log *logger.Logger, rec metrics.Recorder) *Client {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.Endpoint.AuthURL == "" {
		cfg.Endpoint = oauthlinkedin.Endpoint
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = DefaultUserInfoURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if rec == nil {
		rec = metrics.Nop{}
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     cfg.Endpoint,
		},
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger:     log,
		metrics:    rec,
		sleep:      sleepContext,
	}
}

// NewVerifier discovers the issuer's keys and returns an ID token verifier
func NewVerifier(ctx context.Context, issuer, clientID string) (*oidc.IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover OIDC issuer %s: %w", issuer, err)
	}
	return provider.Verifier(&oidc.Config{ClientID: clientID}), nil
}

// Name identifies the provider in routes and logs
func (c *Client) Name() string {
	return "linkedin"
}

// AuthCodeURL builds the authorization redirect carrying state
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for provider credentials
func (c *Client) Exchange(ctx context.Context, code string) (*domain.ProviderCredentials, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", classifyOAuthError(err))
	}
	return credentialsFromToken(token, ""), nil
}

// Refresh obtains a new access token using the stored refresh token. The
// previous refresh token is kept when LinkedIn does not issue a new one.
func (c *Client) Refresh(ctx context.Context, creds *domain.ProviderCredentials) (*domain.ProviderCredentials, error) {
	if creds == nil || creds.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", ErrUnauthorized)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	expired := &oauth2.Token{
		RefreshToken: creds.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}
	token, err := c.oauth.TokenSource(ctx, expired).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh access token: %w", classifyOAuthError(err))
	}

	c.logger.Debug("LinkedIn access token refreshed")
	return credentialsFromToken(token, creds.RefreshToken), nil
}

// FetchProfile loads the user's profile from the userinfo endpoint, retrying
// transient failures. When that fails it derives a partial profile from the
// ID token, if one is available.
func (c *Client) FetchProfile(ctx context.Context, creds *domain.ProviderCredentials) (*domain.ProfileClaims, error) {
	claims, err := c.fetchUserInfo(ctx, creds.AccessToken)
	if err == nil {
		return claims, nil
	}

	// A rejected token is left to the caller's refresh path
	if !errors.Is(err, ErrUnavailable) || creds.IDToken == "" || ctx.Err() != nil {
		return nil, err
	}

	c.logger.WithError(err).Warn("Userinfo failed, falling back to ID token claims")
	fallback, fbErr := c.claimsFromIDToken(ctx, creds.IDToken)
	if fbErr != nil {
		c.logger.WithError(fbErr).Warn("ID token fallback failed")
		return nil, err
	}

	c.metrics.RecordProfileFallback()
	return fallback, nil
}

func (c *Client) fetchUserInfo(ctx context.Context, accessToken string) (*domain.ProfileClaims, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrUnauthorized)
	}

	var lastErr error
	attempts := c.cfg.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, time.Duration(attempt)*c.cfg.RetryDelay); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}

		claims, err := c.userInfoOnce(ctx, accessToken)
		if err == nil {
			c.metrics.RecordProfileFetchAttempt("ok")
			return claims, nil
		}

		lastErr = err
		if errors.Is(err, ErrUnauthorized) {
			c.metrics.RecordProfileFetchAttempt("rejected")
			return nil, err
		}
		c.metrics.RecordProfileFetchAttempt("retryable")

		c.logger.WithError(err).WithFields(map[string]interface{}{
			"attempt":      attempt + 1,
			"max_attempts": attempts,
		}).Warn("Userinfo request failed")

		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("%w: %d attempts failed: %v", ErrUnavailable, attempts, lastErr)
}

func (c *Client) userInfoOnce(ctx context.Context, accessToken string) (*domain.ProfileClaims, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnauthorized, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read userinfo response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: userinfo returned status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("userinfo returned unexpected status %d", resp.StatusCode)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode userinfo response: %w", err)
	}

	claims := normalizeClaims(raw)
	if claims.Subject == "" {
		return nil, fmt.Errorf("userinfo response has no subject")
	}
	return claims, nil
}

func credentialsFromToken(token *oauth2.Token, previousRefresh string) *domain.ProviderCredentials {
	creds := &domain.ProviderCredentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = previousRefresh
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		creds.ExpiresAt = &expiry
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		creds.IDToken = idToken
	}
	return creds
}

// classifyOAuthError separates rejected grants from transport failures
func classifyOAuthError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		if retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
