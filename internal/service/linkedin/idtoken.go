package linkedin

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"podcast-be/internal/domain"
)

// claimsFromIDToken derives a partial profile from the ID token issued with
// the access token. It carries no headline or company data.
func (c *Client) claimsFromIDToken(ctx context.Context, rawIDToken string) (*domain.ProfileClaims, error) {
	var raw map[string]interface{}

	if c.cfg.Verifier != nil {
		idToken, err := c.cfg.Verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return nil, fmt.Errorf("verify id token: %w", err)
		}
		if err := idToken.Claims(&raw); err != nil {
			return nil, fmt.Errorf("decode id token claims: %w", err)
		}
	} else {
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(rawIDToken, claims); err != nil {
			return nil, fmt.Errorf("decode id token: %w", err)
		}
		raw = claims
	}

	profile := normalizeClaims(map[string]interface{}{
		"sub":            raw["sub"],
		"email":          raw["email"],
		"email_verified": raw["email_verified"],
		"name":           raw["name"],
		"given_name":     raw["given_name"],
		"family_name":    raw["family_name"],
		"picture":        raw["picture"],
		"locale":         raw["locale"],
	})
	if profile.Subject == "" {
		return nil, fmt.Errorf("id token has no subject")
	}

	profile.Partial = true
	return profile, nil
}
