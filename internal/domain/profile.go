package domain

import "time"

// ProfileClaims is the normalized identity returned by the provider
type ProfileClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	Locale        string `json:"locale"`

	Headline string `json:"headline"`
	Title    string `json:"title"`
	Company  string `json:"company"`
	Industry string `json:"industry"`

	// Partial is set when claims came from the ID token fallback and carry
	// no demographic signal.
	Partial bool `json:"-"`
}

// DisplayName prefers the full name and falls back to the name parts
func (c *ProfileClaims) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	switch {
	case c.GivenName != "" && c.FamilyName != "":
		return c.GivenName + " " + c.FamilyName
	case c.GivenName != "":
		return c.GivenName
	default:
		return c.FamilyName
	}
}

// Hints extracts the free-text signals used by demographic inference
func (c *ProfileClaims) Hints() DemographicHints {
	return DemographicHints{
		Headline: c.Headline,
		Title:    c.Title,
		Company:  c.Company,
		Industry: c.Industry,
	}
}

// ProviderCredentials are the OAuth tokens issued by the provider
type ProviderCredentials struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	ExpiresAt    *time.Time
}

// Expired reports whether the access token is past its expiry (with skew)
func (c ProviderCredentials) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return now.Add(time.Minute).After(*c.ExpiresAt)
}

// DemographicHints are the inputs to demographic inference
type DemographicHints struct {
	Headline string `json:"headline"`
	Title    string `json:"title"`
	Company  string `json:"company"`
	Industry string `json:"industry"`
}

// Empty reports whether there is no signal at all
func (h DemographicHints) Empty() bool {
	return h.Headline == "" && h.Title == "" && h.Company == "" && h.Industry == ""
}

// Confidence labels an inference result
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
	ConfidenceNone Confidence = "none"
)

// Demographics is a best-effort persona/vertical guess. Empty fields mean unknown.
type Demographics struct {
	Persona    string     `json:"persona"`
	Vertical   string     `json:"vertical"`
	Confidence Confidence `json:"confidence"`
}

// NoDemographics is the result used when inference fails or is skipped
var NoDemographics = Demographics{Confidence: ConfidenceNone}
