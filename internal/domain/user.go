package domain

import "time"

// User is a local account linked to exactly one LinkedIn identity.
// Empty strings stand for NULL columns.
type User struct {
	ID                int64      `json:"id"`
	LinkedInID        string     `json:"linkedinId"`
	Email             string     `json:"email"`
	Name              string     `json:"name"`
	ProfilePictureURL string     `json:"profilePictureUrl"`
	AccessToken       string     `json:"-"`
	RefreshToken      string     `json:"-"`
	TokenExpiresAt    *time.Time `json:"-"`
	Persona           string     `json:"persona"`
	Vertical          string     `json:"vertical"`
	ProfileCompleted  bool       `json:"profileCompleted"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// RecomputeProfileCompleted keeps ProfileCompleted in line with persona and vertical
func (u *User) RecomputeProfileCompleted() {
	u.ProfileCompleted = u.Persona != "" && u.Vertical != ""
}

// Credentials returns the stored provider credentials
func (u *User) Credentials() ProviderCredentials {
	return ProviderCredentials{
		AccessToken:  u.AccessToken,
		RefreshToken: u.RefreshToken,
		ExpiresAt:    u.TokenExpiresAt,
	}
}

// PublicUser is the client-facing view of a User. Credentials never appear here.
type PublicUser struct {
	ID                int64     `json:"id"`
	LinkedInID        string    `json:"linkedinId"`
	Email             *string   `json:"email"`
	Name              string    `json:"name"`
	ProfilePictureURL *string   `json:"profilePictureUrl"`
	Persona           *string   `json:"persona"`
	Vertical          *string   `json:"vertical"`
	ProfileCompleted  bool      `json:"profileCompleted"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Public converts the user to its client-facing representation
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:                u.ID,
		LinkedInID:        u.LinkedInID,
		Email:             nullable(u.Email),
		Name:              u.Name,
		ProfilePictureURL: nullable(u.ProfilePictureURL),
		Persona:           nullable(u.Persona),
		Vertical:          nullable(u.Vertical),
		ProfileCompleted:  u.ProfileCompleted,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ProfileUpdate is the body of PUT /auth/profile
type ProfileUpdate struct {
	Persona  string `json:"persona"`
	Vertical string `json:"vertical"`
}
