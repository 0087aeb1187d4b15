package linkedin

import (
	"fmt"
	"strconv"
	"strings"

	"podcast-be/internal/domain"
	"podcast-be/pkg/sanitize"
)

// normalizeClaims accepts both the OIDC userinfo shape (sub, email, name,
// picture) and the legacy profile shape (id, displayName, emails[0].value,
// photos[0].value) and produces one ProfileClaims.
func normalizeClaims(raw map[string]interface{}) *domain.ProfileClaims {
	c := &domain.ProfileClaims{
		Subject:       firstString(raw, "sub", "id"),
		Email:         strings.ToLower(strings.TrimSpace(firstString(raw, "email", "emailAddress"))),
		EmailVerified: boolValue(raw["email_verified"]),
		Name:          firstString(raw, "name", "displayName", "formattedName"),
		GivenName:     firstString(raw, "given_name", "localizedFirstName", "firstName"),
		FamilyName:    firstString(raw, "family_name", "localizedLastName", "lastName"),
		Picture:       firstString(raw, "picture", "profilePicture"),
		Locale:        localeValue(raw["locale"]),
		Headline:      firstString(raw, "headline", "localizedHeadline"),
		Title:         firstString(raw, "title", "jobTitle", "position"),
		Company:       firstString(raw, "company", "companyName", "organization"),
		Industry:      firstString(raw, "industry", "industryName"),
	}

	if c.Email == "" {
		c.Email = strings.ToLower(strings.TrimSpace(firstArrayValue(raw, "emails")))
	}
	if c.Picture == "" {
		c.Picture = firstArrayValue(raw, "photos")
	}
	if name, ok := raw["name"].(map[string]interface{}); ok {
		if c.GivenName == "" {
			c.GivenName = stringValue(name["givenName"])
		}
		if c.FamilyName == "" {
			c.FamilyName = stringValue(name["familyName"])
		}
	}

	c.Name = sanitize.Text(c.Name)
	c.GivenName = sanitize.Text(c.GivenName)
	c.FamilyName = sanitize.Text(c.FamilyName)
	c.Headline = sanitize.Text(c.Headline)
	c.Title = sanitize.Text(c.Title)
	c.Company = sanitize.Text(c.Company)
	c.Industry = sanitize.Text(c.Industry)
	c.Picture = sanitize.URL(c.Picture)
	if c.Name == "" {
		c.Name = c.DisplayName()
	}

	return c
}

// firstString returns the first key holding a non-empty scalar
func firstString(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s := stringValue(raw[key]); s != "" {
			return s
		}
	}
	return ""
}

// firstArrayValue reads raw[key][0].value
func firstArrayValue(raw map[string]interface{}, key string) string {
	items, ok := raw[key].([]interface{})
	if !ok || len(items) == 0 {
		return ""
	}
	switch item := items[0].(type) {
	case map[string]interface{}:
		return stringValue(item["value"])
	default:
		return stringValue(item)
	}
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case fmt.Stringer:
		return val.String()
	default:
		return ""
	}
}

func boolValue(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, _ := strconv.ParseBool(val)
		return b
	default:
		return false
	}
}

// localeValue handles "en_US" as well as {"language":"en","country":"US"}
func localeValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]interface{}:
		lang, country := stringValue(val["language"]), stringValue(val["country"])
		if lang != "" && country != "" {
			return lang + "_" + country
		}
		return lang
	default:
		return ""
	}
}
