package redis

import "fmt"

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string // Environment prefix (staging/prod)
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	prefix := "prod"
	switch environment {
	case "development", "staging":
		prefix = "staging"
	case "test":
		prefix = "test"
	}

	return &KeyBuilder{
		prefix: prefix,
	}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

// KeyLoginState is the pending login attempt bound to a browser session id
func (kb *KeyBuilder) KeyLoginState(sessionID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyLoginState, sessionID))
}

// KeyUserProfile is the cached public profile of a local user
func (kb *KeyBuilder) KeyUserProfile(userID int64) string {
	return kb.BuildKey(fmt.Sprintf(KeyUserProfile, userID))
}
