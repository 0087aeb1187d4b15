package repository

import (
	"context"
	"errors"
	"time"

	"podcast-be/internal/domain"
)

var (
	// ErrNotFound is returned when no row matches
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique constraint rejects a write
	ErrDuplicate = errors.New("duplicate key")
	// ErrInvalidField is returned when a column constraint rejects a value
	ErrInvalidField = errors.New("invalid field")
	// ErrUnavailable is returned for connection-level failures that are safe to retry
	ErrUnavailable = errors.New("store unavailable")
)

// UserStore is the set of user operations available inside InTx
type UserStore interface {
	// GetByLinkedInID retrieves a user by external identity id
	GetByLinkedInID(ctx context.Context, linkedinID string) (*domain.User, error)

	// Create inserts the user and fills ID and timestamps
	Create(ctx context.Context, user *domain.User) error

	// Update writes every mutable column of an existing user
	Update(ctx context.Context, user *domain.User) error
}

// UserRepository defines the interface for user data operations. Updates
// are only available inside InTx, so every write to an existing row holds
// its identity lock.
type UserRepository interface {
	// GetByID retrieves a user by local id
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetByLinkedInID retrieves a user by external identity id
	GetByLinkedInID(ctx context.Context, linkedinID string) (*domain.User, error)

	// Create inserts the user and fills ID and timestamps
	Create(ctx context.Context, user *domain.User) error

	// InTx runs fn in a transaction that holds an exclusive lock on
	// linkedinID until commit. The transaction rolls back if fn errors.
	InTx(ctx context.Context, linkedinID string, fn func(tx UserStore) error) error
}

// LoginState is the server-side copy of a pending login attempt
type LoginState struct {
	Nonce    string    `cbor:"1,keyasint"`
	IssuedAt time.Time `cbor:"2,keyasint"`
}

// LoginStateStore keeps pending login attempts keyed by browser session id
type LoginStateStore interface {
	// Save stores the state for sessionID, replacing any previous attempt
	Save(ctx context.Context, sessionID string, state *LoginState) error

	// Take returns and removes the state for sessionID. ErrNotFound if absent or expired.
	Take(ctx context.Context, sessionID string) (*LoginState, error)
}
