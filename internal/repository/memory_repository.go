package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"podcast-be/internal/domain"
)

// memoryUserRepository keeps users in process memory. It enforces the same
// uniqueness and consistency rules as the users table and serializes InTx
// per linkedin id like the advisory lock does.
type memoryUserRepository struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*domain.User
	locks  map[string]*sync.Mutex
	now    func() time.Time
}

// NewMemoryUserRepository creates an empty in-memory repository for local
// development and tests.
func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{
		users: make(map[int64]*domain.User),
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

func (r *memoryUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(u), nil
}

func (r *memoryUserRepository) GetByLinkedInID(ctx context.Context, linkedinID string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if u := r.findByLinkedInID(linkedinID); u != nil {
		return clone(u), nil
	}
	return nil, ErrNotFound
}

func (r *memoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	_, err := r.create(ctx, user)
	return err
}

func (r *memoryUserRepository) InTx(ctx context.Context, linkedinID string, fn func(tx UserStore) error) error {
	lock := r.lockFor(linkedinID)
	lock.Lock()
	defer lock.Unlock()

	tx := &memoryTx{repo: r}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (r *memoryUserRepository) lockFor(linkedinID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[linkedinID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[linkedinID] = l
	}
	return l
}

func (r *memoryUserRepository) create(ctx context.Context, user *domain.User) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := checkRow(user); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findByLinkedInID(user.LinkedInID) != nil {
		return 0, fmt.Errorf("%w (users_linkedin_id_key)", ErrDuplicate)
	}
	if r.emailTaken(user.Email, 0) {
		return 0, fmt.Errorf("%w (users_email_key)", ErrDuplicate)
	}

	r.nextID++
	now := r.now()
	user.ID = r.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = clone(user)
	return user.ID, nil
}

func (r *memoryUserRepository) update(ctx context.Context, user *domain.User) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := checkRow(user); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.users[user.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if r.emailTaken(user.Email, user.ID) {
		return nil, fmt.Errorf("%w (users_email_key)", ErrDuplicate)
	}

	// identity and creation time are immutable
	user.LinkedInID = prev.LinkedInID
	user.CreatedAt = prev.CreatedAt
	user.UpdatedAt = r.now()
	r.users[user.ID] = clone(user)
	return prev, nil
}

func (r *memoryUserRepository) findByLinkedInID(linkedinID string) *domain.User {
	for _, u := range r.users {
		if u.LinkedInID == linkedinID {
			return u
		}
	}
	return nil
}

func (r *memoryUserRepository) emailTaken(email string, except int64) bool {
	if email == "" {
		return false
	}
	for id, u := range r.users {
		if id != except && u.Email == email {
			return true
		}
	}
	return false
}

// checkRow mirrors the table's NOT NULL and CHECK constraints
func checkRow(u *domain.User) error {
	if u.LinkedInID == "" {
		return fmt.Errorf("%w: linkedin_id is required", ErrInvalidField)
	}
	if u.ProfileCompleted != (u.Persona != "" && u.Vertical != "") {
		return fmt.Errorf("%w: profile_completed is inconsistent", ErrInvalidField)
	}
	return nil
}

func clone(u *domain.User) *domain.User {
	c := *u
	if u.TokenExpiresAt != nil {
		t := *u.TokenExpiresAt
		c.TokenExpiresAt = &t
	}
	return &c
}

type memoryTx struct {
	repo *memoryUserRepository
	undo []func()
}

func (t *memoryTx) GetByLinkedInID(ctx context.Context, linkedinID string) (*domain.User, error) {
	return t.repo.GetByLinkedInID(ctx, linkedinID)
}

func (t *memoryTx) Create(ctx context.Context, user *domain.User) error {
	id, err := t.repo.create(ctx, user)
	if err != nil {
		return err
	}
	t.undo = append(t.undo, func() { delete(t.repo.users, id) })
	return nil
}

func (t *memoryTx) Update(ctx context.Context, user *domain.User) error {
	prev, err := t.repo.update(ctx, user)
	if err != nil {
		return err
	}
	t.undo = append(t.undo, func() { t.repo.users[prev.ID] = prev })
	return nil
}

func (t *memoryTx) rollback() {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
}
