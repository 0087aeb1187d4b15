package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podcast-be/internal/domain"
)

func TestMemoryUserRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	u := &domain.User{LinkedInID: "li-1", Email: "ada@example.com", Name: "Ada"}
	require.NoError(t, repo.Create(ctx, u))
	assert.Equal(t, int64(1), u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	byID, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", byID.Name)

	byLinkedIn, err := repo.GetByLinkedInID(ctx, "li-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byLinkedIn.ID)

	_, err = repo.GetByID(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetByLinkedInID(ctx, "li-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUserRepository_Constraints(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	require.NoError(t, repo.Create(ctx, &domain.User{LinkedInID: "li-1", Email: "ada@example.com"}))

	err := repo.Create(ctx, &domain.User{LinkedInID: "li-1"})
	assert.ErrorIs(t, err, ErrDuplicate)

	err = repo.Create(ctx, &domain.User{LinkedInID: "li-2", Email: "ada@example.com"})
	assert.ErrorIs(t, err, ErrDuplicate)

	err = repo.Create(ctx, &domain.User{LinkedInID: "li-3", Persona: "CTO", ProfileCompleted: true})
	assert.ErrorIs(t, err, ErrInvalidField)

	err = repo.Create(ctx, &domain.User{})
	assert.ErrorIs(t, err, ErrInvalidField)

	// empty emails never collide
	require.NoError(t, repo.Create(ctx, &domain.User{LinkedInID: "li-4"}))
	require.NoError(t, repo.Create(ctx, &domain.User{LinkedInID: "li-5"}))
}

func TestMemoryUserRepository_UpdateKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	u := &domain.User{LinkedInID: "li-1"}
	require.NoError(t, repo.Create(ctx, u))

	u.LinkedInID = "li-other"
	u.Name = "Renamed"
	require.NoError(t, repo.InTx(ctx, "li-1", func(tx UserStore) error {
		return tx.Update(ctx, u)
	}))

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "li-1", got.LinkedInID)
	assert.Equal(t, "Renamed", got.Name)

	err = repo.InTx(ctx, "x", func(tx UserStore) error {
		return tx.Update(ctx, &domain.User{ID: 42, LinkedInID: "x"})
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUserRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	u := &domain.User{LinkedInID: "li-1", Name: "Ada"}
	require.NoError(t, repo.Create(ctx, u))

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	got.Name = "Mutated"

	again, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.Name)
}

func TestMemoryUserRepository_InTxRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	existing := &domain.User{LinkedInID: "li-1", Name: "Before"}
	require.NoError(t, repo.Create(ctx, existing))

	boom := errors.New("boom")
	err := repo.InTx(ctx, "li-1", func(tx UserStore) error {
		u, err := tx.GetByLinkedInID(ctx, "li-1")
		require.NoError(t, err)
		u.Name = "After"
		require.NoError(t, tx.Update(ctx, u))
		require.NoError(t, tx.Create(ctx, &domain.User{LinkedInID: "li-2"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repo.GetByLinkedInID(ctx, "li-1")
	require.NoError(t, err)
	assert.Equal(t, "Before", got.Name)
	_, err = repo.GetByLinkedInID(ctx, "li-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUserRepository_InTxSerializesPerIdentity(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = repo.InTx(ctx, "li-race", func(tx UserStore) error {
				if _, err := tx.GetByLinkedInID(ctx, "li-race"); err == nil {
					return nil
				}
				return tx.Create(ctx, &domain.User{LinkedInID: "li-race"})
			})
		}()
	}
	wg.Wait()

	got, err := repo.GetByLinkedInID(ctx, "li-race")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
	_, err = repo.GetByID(ctx, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUserRepository_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryUserRepository().GetByID(ctx, 1)
	assert.ErrorIs(t, err, ErrUnavailable)
}
