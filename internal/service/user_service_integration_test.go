//go:build integration

package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"podcast-be/internal/domain"
	"podcast-be/internal/repository"
	"podcast-be/pkg/database"
)

// startPostgres runs a throwaway Postgres and returns a migrated database URL
func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "podcast",
			"POSTGRES_PASSWORD": "podcast",
			"POSTGRES_DB":       "podcast",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pg, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	url := fmt.Sprintf("postgres://podcast:podcast@%s:%s/podcast?sslmode=disable", host, port.Port())
	require.NoError(t, database.RunMigrations(url))
	return url
}

func newPostgresEnv(t *testing.T) *testEnv {
	t.Helper()
	url := startPostgres(t)

	db, err := database.NewPostgresDB(context.Background(), url, "")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return newTestEnv(t, repository.NewUserRepository(db))
}

func TestPostgres_ConcurrentFirstLoginsCreateOneRow(t *testing.T) {
	env := newPostgresEnv(t)
	const n = 20

	ids := make([]int64, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			u, err := env.svc.Upsert(context.Background(), loginInput("li-pg-race"))
			errs[i] = err
			if err == nil {
				ids[i] = u.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, env.rec.paths[pathCreated])
}

func TestPostgres_ProfileLifecycle(t *testing.T) {
	env := newPostgresEnv(t)
	ctx := context.Background()

	in := loginInput("li-pg-1")
	in.Demographics = domain.Demographics{Persona: "CTO", Confidence: domain.ConfidenceLow}
	created, err := env.svc.Upsert(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", created.Email)
	assert.False(t, created.ProfileCompleted)

	updated, err := env.svc.UpdateProfile(ctx, created.ID, domain.ProfileUpdate{Persona: "CFO", Vertical: "Banking"})
	require.NoError(t, err)
	assert.True(t, updated.ProfileCompleted)

	again, err := env.svc.Upsert(ctx, loginInput("li-pg-1"))
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
	assert.Equal(t, "CFO", again.Persona)
	assert.Equal(t, "Banking", again.Vertical)

	other := loginInput("li-pg-2")
	_, err = env.svc.Upsert(ctx, other)
	assert.ErrorIs(t, err, ErrConflict, "same email on a second identity")

	_, err = env.svc.GetUser(ctx, created.ID+1000)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPostgres_ConcurrentLoginsKeepProfileEdit(t *testing.T) {
	env := newPostgresEnv(t)
	ctx := context.Background()
	u, err := env.svc.Upsert(ctx, loginInput("li-pg-edit"))
	require.NoError(t, err)

	const n = 20
	errs := make([]error, n+1)
	var wg sync.WaitGroup
	wg.Add(n + 1)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			in := loginInput("li-pg-edit")
			in.Demographics = domain.Demographics{Persona: "CTO", Vertical: "SaaS", Confidence: domain.ConfidenceHigh}
			_, errs[i] = env.svc.Upsert(ctx, in)
		}(i)
	}
	go func() {
		defer wg.Done()
		_, errs[n] = env.svc.UpdateProfile(ctx, u.ID, domain.ProfileUpdate{Persona: "CFO", Vertical: "Banking"})
	}()
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	stored, err := env.repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "CFO", stored.Persona)
	assert.Equal(t, "Banking", stored.Vertical)
	assert.True(t, stored.ProfileCompleted)
}
