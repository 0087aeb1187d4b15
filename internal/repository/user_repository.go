package repository

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"podcast-be/internal/domain"
	"podcast-be/pkg/database"
)

const userColumns = `id, linkedin_id, email, name, profile_picture_url, access_token, refresh_token,
	token_expires_at, persona, vertical, profile_completed, created_at, updated_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// userRepository handles user persistence with PostgreSQL
type userRepository struct {
	db *database.PostgresDB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.PostgresDB) UserRepository {
	return &userRepository{db: db}
}

// GetByID reads from the replica and retries the primary on a miss, since
// the row may have been created moments ago.
func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.GetReadPool().QueryRow(ctx, query, id))
	if errors.Is(err, ErrNotFound) && r.db.ReadPool != nil {
		user, err = scanUser(r.db.Pool.QueryRow(ctx, query, id))
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return user, nil
}

func (r *userRepository) GetByLinkedInID(ctx context.Context, linkedinID string) (*domain.User, error) {
	return getByLinkedInID(ctx, r.db.Pool, linkedinID)
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	return createUser(ctx, r.db.Pool, user)
}

func (r *userRepository) InTx(ctx context.Context, linkedinID string, fn func(tx UserStore) error) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", classify(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serializes concurrent first logins of the same identity; released at commit.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, linkedinID); err != nil {
		return fmt.Errorf("lock identity: %w", classify(err))
	}

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", classify(err))
	}
	return nil
}

// txStore runs UserStore operations inside an open transaction
type txStore struct {
	tx pgx.Tx
}

func (s *txStore) GetByLinkedInID(ctx context.Context, linkedinID string) (*domain.User, error) {
	return getByLinkedInID(ctx, s.tx, linkedinID)
}

func (s *txStore) Create(ctx context.Context, user *domain.User) error {
	return createUser(ctx, s.tx, user)
}

func (s *txStore) Update(ctx context.Context, user *domain.User) error {
	return updateUser(ctx, s.tx, user)
}

func getByLinkedInID(ctx context.Context, q querier, linkedinID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE linkedin_id = $1`

	user, err := scanUser(q.QueryRow(ctx, query, linkedinID))
	if err != nil {
		return nil, fmt.Errorf("get user by linkedin id: %w", err)
	}
	return user, nil
}

func createUser(ctx context.Context, q querier, user *domain.User) error {
	query := `
		INSERT INTO users (linkedin_id, email, name, profile_picture_url, access_token, refresh_token,
			token_expires_at, persona, vertical, profile_completed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRow(ctx, query,
		user.LinkedInID,
		nullIfEmpty(user.Email),
		user.Name,
		user.ProfilePictureURL,
		user.AccessToken,
		user.RefreshToken,
		user.TokenExpiresAt,
		nullIfEmpty(user.Persona),
		nullIfEmpty(user.Vertical),
		user.ProfileCompleted,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", classify(err))
	}
	return nil
}

func updateUser(ctx context.Context, q querier, user *domain.User) error {
	query := `
		UPDATE users SET
			email = $2,
			name = $3,
			profile_picture_url = $4,
			access_token = $5,
			refresh_token = $6,
			token_expires_at = $7,
			persona = $8,
			vertical = $9,
			profile_completed = $10,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := q.QueryRow(ctx, query,
		user.ID,
		nullIfEmpty(user.Email),
		user.Name,
		user.ProfilePictureURL,
		user.AccessToken,
		user.RefreshToken,
		user.TokenExpiresAt,
		nullIfEmpty(user.Persona),
		nullIfEmpty(user.Vertical),
		user.ProfileCompleted,
	).Scan(&user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update user %d: %w", user.ID, classify(err))
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user                     domain.User
		email, persona, vertical *string
	)

	err := row.Scan(
		&user.ID,
		&user.LinkedInID,
		&email,
		&user.Name,
		&user.ProfilePictureURL,
		&user.AccessToken,
		&user.RefreshToken,
		&user.TokenExpiresAt,
		&persona,
		&vertical,
		&user.ProfileCompleted,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, classify(err)
	}

	user.Email = deref(email)
	user.Persona = deref(persona)
	user.Vertical = deref(vertical)
	return &user, nil
}

// Postgres error codes the repository distinguishes
const (
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"
	pgStringTooLong       = "22001"
	pgInvalidTextRepr     = "22P02"
	pgTooManyConnections  = "53300"
	pgAdminShutdown       = "57P01"
	pgCannotConnectNow    = "57P03"
	pgConnectionException = "08"
)

// classify maps driver errors onto the repository sentinels, keeping the
// original error in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation:
			return fmt.Errorf("%w (%s): %w", ErrDuplicate, pgErr.ConstraintName, err)
		case pgErr.Code == pgCheckViolation, pgErr.Code == pgNotNullViolation,
			pgErr.Code == pgStringTooLong, pgErr.Code == pgInvalidTextRepr:
			return fmt.Errorf("%w (%s): %w", ErrInvalidField, pgErr.ConstraintName, err)
		case pgErr.Code == pgTooManyConnections, pgErr.Code == pgAdminShutdown,
			pgErr.Code == pgCannotConnectNow, len(pgErr.Code) == 5 && pgErr.Code[:2] == pgConnectionException:
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
