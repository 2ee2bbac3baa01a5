package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/domain"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/repository"
)

const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Repository implements repository.Store on PostgreSQL.
type Repository struct {
	db    DB
	close func()
}

var _ repository.Store = (*Repository)(nil)

// New constructs a Repository over db.
func New(db DB) *Repository {
	return &Repository{db: db, close: func() {}}
}

// Open dials the pool and verifies connectivity.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Repository{db: pool, close: pool.Close}, nil
}

const userColumns = `id, email, password_hash, first_name, last_name, phone,
	sensitive_id_ciphertext, sensitive_id_iv, sensitive_id_auth_tag, created_at, updated_at`

// CreateUser inserts a user. A conflicting email yields repository.ErrDuplicate.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.SensitiveID.Ciphertext,
		user.SensitiveID.IV,
		user.SensitiveID.AuthTag,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail fetches a user by email, ignoring case.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUser(r.db.QueryRow(ctx, query, email))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

// UpdateUser writes the mutable profile columns and the full encrypted
// triple in one statement.
func (r *Repository) UpdateUser(ctx context.Context, user *domain.User) error {
	const query = `UPDATE users SET
		first_name = $2,
		last_name = $3,
		phone = $4,
		sensitive_id_ciphertext = $5,
		sensitive_id_iv = $6,
		sensitive_id_auth_tag = $7,
		updated_at = $8
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query,
		user.ID,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.SensitiveID.Ciphertext,
		user.SensitiveID.IV,
		user.SensitiveID.AuthTag,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ping checks the connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Close releases the pool.
func (r *Repository) Close(context.Context) error {
	r.close()
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Phone,
		&u.SensitiveID.Ciphertext,
		&u.SensitiveID.IV,
		&u.SensitiveID.AuthTag,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
