package repository

import (
	"context"
	"database/sql"
)

// PostgresAuthRepository implements account persistence against a
// PostgreSQL database.
type PostgresAuthRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresAuthRepository creates a new PostgresAuthRepository with the
// given database connection.
func NewPostgresAuthRepository(db *sql.DB) *PostgresAuthRepository {
	return &PostgresAuthRepository{DB: db}
}

// UserExists checks whether a user with the specified login exists.
func (r *PostgresAuthRepository) UserExists(ctx context.Context, login string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(
		ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE login = $1)`,
		login,
	).Scan(&exists)
	return exists, err
}

// RegisterUser creates a new user record with the given login and
// password hash.
func (r *PostgresAuthRepository) RegisterUser(ctx context.Context, login string, passwordHash []byte) error {
	_, err := r.DB.ExecContext(
		ctx,
		`INSERT INTO users (login, password_hash) VALUES ($1, $2)`,
		login, passwordHash,
	)
	return err
}

// GetPasswordHash returns the stored password hash for the login.
// Returns sql.ErrNoRows for unknown users.
func (r *PostgresAuthRepository) GetPasswordHash(ctx context.Context, login string) ([]byte, error) {
	var hash []byte
	err := r.DB.QueryRowContext(
		ctx,
		`SELECT password_hash FROM users WHERE login = $1`,
		login,
	).Scan(&hash)
	if err != nil {
		return nil, err
	}
	return hash, nil
}
