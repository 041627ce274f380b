package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func setupAuthMock(t *testing.T) (*PostgresAuthRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	repo := NewPostgresAuthRepository(db)
	return repo, mock, func() { db.Close() }
}

func TestUserExists(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM users WHERE login = $1)`)).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.UserExists(context.Background(), "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected user to exist")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRegisterUser(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	hash := []byte("$2a$10$fakehash")
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users (login, password_hash) VALUES ($1, $2)`)).
		WithArgs("alice", hash).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.RegisterUser(context.Background(), "alice", hash); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetPasswordHash(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	hash := []byte("$2a$10$fakehash")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT password_hash FROM users WHERE login = $1`)).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow(hash))

	got, err := repo.GetPasswordHash(context.Background(), "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != string(hash) {
		t.Errorf("hash = %q", got)
	}
}

func TestGetPasswordHash_UnknownUser(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT password_hash FROM users WHERE login = $1`)).
		WithArgs("bob").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetPasswordHash(context.Background(), "bob")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v; want sql.ErrNoRows", err)
	}
}
