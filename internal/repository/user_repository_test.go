package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	insertOrgSQL     = "INSERT INTO organizations (name) VALUES (?)"
	insertUserSQL    = "INSERT INTO users (email, password_hash, name, role, organization_id) VALUES (?,?,?,?,?)"
	selectByEmailSQL = "SELECT id,email,password_hash,name,role,organization_id,created_at,updated_at FROM users WHERE email=? LIMIT 1"
	selectByIDSQL    = "SELECT id,email,password_hash,name,role,organization_id,created_at,updated_at FROM users WHERE id=? LIMIT 1"
)

func newMockUserRepo(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewUserRepo(db), mock
}

func TestCreateWithOrganization(t *testing.T) {
	repo, mock := newMockUserRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(insertOrgSQL).WithArgs("Acme QA").
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectExec(insertUserSQL).
		WithArgs("alice@example.com", "hashed", "Alice", "ADMIN", int64(5)).
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectCommit()

	u, err := repo.CreateWithOrganization(context.Background(), "  Alice@Example.COM ", "hashed", "Alice", "Acme QA")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), u.ID)
	assert.Equal(t, "alice@example.com", u.Email) // normalized
	assert.Equal(t, "ADMIN", u.Role)
	assert.Equal(t, uint64(5), u.OrganizationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithOrganizationDuplicateEmail(t *testing.T) {
	repo, mock := newMockUserRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(insertOrgSQL).WithArgs("Acme QA").
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectExec(insertUserSQL).
		WithArgs("alice@example.com", "hashed", "Alice", "ADMIN", int64(5)).
		WillReturnError(errors.New("Error 1062 (23000): Duplicate entry 'alice@example.com' for key 'uq_users_email'"))
	mock.ExpectRollback()

	_, err := repo.CreateWithOrganization(context.Background(), "alice@example.com", "hashed", "Alice", "Acme QA")
	assert.ErrorIs(t, err, ErrEmailExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByEmail(t *testing.T) {
	repo, mock := newMockUserRepo(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "name", "role", "organization_id", "created_at", "updated_at"}).
		AddRow(9, "alice@example.com", "hashed", "Alice", "ADMIN", 5, now, now)
	mock.ExpectQuery(selectByEmailSQL).WithArgs("alice@example.com").WillReturnRows(rows)

	u, err := repo.GetByEmail(context.Background(), " ALICE@example.com ")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), u.ID)
	assert.Equal(t, "Alice", u.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByEmailNotFound(t *testing.T) {
	repo, mock := newMockUserRepo(t)

	mock.ExpectQuery(selectByEmailSQL).WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	repo, mock := newMockUserRepo(t)

	mock.ExpectQuery(selectByIDSQL).WithArgs(uint64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), 404)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
