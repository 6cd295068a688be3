package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/davudsafarov/testtrack/internal/model"
)

// UserRepo is the narrow directory contract the auth core needs: email
// lookup, id lookup and first-user-plus-organization creation. All other
// account management belongs to the directory module of the platform.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// CreateWithOrganization inserts a new organization and its first user in
// one transaction. The user becomes ADMIN of the fresh organization.
// The password must already be hashed by the caller; this layer never
// sees plaintext credentials.
func (r *UserRepo) CreateWithOrganization(ctx context.Context, email, passwordHash, name, orgName string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO organizations (name) VALUES (?)", orgName)
	if err != nil {
		return model.User{}, err
	}
	orgID, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}

	res, err = tx.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, name, role, organization_id) VALUES (?,?,?,?,?)",
		email, passwordHash, name, "ADMIN", orgID)
	if err != nil {
		// MySQL duplicate-key error on the unique email index.
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, err
	}
	uid, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.User{}, err
	}
	return model.User{
		ID:             uint64(uid),
		Email:          email,
		PasswordHash:   passwordHash,
		Name:           name,
		Role:           "ADMIN",
		OrganizationID: uint64(orgID),
	}, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,name,role,organization_id,created_at,updated_at FROM users WHERE email=? LIMIT 1",
		email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.OrganizationID, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrUserNotFound
	}
	return u, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,name,role,organization_id,created_at,updated_at FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.OrganizationID, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrUserNotFound
	}
	return u, err
}
