package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/davudsafarov/testtrack/internal/model"
)

// TokenRepo owns the `refresh_tokens` table. Rows are append-and-mark:
// a record is inserted active and only ever transitions to consumed
// (rotation) or revoked (logout, reuse cascade). Rows are never deleted
// so the table doubles as an audit trail and makes replay detectable
// after the fact.
//
// The rotation race between two requests redeeming the same value is
// resolved by the database, not by in-process locks: the consume step is
// a conditional UPDATE guarded on status='active', so it stays correct
// across horizontally scaled instances sharing one store.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

const recordColumns = "id,token_hash,family_id,user_id,organization_id,issued_at,expires_at,status,replaced_by_token_id,created_at"

// Create inserts a new active refresh token record and returns it with
// its assigned id.
func (r *TokenRepo) Create(ctx context.Context, rec model.RefreshTokenRecord) (model.RefreshTokenRecord, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (token_hash, family_id, user_id, organization_id, issued_at, expires_at, status) VALUES (?,?,?,?,?,?,?)",
		rec.TokenHash, rec.FamilyID, rec.UserID, rec.OrganizationID, rec.IssuedAt, rec.ExpiresAt, model.TokenActive)
	if err != nil {
		return model.RefreshTokenRecord{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.RefreshTokenRecord{}, err
	}
	rec.ID = uint64(id)
	rec.Status = model.TokenActive
	return rec, nil
}

// RedeemAndRotate atomically consumes the record matching tokenHash and
// inserts its successor (same family, fresh window from now to now+ttl,
// hash successorHash). Exactly one concurrent caller can win the
// conditional update from active to consumed; every loser, and any
// presentation of an already consumed or revoked value, revokes the
// entire family and fails with ErrTokenReused.
//
// Returns the successor record on success. Failure modes: ErrTokenNotFound,
// ErrTokenExpired, ErrTokenReused. The family revocation performed on the
// reuse path is committed even though an error is returned.
func (r *TokenRepo) RedeemAndRotate(ctx context.Context, tokenHash, successorHash string, now time.Time, ttl time.Duration) (model.RefreshTokenRecord, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.RefreshTokenRecord{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		old      model.RefreshTokenRecord
		replaced sql.NullInt64
	)
	err = tx.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&old.ID, &old.TokenHash, &old.FamilyID, &old.UserID, &old.OrganizationID,
		&old.IssuedAt, &old.ExpiresAt, &old.Status, &replaced, &old.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RefreshTokenRecord{}, ErrTokenNotFound
	}
	if err != nil {
		return model.RefreshTokenRecord{}, err
	}

	if now.After(old.ExpiresAt) {
		return model.RefreshTokenRecord{}, ErrTokenExpired
	}

	// Reuse: the presented value was already consumed or revoked. The
	// record is returned alongside ErrTokenReused so the caller can
	// audit which family was just killed.
	if old.Status != model.TokenActive {
		return old, r.revokeFamilyTx(ctx, tx, old.FamilyID)
	}

	// Compare-and-set: only one concurrent redemption can flip the row
	// from active to consumed. A loser observes zero affected rows and
	// is routed into the reuse path.
	res, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET status=? WHERE id=? AND status=?",
		model.TokenConsumed, old.ID, model.TokenActive)
	if err != nil {
		return model.RefreshTokenRecord{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.RefreshTokenRecord{}, err
	}
	if n == 0 {
		return old, r.revokeFamilyTx(ctx, tx, old.FamilyID)
	}

	succ := model.RefreshTokenRecord{
		TokenHash:      successorHash,
		FamilyID:       old.FamilyID,
		UserID:         old.UserID,
		OrganizationID: old.OrganizationID,
		IssuedAt:       now,
		ExpiresAt:      now.Add(ttl),
		Status:         model.TokenActive,
	}
	ins, err := tx.ExecContext(ctx,
		"INSERT INTO refresh_tokens (token_hash, family_id, user_id, organization_id, issued_at, expires_at, status) VALUES (?,?,?,?,?,?,?)",
		succ.TokenHash, succ.FamilyID, succ.UserID, succ.OrganizationID, succ.IssuedAt, succ.ExpiresAt, succ.Status)
	if err != nil {
		return model.RefreshTokenRecord{}, err
	}
	newID, err := ins.LastInsertId()
	if err != nil {
		return model.RefreshTokenRecord{}, err
	}
	succ.ID = uint64(newID)

	if _, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET replaced_by_token_id=? WHERE id=?",
		succ.ID, old.ID); err != nil {
		return model.RefreshTokenRecord{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.RefreshTokenRecord{}, err
	}
	return succ, nil
}

// revokeFamilyTx marks every record of the family revoked and commits.
// Used on the reuse path inside RedeemAndRotate: the security action must
// land even though the redemption itself fails.
func (r *TokenRepo) revokeFamilyTx(ctx context.Context, tx *sql.Tx, familyID string) error {
	if _, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET status=? WHERE family_id=?",
		model.TokenRevoked, familyID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return ErrTokenReused
}

// RevokeFamily sets every record of the family to revoked. Idempotent:
// revoking an already revoked family affects zero rows and is not an
// error.
func (r *TokenRepo) RevokeFamily(ctx context.Context, familyID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET status=? WHERE family_id=? AND status<>?",
		model.TokenRevoked, familyID, model.TokenRevoked)
	return err
}

// RevokeByHash resolves the record owning tokenHash and revokes its whole
// family, regardless of the record's own status. The resolved record is
// returned so the caller can audit the revocation.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) (model.RefreshTokenRecord, error) {
	var (
		rec      model.RefreshTokenRecord
		replaced sql.NullInt64
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&rec.ID, &rec.TokenHash, &rec.FamilyID, &rec.UserID, &rec.OrganizationID,
		&rec.IssuedAt, &rec.ExpiresAt, &rec.Status, &replaced, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RefreshTokenRecord{}, ErrTokenNotFound
	}
	if err != nil {
		return model.RefreshTokenRecord{}, err
	}
	if replaced.Valid {
		id := uint64(replaced.Int64)
		rec.ReplacedByTokenID = &id
	}
	return rec, r.RevokeFamily(ctx, rec.FamilyID)
}
