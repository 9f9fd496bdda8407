package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/lycheelock/lycheelock/internal/errs"
	"github.com/lycheelock/lycheelock/internal/model"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, username, pwd_hash, salt_auth, vault_salt, totp_secret, totp_enabled, created_at`

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, username, pwd_hash, salt_auth, vault_salt)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Pool.Exec(ctx, q, u.ID, u.Username, u.PwdHash, u.SaltAuth, u.VaultSalt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

// GetByUsername selects a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
}

func (r *UserRepo) getOne(ctx context.Context, q string, arg any) (*model.User, error) {
	var u model.User
	err := r.db.Pool.QueryRow(ctx, q, arg).Scan(
		&u.ID, &u.Username, &u.PwdHash, &u.SaltAuth, &u.VaultSalt, &u.TotpSecret, &u.TotpEnabled, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// SetTotpSecret stores a pending secret; the factor stays disabled until confirmed.
func (r *UserRepo) SetTotpSecret(ctx context.Context, id uuid.UUID, secret string) error {
	const q = `UPDATE users SET totp_secret = $2, totp_enabled = false, totp_last_step = 0 WHERE id = $1`
	return r.expectOne(r.db.Pool.Exec(ctx, q, id, secret))
}

// EnableTotp marks the stored secret confirmed. Fails if no secret is set.
func (r *UserRepo) EnableTotp(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE users SET totp_enabled = true WHERE id = $1 AND totp_secret <> ''`
	return r.expectOne(r.db.Pool.Exec(ctx, q, id))
}

// ClaimTotpStep moves totp_last_step forward in one statement, so two
// concurrent logins with the same code cannot both win.
func (r *UserRepo) ClaimTotpStep(ctx context.Context, id uuid.UUID, step int64) (bool, error) {
	const q = `UPDATE users SET totp_last_step = $2 WHERE id = $1 AND totp_last_step < $2`
	tag, err := r.db.Pool.Exec(ctx, q, id, step)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *UserRepo) expectOne(tag interface{ RowsAffected() int64 }, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
