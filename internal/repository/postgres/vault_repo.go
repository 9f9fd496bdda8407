package postgres

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/lycheelock/lycheelock/internal/model"
)

// VaultRepo implements VaultRepository using PostgreSQL.
type VaultRepo struct{ db *DB }

// NewVaultRepo constructs a vault repository.
func NewVaultRepo(db *DB) *VaultRepo { return &VaultRepo{db: db} }

// Get selects the user's vault row.
func (r *VaultRepo) Get(ctx context.Context, userID uuid.UUID) (*model.VaultRecord, error) {
	const q = `
SELECT user_id, encrypted_data, iv, updated_at
FROM vaults WHERE user_id=$1`
	var rec model.VaultRecord
	err := r.db.Pool.QueryRow(ctx, q, userID).Scan(&rec.UserID, &rec.EncryptedData, &rec.IV, &rec.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// Upsert inserts or overwrites the user's vault row. Last write wins.
func (r *VaultRepo) Upsert(ctx context.Context, rec model.VaultRecord) error {
	if rec.UserID == uuid.Nil {
		return fmt.Errorf("validation: empty user id")
	}
	const q = `
INSERT INTO vaults (user_id, encrypted_data, iv, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE
SET encrypted_data = EXCLUDED.encrypted_data,
    iv = EXCLUDED.iv,
    updated_at = EXCLUDED.updated_at`
	_, err := r.db.Pool.Exec(ctx, q, rec.UserID, rec.EncryptedData, rec.IV, rec.UpdatedAt)
	return err
}
