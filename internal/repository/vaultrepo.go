package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/lycheelock/lycheelock/internal/model"
)

// VaultRepository stores one encrypted vault record per account.
type VaultRepository interface {
	// Get returns the user's record or errs.ErrNotFound.
	Get(ctx context.Context, userID uuid.UUID) (*model.VaultRecord, error)
	// Upsert writes rec, replacing any existing record for rec.UserID.
	Upsert(ctx context.Context, rec model.VaultRecord) error
}
