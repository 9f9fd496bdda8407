// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/lycheelock/lycheelock/internal/model"
)

// UserRepository provides access to accounts and their second-factor state.
type UserRepository interface {
	// Create inserts a new user. Returns errs.ErrAlreadyExists on a taken username.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// SetTotpSecret stores a pending secret and clears the enabled flag.
	SetTotpSecret(ctx context.Context, id uuid.UUID, secret string) error
	// EnableTotp marks the stored secret as confirmed.
	EnableTotp(ctx context.Context, id uuid.UUID) error
	// ClaimTotpStep records step as the last accepted code step. It reports
	// false when step is not newer than the recorded one, i.e. a replay.
	ClaimTotpStep(ctx context.Context, id uuid.UUID, step int64) (bool, error)
}
