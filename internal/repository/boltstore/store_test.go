package boltstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/lycheelock/lycheelock/internal/errs"
	"github.com/lycheelock/lycheelock/internal/model"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.db")
	s, err := Open(path)
	require.NoError(t, err)
	return s, path
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()
	s, _ := openTemp(t)
	defer s.Close()

	_, err := s.Get(context.Background(), uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestStore_UpsertOverwritesAndPersists(t *testing.T) {
	t.Parallel()
	s, path := openTemp(t)
	ctx := context.Background()
	uid := uuid.Must(uuid.NewV4())
	other := uuid.Must(uuid.NewV4())

	require.NoError(t, s.Upsert(ctx, model.VaultRecord{UserID: uid, EncryptedData: "a", IV: "b", UpdatedAt: time.Unix(1, 0).UTC()}))
	require.NoError(t, s.Upsert(ctx, model.VaultRecord{UserID: other, EncryptedData: "x", IV: "y"}))
	want := model.VaultRecord{UserID: uid, EncryptedData: "c", IV: "d", UpdatedAt: time.Unix(2, 0).UTC()}
	require.NoError(t, s.Upsert(ctx, want))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(ctx, uid)
	require.NoError(t, err)
	require.Equal(t, want, *got)

	o, err := s2.Get(ctx, other)
	require.NoError(t, err)
	require.Equal(t, "x", o.EncryptedData)
}

func TestStore_Validation(t *testing.T) {
	t.Parallel()
	s, _ := openTemp(t)
	defer s.Close()

	require.Error(t, s.Upsert(context.Background(), model.VaultRecord{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Upsert(ctx, model.VaultRecord{UserID: uuid.Must(uuid.NewV4())}), context.Canceled)
	_, err := s.Get(ctx, uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, context.Canceled)
}
