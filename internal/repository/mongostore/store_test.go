package mongostore

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/lycheelock/lycheelock/internal/errs"
	"github.com/lycheelock/lycheelock/internal/model"
)

func TestStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	uid := uuid.Must(uuid.NewV4())
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mt.Run("get found", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: uid.String()},
			{Key: "encrypted_data", Value: "Y3Q="},
			{Key: "iv", Value: "bm9uY2U="},
			{Key: "updated_at", Value: at},
		}))

		rec, err := New(mt.Coll).Get(ctx, uid)
		require.NoError(mt, err)
		require.Equal(mt, uid, rec.UserID)
		require.Equal(mt, "Y3Q=", rec.EncryptedData)
		require.Equal(mt, "bm9uY2U=", rec.IV)
		require.True(mt, at.Equal(rec.UpdatedAt))
	})

	mt.Run("get missing", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := New(mt.Coll).Get(ctx, uid)
		require.ErrorIs(mt, err, errs.ErrNotFound)
	})

	mt.Run("get error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Name: "BadValue", Message: "boom"}))

		_, err := New(mt.Coll).Get(ctx, uid)
		require.Error(mt, err)
		require.NotErrorIs(mt, err, errs.ErrNotFound)
	})

	mt.Run("upsert", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		err := New(mt.Coll).Upsert(ctx, model.VaultRecord{UserID: uid, EncryptedData: "a", IV: "b", UpdatedAt: at})
		require.NoError(mt, err)
	})

	mt.Run("upsert error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Name: "BadValue", Message: "boom"}))

		err := New(mt.Coll).Upsert(ctx, model.VaultRecord{UserID: uid, EncryptedData: "a", IV: "b"})
		require.Error(mt, err)
	})

	mt.Run("upsert rejects nil user", func(mt *mtest.T) {
		require.Error(mt, New(mt.Coll).Upsert(ctx, model.VaultRecord{}))
	})

	mt.Run("close without client", func(mt *mtest.T) {
		require.NoError(mt, New(mt.Coll).Close(ctx))
	})
}
