// Package mongostore keeps vault records in a MongoDB collection, one document
// per account keyed by user id.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lycheelock/lycheelock/internal/errs"
	"github.com/lycheelock/lycheelock/internal/model"
)

const pingTimeout = 5 * time.Second

type vaultDoc struct {
	UserID        string    `bson:"_id"`
	EncryptedData string    `bson:"encrypted_data"`
	IV            string    `bson:"iv"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

// Store implements repository.VaultRepository on a collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// New wraps an existing collection. Close is a no-op for such stores.
func New(coll *mongo.Collection) *Store { return &Store{coll: coll} }

// Connect dials uri and checks the server answers.
func Connect(ctx context.Context, uri, dbName, collName string) (*Store, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is empty")
	}
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := cli.Ping(pctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, fmt.Errorf("%w: %v", errs.ErrRemoteUnavailable, err)
	}
	return &Store{client: cli, coll: cli.Database(dbName).Collection(collName)}, nil
}

// Close disconnects a client opened by Connect.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Get loads the record of userID. Returns errs.ErrNotFound if there is none.
func (s *Store) Get(ctx context.Context, userID uuid.UUID) (*model.VaultRecord, error) {
	var doc vaultDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": userID.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &model.VaultRecord{
		UserID:        userID,
		EncryptedData: doc.EncryptedData,
		IV:            doc.IV,
		UpdatedAt:     doc.UpdatedAt.UTC(),
	}, nil
}

// Upsert writes rec over any previous record of the same user.
func (s *Store) Upsert(ctx context.Context, rec model.VaultRecord) error {
	if rec.UserID == uuid.Nil {
		return errors.New("vault record without user id")
	}
	_, err := s.coll.UpdateByID(ctx, rec.UserID.String(),
		bson.M{"$set": bson.M{
			"encrypted_data": rec.EncryptedData,
			"iv":             rec.IV,
			"updated_at":     rec.UpdatedAt,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}
