// Package boltstore keeps vault records in a local bbolt file, one key per user.
package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	bolt "go.etcd.io/bbolt"

	"github.com/lycheelock/lycheelock/internal/errs"
	"github.com/lycheelock/lycheelock/internal/model"
)

// VaultsBucket holds JSON-encoded VaultRecords keyed by user id bytes.
var VaultsBucket = []byte("vaults")

// Store implements VaultRepository on a bbolt database.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(VaultsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", VaultsBucket, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get reads the user's record.
func (s *Store) Get(ctx context.Context, userID uuid.UUID) (*model.VaultRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec model.VaultRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(VaultsBucket).Get(userID.Bytes())
		if raw == nil {
			return errs.ErrNotFound
		}
		return json.Unmarshal(raw, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Upsert replaces the user's record.
func (s *Store) Upsert(ctx context.Context, rec model.VaultRecord) error {
	if rec.UserID == uuid.Nil {
		return fmt.Errorf("validation: empty user id")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(VaultsBucket).Put(rec.UserID.Bytes(), raw)
	})
}
