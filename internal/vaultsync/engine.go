// Package vaultsync moves the credential collection between the local store
// and the remote vault record, encrypting on the way out and decrypting on the
// way in.
package vaultsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lycheelock/lycheelock/internal/credstore"
	"github.com/lycheelock/lycheelock/internal/crypto/clientcrypto"
	"github.com/lycheelock/lycheelock/internal/errs"
	"github.com/lycheelock/lycheelock/internal/model"
	"github.com/lycheelock/lycheelock/internal/repository"
	"github.com/lycheelock/lycheelock/internal/session"
)

// CredentialsSource yields the current user id and master key.
// *session.Session implements it.
type CredentialsSource interface {
	Credentials() (session.Credentials, error)
}

// Engine runs Load and Save one at a time against a single store.
type Engine struct {
	store *credstore.Store
	creds CredentialsSource
	repo  repository.VaultRepository
	log   *zap.Logger
	now   func() time.Time

	slot chan struct{} // single-slot operation queue
}

// New constructs an engine.
func New(store *credstore.Store, creds CredentialsSource, repo repository.VaultRepository, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store: store,
		creds: creds,
		repo:  repo,
		log:   log,
		now:   time.Now,
		slot:  make(chan struct{}, 1),
	}
}

func (e *Engine) acquire(ctx context.Context) error {
	select {
	case e.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) release() { <-e.slot }

// Load fetches the remote record, decrypts it and replaces the store contents.
// A missing or empty record yields an empty vault. On decryption failure the
// store is cleared. On remote failure entries are left as they were.
func (e *Engine) Load(ctx context.Context) error {
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	c, err := e.creds.Credentials()
	if err != nil {
		e.store.Fail(errs.ErrNotAuthenticated)
		return errs.ErrNotAuthenticated
	}

	start := e.now()
	restore := e.store.StartLoading()

	rec, err := e.repo.Get(ctx, c.UserID)
	if ctxErr := ctx.Err(); ctxErr != nil {
		restore()
		return ctxErr
	}
	switch {
	case errors.Is(err, errs.ErrNotFound):
		rec = nil
	case err != nil:
		return e.fail(fmt.Errorf("%w: %v", errs.ErrRemoteUnavailable, err))
	}

	entries := []model.PasswordEntry{}
	if !rec.Empty() {
		if err := e.decrypt(rec, c.Key, &entries); err != nil {
			if errors.Is(err, errs.ErrNotAuthenticated) {
				return e.fail(err)
			}
			e.store.FailClosed(err)
			e.log.Warn("vault decryption failed", zap.String("user_id", c.UserID.String()))
			return err
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		restore()
		return ctxErr
	}
	e.store.Replace(entries)
	e.log.Info("vault loaded",
		zap.String("user_id", c.UserID.String()),
		zap.Int("entries", len(entries)),
		zap.Duration("took", e.now().Sub(start)))
	return nil
}

func (e *Engine) decrypt(rec *model.VaultRecord, key *clientcrypto.MasterKey, out *[]model.PasswordEntry) error {
	blob, err := clientcrypto.DecodeBlob(rec.EncryptedData, rec.IV)
	if err != nil {
		return errs.ErrDecryptionFailed
	}
	var decoded []model.PasswordEntry
	if err := clientcrypto.Decrypt(blob, key, &decoded); err != nil {
		if errors.Is(err, clientcrypto.ErrKeyDestroyed) {
			return errs.ErrNotAuthenticated
		}
		return errs.ErrDecryptionFailed
	}
	if decoded != nil {
		*out = decoded
	}
	return nil
}

// Save encrypts the whole current collection and overwrites the remote record.
// Last write wins: nothing is re-read or merged.
func (e *Engine) Save(ctx context.Context) error {
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	c, err := e.creds.Credentials()
	if err != nil {
		e.store.Fail(errs.ErrNotAuthenticated)
		return errs.ErrNotAuthenticated
	}

	start := e.now()
	restore := e.store.StartLoading()

	entries := e.store.Entries()
	blob, err := clientcrypto.Encrypt(entries, c.Key)
	if err != nil {
		if errors.Is(err, clientcrypto.ErrKeyDestroyed) {
			return e.fail(errs.ErrNotAuthenticated)
		}
		return e.fail(err)
	}
	ct, iv := blob.Encode()

	if ctxErr := ctx.Err(); ctxErr != nil {
		restore()
		return ctxErr
	}
	err = e.repo.Upsert(ctx, model.VaultRecord{
		UserID:        c.UserID,
		EncryptedData: ct,
		IV:            iv,
		UpdatedAt:     e.now().UTC(),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			restore()
			return ctxErr
		}
		return e.fail(fmt.Errorf("%w: %v", errs.ErrRemoteUnavailable, err))
	}

	e.store.Done()
	e.log.Info("vault saved",
		zap.String("user_id", c.UserID.String()),
		zap.Int("entries", len(entries)),
		zap.Duration("took", e.now().Sub(start)))
	return nil
}

func (e *Engine) fail(err error) error {
	e.store.Fail(err)
	e.log.Warn("vault sync failed", zap.Error(err))
	return err
}
