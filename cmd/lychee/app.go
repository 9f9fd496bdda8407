package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/lycheelock/lycheelock/internal/config"
	"github.com/lycheelock/lycheelock/internal/credstore"
	"github.com/lycheelock/lycheelock/internal/crypto/clientcrypto"
	"github.com/lycheelock/lycheelock/internal/errs"
	"github.com/lycheelock/lycheelock/internal/keyring"
	"github.com/lycheelock/lycheelock/internal/limiter"
	"github.com/lycheelock/lycheelock/internal/model"
	"github.com/lycheelock/lycheelock/internal/repository"
	"github.com/lycheelock/lycheelock/internal/repository/boltstore"
	"github.com/lycheelock/lycheelock/internal/repository/mongostore"
	"github.com/lycheelock/lycheelock/internal/repository/postgres"
	"github.com/lycheelock/lycheelock/internal/repository/s3store"
	"github.com/lycheelock/lycheelock/internal/service"
	"github.com/lycheelock/lycheelock/internal/session"
	"github.com/lycheelock/lycheelock/internal/vaultsync"
)

// Attempt limiting: 5 failures within 15 minutes block for 15 minutes.
const (
	limitWindow = 15 * time.Minute
	limitFails  = 5
	limitBlock  = 15 * time.Minute
)

var errUsage = errors.New("usage")

// backends are the remote services a command talks to.
type backends struct {
	auth    service.AuthService
	vaults  repository.VaultRepository
	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// connect opens the account database and the configured vault backend.
func connect(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backends, error) {
	db, err := postgres.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	b := &backends{closers: []func(){db.Close}}

	var lim limiter.Limiter
	switch cfg.Limiter {
	case config.LimiterMemory:
		lim = limiter.NewMemory(limitWindow, limitFails, limitBlock)
	default:
		lim = limiter.NewPG(db.Pool, limitWindow, limitFails, limitBlock)
	}

	b.vaults, err = openVaults(ctx, cfg, db, b)
	if err != nil {
		b.close()
		return nil, err
	}

	// Challenges never outlive the process, so an ephemeral key is enough.
	signKey := []byte(cfg.SigningKey)
	if len(signKey) == 0 {
		if signKey, err = clientcrypto.Rand(32); err != nil {
			b.close()
			return nil, err
		}
	}
	b.auth = service.NewAuthService(postgres.NewUserRepo(db), lim, service.AuthConfig{
		SignKey:      signKey,
		ChallengeTTL: cfg.ChallengeTTL,
		Issuer:       cfg.Issuer,
		TotpWindow:   cfg.TotpWindow,
	}, log)

	log.Debug("backends ready",
		zap.String("vault_backend", cfg.Backend),
		zap.String("limiter", cfg.Limiter))
	return b, nil
}

func openVaults(ctx context.Context, cfg *config.Config, db *postgres.DB, b *backends) (repository.VaultRepository, error) {
	switch cfg.Backend {
	case config.BackendS3:
		cli, err := s3store.NewClient(ctx, cfg.S3Options())
		if err != nil {
			return nil, fmt.Errorf("s3: %w", err)
		}
		return s3store.New(cli, cfg.S3Bucket, cfg.S3Prefix), nil
	case config.BackendMongo:
		st, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		b.closers = append(b.closers, func() { _ = st.Close(context.Background()) })
		return st, nil
	case config.BackendBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.BoltPath), 0o700); err != nil {
			return nil, err
		}
		st, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("bolt: %w", err)
		}
		b.closers = append(b.closers, func() { _ = st.Close() })
		return st, nil
	default:
		return postgres.NewVaultRepo(db), nil
	}
}

// app runs commands against already connected backends.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	auth   service.AuthService
	vaults repository.VaultRepository
	out    io.Writer
	errOut io.Writer
	secret func(label string) (string, error)
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		return a.cmdRegister(ctx, args)
	case "enroll":
		return a.cmdEnroll(ctx, args)
	case "forget":
		return a.cmdForget(args)
	case "list":
		return a.cmdList(ctx, args)
	case "show":
		return a.cmdShow(ctx, args)
	case "add":
		return a.cmdAdd(ctx, args)
	case "edit":
		return a.cmdEdit(ctx, args)
	case "rm":
		return a.cmdRemove(ctx, args)
	default:
		return errUsage
	}
}

// remote runs one backend step under its own OpTimeout. Prompts run between
// steps on the caller's context and are never timed.
func (a *app) remote(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.OpTimeout)
	defer cancel()
	return fn(ctx)
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

// password returns the remembered password for username or asks for it.
func (a *app) password(username string) (string, error) {
	if pw, err := keyring.GetPassword(username); err == nil {
		return pw, nil
	}
	return a.secret("Password: ")
}

// vault is an unlocked, loaded vault for the duration of one command.
type vault struct {
	sess  *session.Session
	store *credstore.Store
	sync  *vaultsync.Engine
	unsub func()
}

// close logs out, which wipes the master key and empties the store.
func (v *vault) close() {
	v.sess.Logout()
	v.unsub()
}

// openVault logs in, asks for the second factor, unlocks and loads the vault.
func (a *app) openVault(ctx context.Context, username string, remember bool) (*vault, error) {
	pw, err := a.password(username)
	if err != nil {
		return nil, err
	}
	var (
		ch model.Challenge
		u  model.User
	)
	err = a.remote(ctx, func(ctx context.Context) (err error) {
		ch, u, err = a.auth.Login(ctx, username, pw, a.cfg.Source)
		return err
	})
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			_ = keyring.DeletePassword(username)
		}
		return nil, err
	}

	store := credstore.New()
	sess := session.New(a.auth, a.cfg.KDFParams(), a.log)
	v := &vault{
		sess:  sess,
		store: store,
		unsub: sess.Subscribe(func(st session.State) {
			if st == session.Unauthenticated {
				store.Reset()
			}
		}),
	}

	ident := session.Identity{UserID: u.ID, Username: u.Username, Salt: u.VaultSalt}
	if err := sess.Authenticate(ident, ch.Token); err != nil {
		v.close()
		return nil, err
	}
	code, err := a.secret("Authenticator code: ")
	if err != nil {
		v.close()
		return nil, err
	}
	err = a.remote(ctx, func(ctx context.Context) error {
		return sess.Unlock(ctx, pw, code, a.cfg.Source)
	})
	if err != nil {
		v.close()
		return nil, err
	}
	if remember {
		if err := keyring.SavePassword(username, pw); err != nil {
			a.log.Warn("keyring unavailable", zap.Error(err))
		}
	}

	v.sync = vaultsync.New(store, sess, a.vaults, a.log)
	if err := a.remote(ctx, v.sync.Load); err != nil {
		v.close()
		return nil, err
	}
	return v, nil
}
