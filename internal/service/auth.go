// Package service contains the account provider: registration, password login,
// second-factor challenges and TOTP enrollment.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/lycheelock/lycheelock/internal/crypto"
	"github.com/lycheelock/lycheelock/internal/crypto/clientcrypto"
	"github.com/lycheelock/lycheelock/internal/errs"
	"github.com/lycheelock/lycheelock/internal/limiter"
	"github.com/lycheelock/lycheelock/internal/model"
	"github.com/lycheelock/lycheelock/internal/repository"
	"github.com/lycheelock/lycheelock/internal/totp"
)

// challengeAudience marks tokens that only prove a password check.
const challengeAudience = "second-factor"

// AuthService defines account operations.
type AuthService interface {
	// Register creates a new user with a hashed password and a fresh vault salt.
	Register(ctx context.Context, username, password string) (model.User, error)
	// Login applies rate limiting, checks the password and issues a second-factor challenge.
	Login(ctx context.Context, username, password, source string) (model.Challenge, model.User, error)
	// VerifySecondFactor redeems a challenge with a TOTP code.
	VerifySecondFactor(ctx context.Context, challenge, code, source string) (model.User, error)
	// BeginTotpEnrollment stores a pending secret and returns provisioning data.
	BeginTotpEnrollment(ctx context.Context, userID uuid.UUID) (totp.Enrollment, error)
	// ConfirmTotpEnrollment enables the pending secret once a code checks out.
	ConfirmTotpEnrollment(ctx context.Context, userID uuid.UUID, code string) error
}

// AuthConfig carries the tunables of AuthServiceImpl.
type AuthConfig struct {
	SignKey      []byte
	ChallengeTTL time.Duration
	Issuer       string
	TotpWindow   uint
	// Clock defaults to time.Now.
	Clock func() time.Time
}

type AuthServiceImpl struct {
	users repository.UserRepository
	lim   limiter.Limiter
	cfg   AuthConfig
	log   *zap.Logger
	now   func() time.Time
}

var _ AuthService = (*AuthServiceImpl)(nil)

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, lim limiter.Limiter, cfg AuthConfig, log *zap.Logger) *AuthServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &AuthServiceImpl{users: users, lim: lim, cfg: cfg, log: log, now: now}
}

// Register creates a new user record with per-user salts.
func (s *AuthServiceImpl) Register(ctx context.Context, username, password string) (model.User, error) {
	if username == "" || password == "" {
		return model.User{}, errors.New("empty username/password")
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return model.User{}, err
	}
	pwdHash, saltAuth, err := crypto.NewPasswordHash([]byte(password))
	if err != nil {
		return model.User{}, err
	}
	vaultSalt, err := clientcrypto.GenerateSalt()
	if err != nil {
		return model.User{}, err
	}

	u := model.User{
		ID:        uid,
		Username:  username,
		PwdHash:   pwdHash,
		SaltAuth:  saltAuth,
		VaultSalt: vaultSalt,
		CreatedAt: s.now().UTC(),
	}
	if err := s.users.Create(ctx, &u); err != nil {
		return model.User{}, err
	}
	s.log.Info("user registered", zap.String("user_id", uid.String()))
	return u, nil
}

// Login authenticates with rate limiting by (username, source).
func (s *AuthServiceImpl) Login(ctx context.Context, username, password, source string) (model.Challenge, model.User, error) {
	srcHash := limiter.HashSource(source)

	allowed, _, err := s.lim.Allow(ctx, username, srcHash)
	if err != nil {
		return model.Challenge{}, model.User{}, err
	}
	if !allowed {
		return model.Challenge{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil || !crypto.VerifyPassword([]byte(password), u.SaltAuth, u.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, username, srcHash); ferr == nil && blocked {
			return model.Challenge{}, model.User{}, errs.ErrRateLimited
		}
		// unknown user and wrong password look the same
		return model.Challenge{}, model.User{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, username, srcHash)

	ch, err := s.issueChallenge(u.ID)
	if err != nil {
		return model.Challenge{}, model.User{}, err
	}
	return ch, *u, nil
}

// issueChallenge creates a signed HS256 JWT proving the password step passed.
func (s *AuthServiceImpl) issueChallenge(userID uuid.UUID) (model.Challenge, error) {
	now := s.now()
	exp := now.Add(s.cfg.ChallengeTTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Audience:  jwt.ClaimStrings{challengeAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SignKey)
	if err != nil {
		return model.Challenge{}, err
	}
	return model.Challenge{Token: signed, ExpiresAt: exp}, nil
}

// parseChallenge validates signature, audience and expiry and returns the subject.
func (s *AuthServiceImpl) parseChallenge(token string) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.cfg.SignKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(challengeAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, errs.ErrUnauthorized
	}
	return id, nil
}

// VerifySecondFactor checks code for the user behind challenge. Attempts are
// limited per user id so a stolen challenge cannot brute-force the code, and
// each time step is accepted at most once per user so an observed code cannot
// be replayed inside its window.
func (s *AuthServiceImpl) VerifySecondFactor(ctx context.Context, challenge, code, source string) (model.User, error) {
	uid, err := s.parseChallenge(challenge)
	if err != nil {
		return model.User{}, err
	}
	subject := "totp:" + uid.String()
	srcHash := limiter.HashSource(source)

	allowed, _, err := s.lim.Allow(ctx, subject, srcHash)
	if err != nil {
		return model.User{}, err
	}
	if !allowed {
		return model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.User{}, errs.ErrUnauthorized
		}
		return model.User{}, err
	}
	if !u.TotpEnabled || u.TotpSecret == "" {
		return model.User{}, errs.ErrTotpNotEnrolled
	}

	ok, err := s.claimCode(ctx, u, code)
	if err != nil {
		return model.User{}, err
	}
	if !ok {
		if blocked, _, ferr := s.lim.Failure(ctx, subject, srcHash); ferr == nil && blocked {
			return model.User{}, errs.ErrRateLimited
		}
		s.log.Warn("second factor rejected", zap.String("user_id", uid.String()))
		return model.User{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, subject, srcHash)
	return *u, nil
}

// BeginTotpEnrollment replaces any pending secret with a fresh one. A confirmed
// secret is never replaced: that would let a password alone reset the second factor.
func (s *AuthServiceImpl) BeginTotpEnrollment(ctx context.Context, userID uuid.UUID) (totp.Enrollment, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return totp.Enrollment{}, err
	}
	if u.TotpEnabled {
		return totp.Enrollment{}, errs.ErrTotpAlreadyEnabled
	}
	enr, err := totp.NewEnrollment(u.Username, s.cfg.Issuer)
	if err != nil {
		return totp.Enrollment{}, err
	}
	if err := s.users.SetTotpSecret(ctx, userID, enr.Secret); err != nil {
		return totp.Enrollment{}, err
	}
	return enr, nil
}

// ConfirmTotpEnrollment enables the pending secret if code matches it.
func (s *AuthServiceImpl) ConfirmTotpEnrollment(ctx context.Context, userID uuid.UUID, code string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.TotpSecret == "" {
		return errs.ErrTotpNotEnrolled
	}
	ok, err := s.claimCode(ctx, u, code)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrUnauthorized
	}
	if err := s.users.EnableTotp(ctx, userID); err != nil {
		return err
	}
	s.log.Info("totp enabled", zap.String("user_id", userID.String()))
	return nil
}

// claimCode checks code against u's secret and records its step. A code from
// a step that is not newer than the last accepted one is refused.
func (s *AuthServiceImpl) claimCode(ctx context.Context, u *model.User, code string) (bool, error) {
	step, ok := totp.MatchStep(code, u.TotpSecret, s.now(), s.cfg.TotpWindow)
	if !ok {
		return false, nil
	}
	fresh, err := s.users.ClaimTotpStep(ctx, u.ID, step)
	if err != nil {
		return false, err
	}
	if !fresh {
		s.log.Warn("totp code reused", zap.String("user_id", u.ID.String()))
	}
	return fresh, nil
}
