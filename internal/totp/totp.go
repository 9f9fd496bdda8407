// Package totp implements RFC 6238 one-time codes used as the vault's second factor,
// plus provisioning helpers for authenticator apps.
package totp

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp"
	pqtotp "github.com/pquerna/otp/totp"
)

const (
	Step       = 30 * time.Second
	Digits     = 6
	secretSize = 20 // 160-bit, as RFC 4226 recommends for SHA-1
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

var opts = pqtotp.ValidateOpts{
	Period:    uint(Step / time.Second),
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// GenerateSecret returns a fresh base32 secret (no padding).
func GenerateSecret() (string, error) {
	raw := make([]byte, secretSize)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return b32.EncodeToString(raw), nil
}

// GenerateCode returns the 6-digit code for the step containing t.
func GenerateCode(secret string, t time.Time) (string, error) {
	return pqtotp.GenerateCodeCustom(secret, t, opts)
}

// VerifyCode reports whether code matches any step within ±window of t.
func VerifyCode(code, secret string, t time.Time, window uint) bool {
	_, ok := MatchStep(code, secret, t, window)
	return ok
}

// MatchStep is VerifyCode that also returns the matched time step (Unix time
// divided by Step), so callers can refuse a step they already accepted.
// Every candidate is computed and compared in constant time, so timing does
// not depend on where or how closely the code matched.
func MatchStep(code, secret string, t time.Time, window uint) (int64, bool) {
	code = strings.TrimSpace(code)
	valid := len(code) == Digits
	if !valid {
		// keep the work shape identical for malformed input
		code = strings.Repeat("x", Digits)
	}

	base := StepAt(t)
	match, step := 0, 0
	for i := -int64(window); i <= int64(window); i++ {
		candidate, err := GenerateCode(secret, t.Add(time.Duration(i)*Step))
		if err != nil {
			return 0, false
		}
		eq := subtle.ConstantTimeCompare([]byte(candidate), []byte(code))
		step = subtle.ConstantTimeSelect(eq, int(base+i), step)
		match |= eq
	}
	if !valid || match != 1 {
		return 0, false
	}
	return int64(step), true
}

// StepAt returns the time step containing t.
func StepAt(t time.Time) int64 {
	return t.Unix() / int64(Step/time.Second)
}

// ProvisioningURI formats the otpauth URI authenticator apps scan.
func ProvisioningURI(username, secret, issuer string) string {
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s",
		url.PathEscape(issuer), url.PathEscape(username), secret, url.QueryEscape(issuer))
}

// Enrollment bundles everything needed to add the account to an authenticator.
type Enrollment struct {
	Secret    string
	URI       string
	QRDataURL string
}

// NewEnrollment generates a secret and renders its provisioning URI and QR code.
func NewEnrollment(username, issuer string) (Enrollment, error) {
	secret, err := GenerateSecret()
	if err != nil {
		return Enrollment{}, err
	}
	return EnrollmentFor(username, secret, issuer)
}

// EnrollmentFor renders provisioning data for an existing secret.
func EnrollmentFor(username, secret, issuer string) (Enrollment, error) {
	uri := ProvisioningURI(username, secret, issuer)
	qr, err := RenderQR(uri)
	if err != nil {
		return Enrollment{}, err
	}
	return Enrollment{Secret: secret, URI: uri, QRDataURL: qr}, nil
}
