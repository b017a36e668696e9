package auth

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// OTPIssuer produces the 6-digit codes sent during signup. Each pending
// signup gets its own TOTP secret; the code is derived from that secret and
// the current time window, so nothing but the secret needs storing.
type OTPIssuer struct {
	period time.Duration
	now    func() time.Time
}

// NewOTPIssuer returns an issuer whose codes stay valid for period (one
// window either side is accepted to absorb clock skew at the boundary).
func NewOTPIssuer(period time.Duration) *OTPIssuer {
	if period <= 0 {
		period = 5 * time.Minute
	}
	return &OTPIssuer{period: period, now: time.Now}
}

func (o *OTPIssuer) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(o.period / time.Second),
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// NewSecret creates a fresh secret for account (a mobile number).
func (o *OTPIssuer) NewSecret(account string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      uint(o.period / time.Second),
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return "", fmt.Errorf("auth: generating otp secret: %w", err)
	}
	return key.Secret(), nil
}

// Code returns the current code for secret.
func (o *OTPIssuer) Code(secret string) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, o.now(), o.opts())
	if err != nil {
		return "", fmt.Errorf("auth: generating otp code: %w", err)
	}
	return code, nil
}

// Valid reports whether code matches secret in the current window.
func (o *OTPIssuer) Valid(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, o.now(), o.opts())
	return err == nil && ok
}
