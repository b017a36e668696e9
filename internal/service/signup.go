package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/cardauth/internal/apperror"
	"github.com/sakif/cardauth/internal/auth"
	"github.com/sakif/cardauth/internal/notify"
	"github.com/sakif/cardauth/internal/otp"
)

const (
	DefaultOTPTTL         = 5 * time.Minute
	DefaultMaxOTPAttempts = 5
)

// SignupFlow is the OTP step shared by member and business signup: park the
// signup, send a code, and hand the parked data back once the code checks
// out.
type SignupFlow struct {
	store       otp.Store
	codes       *auth.OTPIssuer
	notifier    notify.Notifier
	ttl         time.Duration
	maxAttempts int64
	logger      *slog.Logger
}

func NewSignupFlow(store otp.Store, codes *auth.OTPIssuer, notifier notify.Notifier, ttl time.Duration, logger *slog.Logger) *SignupFlow {
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}
	return &SignupFlow{
		store:       store,
		codes:       codes,
		notifier:    notifier,
		ttl:         ttl,
		maxAttempts: DefaultMaxOTPAttempts,
		logger:      logger,
	}
}

// Begin stores p (replacing an earlier pending signup for the same mobile)
// and sends the code. Delivery failures are logged, not returned: the user
// can ask for a new code.
func (f *SignupFlow) Begin(ctx context.Context, p *otp.Pending) error {
	secret, err := f.codes.NewSecret(p.MobileNumber)
	if err != nil {
		return fmt.Errorf("service/signup: %w", err)
	}
	p.Secret = secret
	p.CreatedAt = time.Now().UTC()

	if err := f.store.Put(ctx, p, f.ttl); err != nil {
		return fmt.Errorf("service/signup: %w", err)
	}

	code, err := f.codes.Code(secret)
	if err != nil {
		return fmt.Errorf("service/signup: %w", err)
	}

	msgs, err := notify.OTPMessages(p.FullName, p.MobileNumber, p.Email, code, f.ttl)
	if err != nil {
		return fmt.Errorf("service/signup: %w", err)
	}
	for _, msg := range msgs {
		if err := f.notifier.Notify(ctx, msg); err != nil {
			f.logger.Warn("otp delivery not queued",
				slog.String("channel", string(msg.Channel)),
				slog.String("mobile", p.MobileNumber),
				slog.String("error", err.Error()),
			)
		}
	}

	f.logger.Info("signup otp issued",
		slog.String("kind", string(p.Kind)),
		slog.String("mobile", p.MobileNumber),
	)
	return nil
}

// Confirm checks code against the pending signup and returns it. The entry
// stays in place until Complete so a failed account creation can be retried
// with the same code.
func (f *SignupFlow) Confirm(ctx context.Context, kind otp.Kind, mobile, code string) (*otp.Pending, error) {
	if code == "" {
		return nil, apperror.ValidationFailed("otp", "otp is required")
	}

	p, err := f.store.Get(ctx, kind, mobile)
	if err != nil {
		if errors.Is(err, otp.ErrNotFound) {
			return nil, apperror.ValidationFailed("otp", "no pending signup for this mobile number, or it has expired")
		}
		return nil, fmt.Errorf("service/signup: %w", err)
	}

	n, err := f.store.Attempt(ctx, kind, mobile)
	if err != nil {
		return nil, fmt.Errorf("service/signup: %w", err)
	}
	if n > f.maxAttempts {
		f.Complete(ctx, kind, mobile)
		return nil, apperror.ValidationFailed("otp", "too many attempts, please sign up again")
	}

	if !f.codes.Valid(p.Secret, code) {
		return nil, apperror.ValidationFailed("otp", "invalid OTP")
	}
	return p, nil
}

// Complete discards the pending signup.
func (f *SignupFlow) Complete(ctx context.Context, kind otp.Kind, mobile string) {
	if err := f.store.Delete(ctx, kind, mobile); err != nil {
		f.logger.Warn("could not clear pending signup",
			slog.String("mobile", mobile),
			slog.String("error", err.Error()),
		)
	}
}

// notifyBestEffort sends msg and only logs failures.
func notifyBestEffort(ctx context.Context, n notify.Notifier, logger *slog.Logger, msg notify.Message) {
	if msg.To == "" {
		return
	}
	if err := n.Notify(ctx, msg); err != nil {
		logger.Warn("notification not queued",
			slog.String("channel", string(msg.Channel)),
			slog.String("to", msg.To),
			slog.String("error", err.Error()),
		)
	}
}
