package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/sakif/cardauth/internal/apperror"
	"github.com/sakif/cardauth/internal/auth"
	"github.com/sakif/cardauth/internal/model"
	"github.com/sakif/cardauth/internal/notify"
	"github.com/sakif/cardauth/internal/otp"
)

// SignupRequest starts a member signup. ReferredBy is the business code or
// staff id that brought the member in, if any.
type SignupRequest struct {
	FullName     string
	MobileNumber string
	Email        string
	PIN          string
	ReferredBy   string
}

// MemberAuth bundles a member with a freshly issued access token.
type MemberAuth struct {
	Member *model.Member
	Token  string
}

// MemberService handles member self-signup, login and staff-added members.
// Card numbers and uniqueness are the Registry's business.
type MemberService struct {
	registry *Registry
	signups  *SignupFlow
	pins     *auth.PINHasher
	tokens   *auth.TokenService
	notifier notify.Notifier
	logger   *slog.Logger
}

func NewMemberService(
	registry *Registry,
	signups *SignupFlow,
	pins *auth.PINHasher,
	tokens *auth.TokenService,
	notifier notify.Notifier,
	logger *slog.Logger,
) *MemberService {
	return &MemberService{
		registry: registry,
		signups:  signups,
		pins:     pins,
		tokens:   tokens,
		notifier: notifier,
		logger:   logger,
	}
}

// StartSignup validates the request, rejects already registered mobile
// numbers and emails, and sends an OTP. Nothing is written to the database
// until VerifySignup.
func (s *MemberService) StartSignup(ctx context.Context, req SignupRequest) error {
	in, err := s.registry.normalize(NewMember{
		MobileNumber: req.MobileNumber,
		FullName:     req.FullName,
		Email:        req.Email,
		PIN:          req.PIN,
		CreatedBy:    req.ReferredBy,
	})
	if err != nil {
		return err
	}
	if err := s.registry.ensureAvailable(ctx, in.MobileNumber, in.Email); err != nil {
		return err
	}

	hash, err := s.pins.Hash(in.PIN)
	if err != nil {
		return fmt.Errorf("service/member: %w", err)
	}

	return s.signups.Begin(ctx, &otp.Pending{
		Kind:         otp.KindMember,
		MobileNumber: in.MobileNumber,
		FullName:     in.FullName,
		Email:        in.Email,
		PINHash:      hash,
		ReferredBy:   in.CreatedBy,
	})
}

// VerifySignup checks the OTP, creates the member and logs them in.
func (s *MemberService) VerifySignup(ctx context.Context, mobile, code string) (*MemberAuth, error) {
	mobile, err := normalizeMobile(mobile)
	if err != nil {
		return nil, err
	}

	p, err := s.signups.Confirm(ctx, otp.KindMember, mobile, code)
	if err != nil {
		return nil, err
	}

	member, err := s.registry.CreateMember(ctx, NewMember{
		MobileNumber: p.MobileNumber,
		FullName:     p.FullName,
		Email:        p.Email,
		PINHash:      p.PINHash,
		CreatedBy:    p.ReferredBy,
	})
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			s.signups.Complete(ctx, otp.KindMember, mobile)
		}
		return nil, err
	}
	s.signups.Complete(ctx, otp.KindMember, mobile)
	s.welcome(ctx, member)

	return s.issue(member)
}

// Login checks a member's mobile number and PIN. Unknown mobile numbers and
// wrong PINs get the same error.
func (s *MemberService) Login(ctx context.Context, mobile, pin string) (*MemberAuth, error) {
	member, err := s.registry.FindByMobile(ctx, mobile)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrValidation) {
			return nil, apperror.Unauthorized("invalid mobile number or pin")
		}
		return nil, fmt.Errorf("service/member: %w", err)
	}

	if err := s.pins.Verify(member.PINHash, pin); err != nil {
		if errors.Is(err, auth.ErrInvalidPIN) {
			return nil, apperror.Unauthorized("invalid mobile number or pin")
		}
		return nil, fmt.Errorf("service/member: %w", err)
	}
	if !member.Active {
		return nil, apperror.Forbidden("this account is inactive")
	}

	s.logger.Info("member logged in", slog.String("memberID", member.ID))
	return s.issue(member)
}

// AddMember registers a member directly, without an OTP round trip. actor
// (a staff id) is recorded as the referrer unless one was given.
func (s *MemberService) AddMember(ctx context.Context, actor string, in NewMember) (*model.Member, error) {
	if in.CreatedBy == "" {
		in.CreatedBy = actor
	}
	in.PINHash = ""

	member, err := s.registry.CreateMember(ctx, in)
	if err != nil {
		return nil, err
	}
	s.welcome(ctx, member)
	return member, nil
}

func (s *MemberService) Get(ctx context.Context, id string) (*model.Member, error) {
	return s.registry.Get(ctx, id)
}

func (s *MemberService) issue(member *model.Member) (*MemberAuth, error) {
	token, err := s.tokens.Generate(member.ID, auth.RoleMember)
	if err != nil {
		return nil, fmt.Errorf("service/member: generating token for %s: %w", member.ID, err)
	}
	return &MemberAuth{Member: member, Token: token}, nil
}

func (s *MemberService) welcome(ctx context.Context, member *model.Member) {
	if member.Email == "" {
		return
	}
	msg, err := notify.WelcomeMessage(member.FullName, member.Email, strconv.FormatInt(member.PrimaryCardNumber, 10))
	if err != nil {
		s.logger.Warn("could not render welcome email", slog.String("error", err.Error()))
		return
	}
	notifyBestEffort(ctx, s.notifier, s.logger, msg)
}
