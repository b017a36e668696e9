package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/sakif/cardauth/internal/apperror"
	"github.com/sakif/cardauth/internal/auth"
	"github.com/sakif/cardauth/internal/idgen"
	"github.com/sakif/cardauth/internal/model"
	"github.com/sakif/cardauth/internal/otp"
	"github.com/sakif/cardauth/internal/repository"
)

// BusinessSignupRequest starts a business (or institute) signup.
type BusinessSignupRequest struct {
	Name         string
	MobileNumber string
	Email        string
	PIN          string
	IsInstitute  bool
}

// NewBusiness is the input to BusinessService.Create. PINHash, when set,
// replaces PIN.
type NewBusiness struct {
	Name         string
	MobileNumber string
	Email        string
	PIN          string
	PINHash      string
	IsInstitute  bool
}

// BusinessAuth bundles a business with a freshly issued access token.
type BusinessAuth struct {
	Business *model.Business
	Token    string
}

// BusinessService manages tenants: signup, login and their 6-digit codes.
type BusinessService struct {
	businesses repository.BusinessRepository
	gen        *idgen.Generator
	signups    *SignupFlow
	pins       *auth.PINHasher
	tokens     *auth.TokenService
	logger     *slog.Logger
}

func NewBusinessService(
	businesses repository.BusinessRepository,
	gen *idgen.Generator,
	signups *SignupFlow,
	pins *auth.PINHasher,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *BusinessService {
	return &BusinessService{
		businesses: businesses,
		gen:        gen,
		signups:    signups,
		pins:       pins,
		tokens:     tokens,
		logger:     logger,
	}
}

func (s *BusinessService) normalize(in NewBusiness) (NewBusiness, error) {
	var err error
	if in.Name, err = normalizeName("name", in.Name); err != nil {
		return in, err
	}
	if in.MobileNumber, err = normalizeMobile(in.MobileNumber); err != nil {
		return in, err
	}
	if in.Email, err = normalizeEmail(in.Email); err != nil {
		return in, err
	}
	if in.PINHash == "" {
		if err := checkPIN(in.PIN); err != nil {
			return in, err
		}
	}
	return in, nil
}

func (s *BusinessService) ensureAvailable(ctx context.Context, mobile, email string) error {
	if _, err := s.businesses.GetBusinessByMobile(ctx, mobile); err == nil {
		return apperror.AlreadyRegistered("mobile number", mobile)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("service/business: %w", err)
	}

	if email == "" {
		return nil
	}
	if _, err := s.businesses.GetBusinessByEmail(ctx, email); err == nil {
		return apperror.AlreadyRegistered("email", email)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("service/business: %w", err)
	}
	return nil
}

// StartSignup parks the signup and sends an OTP.
func (s *BusinessService) StartSignup(ctx context.Context, req BusinessSignupRequest) error {
	in, err := s.normalize(NewBusiness{
		Name:         req.Name,
		MobileNumber: req.MobileNumber,
		Email:        req.Email,
		PIN:          req.PIN,
		IsInstitute:  req.IsInstitute,
	})
	if err != nil {
		return err
	}
	if err := s.ensureAvailable(ctx, in.MobileNumber, in.Email); err != nil {
		return err
	}

	hash, err := s.pins.Hash(in.PIN)
	if err != nil {
		return fmt.Errorf("service/business: %w", err)
	}

	return s.signups.Begin(ctx, &otp.Pending{
		Kind:         otp.KindBusiness,
		MobileNumber: in.MobileNumber,
		FullName:     in.Name,
		Email:        in.Email,
		PINHash:      hash,
		IsInstitute:  in.IsInstitute,
	})
}

// VerifySignup checks the OTP, creates the business and logs it in.
func (s *BusinessService) VerifySignup(ctx context.Context, mobile, code string) (*BusinessAuth, error) {
	mobile, err := normalizeMobile(mobile)
	if err != nil {
		return nil, err
	}

	p, err := s.signups.Confirm(ctx, otp.KindBusiness, mobile, code)
	if err != nil {
		return nil, err
	}

	business, err := s.Create(ctx, NewBusiness{
		Name:         p.FullName,
		MobileNumber: p.MobileNumber,
		Email:        p.Email,
		PINHash:      p.PINHash,
		IsInstitute:  p.IsInstitute,
	})
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			s.signups.Complete(ctx, otp.KindBusiness, mobile)
		}
		return nil, err
	}
	s.signups.Complete(ctx, otp.KindBusiness, mobile)

	return s.issue(business)
}

// Create registers a business under a freshly generated 6-digit code. A
// code lost to a concurrent writer is regenerated once.
func (s *BusinessService) Create(ctx context.Context, in NewBusiness) (*model.Business, error) {
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}
	if err := s.ensureAvailable(ctx, in.MobileNumber, in.Email); err != nil {
		return nil, err
	}

	hash := in.PINHash
	if hash == "" {
		if hash, err = s.pins.Hash(in.PIN); err != nil {
			return nil, fmt.Errorf("service/business: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		code, err := s.gen.Unique(ctx, idgen.BusinessCodeRange, s.businesses.BusinessCodeExists)
		if err != nil {
			return nil, err
		}

		business := &model.Business{
			Code:         strconv.FormatInt(code, 10),
			Name:         in.Name,
			Email:        in.Email,
			MobileNumber: in.MobileNumber,
			PINHash:      hash,
			IsInstitute:  in.IsInstitute,
		}

		err = s.businesses.CreateBusiness(ctx, business)
		if err == nil {
			s.logger.Info("business created",
				slog.String("businessID", business.Code),
				slog.String("name", business.Name),
				slog.Bool("institute", business.IsInstitute),
			)
			return business, nil
		}
		if errors.Is(err, apperror.ErrNumberCollision) && attempt == 0 {
			s.logger.Warn("business code taken, regenerating", slog.Int64("code", code))
			continue
		}
		if errors.Is(err, apperror.ErrConflict) || errors.Is(err, apperror.ErrNumberCollision) {
			return nil, err
		}
		return nil, fmt.Errorf("service/business: creating business: %w", err)
	}
}

// Login checks a business's mobile number and PIN.
func (s *BusinessService) Login(ctx context.Context, mobile, pin string) (*BusinessAuth, error) {
	mobile, err := normalizeMobile(mobile)
	if err != nil {
		return nil, apperror.Unauthorized("invalid mobile number or pin")
	}

	business, err := s.businesses.GetBusinessByMobile(ctx, mobile)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("invalid mobile number or pin")
		}
		return nil, fmt.Errorf("service/business: %w", err)
	}

	if err := s.pins.Verify(business.PINHash, pin); err != nil {
		if errors.Is(err, auth.ErrInvalidPIN) {
			return nil, apperror.Unauthorized("invalid mobile number or pin")
		}
		return nil, fmt.Errorf("service/business: %w", err)
	}
	if !business.Active {
		return nil, apperror.Forbidden("this business is inactive")
	}

	s.logger.Info("business logged in", slog.String("businessID", business.Code))
	return s.issue(business)
}

func (s *BusinessService) Get(ctx context.Context, code string) (*model.Business, error) {
	code, err := checkBusinessCode(code)
	if err != nil {
		return nil, err
	}
	return s.businesses.GetBusinessByCode(ctx, code)
}

func (s *BusinessService) issue(business *model.Business) (*BusinessAuth, error) {
	token, err := s.tokens.Generate(business.Code, auth.RoleBusiness)
	if err != nil {
		return nil, fmt.Errorf("service/business: generating token for %s: %w", business.Code, err)
	}
	return &BusinessAuth{Business: business, Token: token}, nil
}
