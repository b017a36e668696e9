package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/cardauth/internal/apperror"
	"github.com/sakif/cardauth/internal/auth"
	"github.com/sakif/cardauth/internal/idgen"
	"github.com/sakif/cardauth/internal/model"
	"github.com/sakif/cardauth/internal/repository"
)

// NewMember is the input to Registry.CreateMember. Exactly one of PIN and
// PINHash is used: signups hash the PIN before parking it, so they pass the
// hash through.
type NewMember struct {
	MobileNumber string
	FullName     string
	Email        string
	PIN          string
	PINHash      string
	CreatedBy    string
}

// Registry owns primary cardholders: it validates them, allocates their
// primary card number and keeps mobile number and email unique.
type Registry struct {
	members repository.MemberRepository
	cards   repository.CardRepository
	gen     *idgen.Generator
	pins    *auth.PINHasher
	logger  *slog.Logger
}

func NewRegistry(
	members repository.MemberRepository,
	cards repository.CardRepository,
	gen *idgen.Generator,
	pins *auth.PINHasher,
	logger *slog.Logger,
) *Registry {
	return &Registry{
		members: members,
		cards:   cards,
		gen:     gen,
		pins:    pins,
		logger:  logger,
	}
}

// normalize validates in and returns a cleaned copy. The PIN is only
// checked when no hash was supplied.
func (r *Registry) normalize(in NewMember) (NewMember, error) {
	var err error
	if in.MobileNumber, err = normalizeMobile(in.MobileNumber); err != nil {
		return in, err
	}
	if in.FullName, err = normalizeName("full_name", in.FullName); err != nil {
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

// ensureAvailable rejects a mobile number or email that already belongs to a
// member. The UNIQUE constraints still decide races; this gives the common
// case a clean error before any work is done.
func (r *Registry) ensureAvailable(ctx context.Context, mobile, email string) error {
	if _, err := r.members.GetMemberByMobile(ctx, mobile); err == nil {
		return apperror.AlreadyRegistered("mobile number", mobile)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("service/registry: %w", err)
	}

	if email == "" {
		return nil
	}
	if _, err := r.members.GetMemberByEmail(ctx, email); err == nil {
		return apperror.AlreadyRegistered("email", email)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("service/registry: %w", err)
	}
	return nil
}

// CreateMember registers a primary cardholder with a freshly generated
// 16-digit primary card number that is unique across primary and physical
// cards. A number lost to a concurrent writer is regenerated once.
func (r *Registry) CreateMember(ctx context.Context, in NewMember) (*model.Member, error) {
	in, err := r.normalize(in)
	if err != nil {
		return nil, err
	}
	if err := r.ensureAvailable(ctx, in.MobileNumber, in.Email); err != nil {
		return nil, err
	}

	hash := in.PINHash
	if hash == "" {
		if hash, err = r.pins.Hash(in.PIN); err != nil {
			return nil, fmt.Errorf("service/registry: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		number, err := r.gen.Unique(ctx, idgen.CardNumberRange, r.cards.CardNumberExists)
		if err != nil {
			return nil, err
		}

		member := &model.Member{
			MobileNumber:      in.MobileNumber,
			Email:             in.Email,
			FullName:          in.FullName,
			PINHash:           hash,
			PrimaryCardNumber: number,
			CreatedBy:         in.CreatedBy,
		}

		err = r.members.CreateMember(ctx, member)
		if err == nil {
			r.logger.Info("member created",
				slog.String("memberID", member.ID),
				slog.String("mobile", member.MobileNumber),
				slog.String("createdBy", member.CreatedBy),
			)
			return member, nil
		}
		if errors.Is(err, apperror.ErrNumberCollision) && attempt == 0 {
			r.logger.Warn("primary card number taken, regenerating", slog.Int64("cardNumber", number))
			continue
		}
		if errors.Is(err, apperror.ErrConflict) || errors.Is(err, apperror.ErrNumberCollision) {
			return nil, err
		}
		return nil, fmt.Errorf("service/registry: creating member: %w", err)
	}
}

// FindByMobile returns the member registered under mobile.
func (r *Registry) FindByMobile(ctx context.Context, mobile string) (*model.Member, error) {
	mobile, err := normalizeMobile(mobile)
	if err != nil {
		return nil, err
	}
	return r.members.GetMemberByMobile(ctx, mobile)
}

// FindByCardNumber returns the member whose primary card number is n.
func (r *Registry) FindByCardNumber(ctx context.Context, n int64) (*model.Member, error) {
	if err := checkCardNumber(n); err != nil {
		return nil, err
	}
	return r.members.GetMemberByCardNumber(ctx, n)
}

func (r *Registry) Get(ctx context.Context, id string) (*model.Member, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "member id is required")
	}
	return r.members.GetMemberByID(ctx, id)
}
