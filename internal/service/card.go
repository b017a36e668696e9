// Package service holds the business rules between the HTTP handlers and the
// repositories:
//
//	Handler (HTTP) → Service (rules, retries, logging) → Repository (SQLite)
//
// Services return apperror values for anything the caller can act on and
// wrap everything else.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/cardauth/internal/apperror"
	"github.com/sakif/cardauth/internal/idgen"
	"github.com/sakif/cardauth/internal/model"
	"github.com/sakif/cardauth/internal/repository"
)

// MaxMintBatch is the largest batch MintBatch accepts.
const MaxMintBatch = 100

// AssignRequest is the input to AssignCard. FullName and PIN are only
// needed when no member is registered under MobileNumber yet.
type AssignRequest struct {
	BusinessCode string
	CardNumber   int64
	MobileNumber string
	FullName     string
	Email        string
	PIN          string
}

// MapRequest links SecondaryCardNumber to an existing primary card.
// BusinessCode is required for physical cards.
type MapRequest struct {
	PrimaryCardNumber   int64
	SecondaryCardNumber int64
	Kind                model.CardKind
	BusinessCode        string
}

// CardService runs the card pool, the mapping ledger, card resolution and
// physical card issuance.
type CardService struct {
	cards      repository.CardRepository
	businesses repository.BusinessRepository
	registry   *Registry
	assoc      AssociationChecker
	gen        *idgen.Generator
	logger     *slog.Logger
}

func NewCardService(
	cards repository.CardRepository,
	businesses repository.BusinessRepository,
	registry *Registry,
	assoc AssociationChecker,
	gen *idgen.Generator,
	logger *slog.Logger,
) *CardService {
	return &CardService{
		cards:      cards,
		businesses: businesses,
		registry:   registry,
		assoc:      assoc,
		gen:        gen,
		logger:     logger,
	}
}

func (s *CardService) requireBusiness(ctx context.Context, code string) (string, error) {
	code, err := checkBusinessCode(code)
	if err != nil {
		return "", err
	}
	if _, err := s.businesses.GetBusinessByCode(ctx, code); err != nil {
		return "", err
	}
	return code, nil
}

// =========================================================================
// CARD POOL
// =========================================================================

// MintBatch creates up to count unissued physical cards for a business. The
// result may hold fewer cards than requested when the generator runs out of
// attempts; that is reported through Count, not as an error.
func (s *CardService) MintBatch(ctx context.Context, businessCode string, count int) (*model.MintResult, error) {
	if count < 1 || count > MaxMintBatch {
		return nil, apperror.ValidationFailed("count", fmt.Sprintf("count must be between 1 and %d", MaxMintBatch))
	}
	businessCode, err := s.requireBusiness(ctx, businessCode)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		numbers, err := s.gen.Batch(ctx, idgen.CardNumberRange, count, s.cards.CardNumberExists)
		if err != nil {
			return nil, fmt.Errorf("service/card: generating card numbers: %w", err)
		}

		cards := make([]*model.PhysicalCard, 0, len(numbers))
		for _, n := range numbers {
			cards = append(cards, &model.PhysicalCard{CardNumber: n, BusinessCode: businessCode})
		}

		if len(cards) > 0 {
			err = s.cards.InsertPhysicalCards(ctx, cards)
			if errors.Is(err, apperror.ErrNumberCollision) && attempt == 0 {
				s.logger.Warn("card number taken during mint, regenerating batch",
					slog.String("businessID", businessCode),
					slog.Int("count", count),
				)
				continue
			}
			if err != nil {
				if errors.Is(err, apperror.ErrNumberCollision) {
					return nil, err
				}
				return nil, fmt.Errorf("service/card: minting cards: %w", err)
			}
		}

		if len(cards) < count {
			s.logger.Warn("mint produced fewer cards than requested",
				slog.String("businessID", businessCode),
				slog.Int("requested", count),
				slog.Int("minted", len(cards)),
			)
		} else {
			s.logger.Info("physical cards minted",
				slog.String("businessID", businessCode),
				slog.Int("count", len(cards)),
			)
		}

		return &model.MintResult{
			BusinessCode: businessCode,
			Requested:    count,
			Count:        len(cards),
			Cards:        cards,
		}, nil
	}
}

// FindPhysicalCard returns the card only if it belongs to businessCode.
func (s *CardService) FindPhysicalCard(ctx context.Context, cardNumber int64, businessCode string) (*model.PhysicalCard, error) {
	if err := checkCardNumber(cardNumber); err != nil {
		return nil, err
	}
	businessCode, err := checkBusinessCode(businessCode)
	if err != nil {
		return nil, err
	}
	return s.cards.GetPhysicalCard(ctx, cardNumber, businessCode)
}

func (s *CardService) ListPhysicalCards(ctx context.Context, businessCode string) ([]*model.PhysicalCard, error) {
	businessCode, err := s.requireBusiness(ctx, businessCode)
	if err != nil {
		return nil, err
	}
	return s.cards.ListPhysicalCards(ctx, businessCode)
}

// =========================================================================
// MAPPING LEDGER
// =========================================================================

func (s *CardService) ListMappings(ctx context.Context, businessCode string) ([]*model.CardMapping, error) {
	businessCode, err := s.requireBusiness(ctx, businessCode)
	if err != nil {
		return nil, err
	}
	return s.cards.ListMappingsByBusiness(ctx, businessCode)
}

// MapCard records that a secondary card belongs to an existing primary card.
// Physical cards must come from the named business's pool and go through
// the same atomic issue step as AssignCard. Other kinds may not reuse a
// number that is already a primary or physical card.
func (s *CardService) MapCard(ctx context.Context, req MapRequest) (*model.CardMapping, error) {
	if !req.Kind.Valid() {
		return nil, apperror.ValidationFailed("card_type", "card type must be physical, digital or prepaid")
	}
	if err := checkCardNumber(req.SecondaryCardNumber); err != nil {
		return nil, apperror.ValidationFailed("secondary_card_number", "secondary card number is required")
	}
	if req.PrimaryCardNumber == req.SecondaryCardNumber {
		return nil, apperror.ValidationFailed("secondary_card_number", "a card cannot be mapped to itself")
	}
	if _, err := s.registry.FindByCardNumber(ctx, req.PrimaryCardNumber); err != nil {
		return nil, err
	}

	if req.BusinessCode != "" || req.Kind == model.CardKindPhysical {
		code, err := s.requireBusiness(ctx, req.BusinessCode)
		if err != nil {
			return nil, err
		}
		req.BusinessCode = code
	}

	mapping := &model.CardMapping{
		BusinessCode:        req.BusinessCode,
		PrimaryCardNumber:   req.PrimaryCardNumber,
		SecondaryCardNumber: req.SecondaryCardNumber,
		Kind:                req.Kind,
	}

	if req.Kind == model.CardKindPhysical {
		if _, err := s.cards.GetPhysicalCard(ctx, req.SecondaryCardNumber, req.BusinessCode); err != nil {
			return nil, err
		}
		if err := s.cards.IssuePhysicalCard(ctx, mapping); err != nil {
			return nil, err
		}
	} else {
		taken, err := s.cards.CardNumberExists(ctx, req.SecondaryCardNumber)
		if err != nil {
			return nil, fmt.Errorf("service/card: %w", err)
		}
		if taken {
			return nil, apperror.Conflict("card number", fmt.Sprint(req.SecondaryCardNumber))
		}
		if err := s.cards.CreateMapping(ctx, mapping); err != nil {
			return nil, err
		}
	}

	s.logger.Info("card mapped",
		slog.Int64("primary", mapping.PrimaryCardNumber),
		slog.Int64("secondary", mapping.SecondaryCardNumber),
		slog.String("cardType", string(mapping.Kind)),
		slog.String("businessID", mapping.BusinessCode),
	)
	return mapping, nil
}

// =========================================================================
// RESOLUTION
// =========================================================================

// Resolve maps a presented card number to a member's primary card number
// within a business. The business's own physical cards take precedence; any
// other number is accepted as a primary card only if the member is
// associated with the business. Failing to reach the association source is
// an error, not a negative answer.
func (s *CardService) Resolve(ctx context.Context, cardNumber int64, businessCode string) (model.Resolution, error) {
	if err := checkCardNumber(cardNumber); err != nil {
		return model.Resolution{}, err
	}
	businessCode, err := checkBusinessCode(businessCode)
	if err != nil {
		return model.Resolution{}, err
	}

	_, err = s.cards.GetPhysicalCard(ctx, cardNumber, businessCode)
	switch {
	case err == nil:
		mapping, err := s.cards.GetMappingBySecondary(ctx, cardNumber)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return model.Unresolved(cardNumber, model.ReasonPhysicalCardUnmapped), nil
			}
			return model.Resolution{}, fmt.Errorf("service/card: resolving %d: %w", cardNumber, err)
		}
		return model.Resolved(cardNumber, mapping.PrimaryCardNumber, model.SourceMappedSecondary), nil
	case !errors.Is(err, apperror.ErrNotFound):
		return model.Resolution{}, fmt.Errorf("service/card: resolving %d: %w", cardNumber, err)
	}

	ok, err := s.assoc.IsAssociated(ctx, cardNumber, businessCode)
	if err != nil {
		return model.Resolution{}, fmt.Errorf("service/card: checking association of %d with %s: %w", cardNumber, businessCode, err)
	}
	if !ok {
		return model.Unresolved(cardNumber, model.ReasonNotAssociatedWithBusiness), nil
	}
	return model.Resolved(cardNumber, cardNumber, model.SourceDirectPrimary), nil
}

// =========================================================================
// ISSUANCE
// =========================================================================

// AssignCard hands a business's unissued physical card to the member
// registered under the given mobile number, registering them first if
// needed. Issuing is idempotent per card: once issued, every later call
// reports AlreadyIssued with the original primary card number.
func (s *CardService) AssignCard(ctx context.Context, req AssignRequest) (*model.Issuance, error) {
	if err := checkCardNumber(req.CardNumber); err != nil {
		return nil, err
	}
	code, err := checkBusinessCode(req.BusinessCode)
	if err != nil {
		return nil, err
	}
	mobile, err := normalizeMobile(req.MobileNumber)
	if err != nil {
		return nil, err
	}

	notFound := &model.Issuance{Outcome: model.OutcomeCardNotFound, CardNumber: req.CardNumber}

	if _, err := s.cards.GetPhysicalCard(ctx, req.CardNumber, code); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return notFound, nil
		}
		return nil, fmt.Errorf("service/card: %w", err)
	}

	if issued, err := s.alreadyIssued(ctx, req.CardNumber); err != nil || issued != nil {
		return issued, err
	}

	member, existing, err := s.memberFor(ctx, code, mobile, req)
	if err != nil {
		return nil, err
	}

	err = s.cards.IssuePhysicalCard(ctx, &model.CardMapping{
		BusinessCode:        code,
		PrimaryCardNumber:   member.PrimaryCardNumber,
		SecondaryCardNumber: req.CardNumber,
		Kind:                model.CardKindPhysical,
	})
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			// Lost the race to another issuer.
			if issued, err := s.alreadyIssued(ctx, req.CardNumber); err != nil || issued != nil {
				return issued, err
			}
		}
		return nil, fmt.Errorf("service/card: issuing %d: %w", req.CardNumber, err)
	}

	s.logger.Info("physical card issued",
		slog.Int64("cardNumber", req.CardNumber),
		slog.Int64("primary", member.PrimaryCardNumber),
		slog.String("businessID", code),
		slog.Bool("existingMember", existing),
	)

	return &model.Issuance{
		Outcome:           model.OutcomeAssigned,
		CardNumber:        req.CardNumber,
		PrimaryCardNumber: member.PrimaryCardNumber,
		ExistingMember:    existing,
	}, nil
}

// alreadyIssued returns an AlreadyIssued result if the card has a mapping,
// or nil if it does not.
func (s *CardService) alreadyIssued(ctx context.Context, cardNumber int64) (*model.Issuance, error) {
	mapping, err := s.cards.GetMappingBySecondary(ctx, cardNumber)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("service/card: %w", err)
	}
	return &model.Issuance{
		Outcome:           model.OutcomeAlreadyIssued,
		CardNumber:        cardNumber,
		PrimaryCardNumber: mapping.PrimaryCardNumber,
	}, nil
}

// memberFor finds the member by mobile number or registers a new one on
// behalf of the business. The bool reports whether the member existed.
func (s *CardService) memberFor(ctx context.Context, businessCode, mobile string, req AssignRequest) (*model.Member, bool, error) {
	member, err := s.registry.FindByMobile(ctx, mobile)
	if err == nil {
		return member, true, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, false, fmt.Errorf("service/card: %w", err)
	}

	if req.PIN == "" || req.FullName == "" {
		return nil, false, apperror.ValidationFailed("full_name", "full name and pin are required to register a new member")
	}

	member, err = s.registry.CreateMember(ctx, NewMember{
		MobileNumber: mobile,
		FullName:     req.FullName,
		Email:        req.Email,
		PIN:          req.PIN,
		CreatedBy:    businessCode,
	})
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			// Registered concurrently under the same mobile.
			if member, err := s.registry.FindByMobile(ctx, mobile); err == nil {
				return member, true, nil
			}
		}
		return nil, false, err
	}
	return member, false, nil
}
