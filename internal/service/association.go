package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakif/cardauth/internal/apperror"
	"github.com/sakif/cardauth/internal/repository"
)

// AssociationChecker answers whether a primary card number belongs to a
// member of a business. rewards.Client asks the upstream rewards service;
// LedgerAssociation answers from our own tables.
type AssociationChecker interface {
	IsAssociated(ctx context.Context, cardNumber int64, businessCode string) (bool, error)
}

// LedgerAssociation treats a member as associated with a business when the
// business registered them or already mapped a card to them.
type LedgerAssociation struct {
	members repository.MemberRepository
	cards   repository.CardRepository
}

var _ AssociationChecker = (*LedgerAssociation)(nil)

func NewLedgerAssociation(members repository.MemberRepository, cards repository.CardRepository) *LedgerAssociation {
	return &LedgerAssociation{members: members, cards: cards}
}

func (l *LedgerAssociation) IsAssociated(ctx context.Context, cardNumber int64, businessCode string) (bool, error) {
	member, err := l.members.GetMemberByCardNumber(ctx, cardNumber)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("service/association: %w", err)
	}
	if member.CreatedBy == businessCode {
		return true, nil
	}

	ok, err := l.cards.HasMappingForBusiness(ctx, cardNumber, businessCode)
	if err != nil {
		return false, fmt.Errorf("service/association: %w", err)
	}
	return ok, nil
}
