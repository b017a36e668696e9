package model

import (
	"fmt"
	"time"
)

// CardKind is the type of a secondary card in a mapping.
type CardKind string

const (
	CardKindPhysical CardKind = "physical"
	CardKindDigital  CardKind = "digital"
	CardKindPrepaid  CardKind = "prepaid"
)

// Valid reports whether k is one of the known card kinds.
func (k CardKind) Valid() bool {
	switch k {
	case CardKindPhysical, CardKindDigital, CardKindPrepaid:
		return true
	}
	return false
}

// PhysicalCard is a pre-minted card owned by one business. Issued flips to
// true exactly once, in the same transaction that records its mapping.
type PhysicalCard struct {
	ID           string    `json:"id"`
	CardNumber   int64     `json:"cardNumber,string"`
	BusinessCode string    `json:"businessId"`
	Issued       bool      `json:"issued"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CardMapping links a secondary card number to a member's primary card
// number. Mappings are append-only. BusinessCode is empty for a member's
// digital self-mapping.
type CardMapping struct {
	ID                  string    `json:"id"`
	BusinessCode        string    `json:"businessId,omitempty"`
	PrimaryCardNumber   int64     `json:"primaryCardNumber,string"`
	SecondaryCardNumber int64     `json:"secondaryCardNumber,string"`
	Kind                CardKind  `json:"cardType"`
	CreatedAt           time.Time `json:"createdAt"`
}

// ResolutionSource says which branch resolved a card number.
type ResolutionSource string

const (
	SourceMappedSecondary ResolutionSource = "mapped_secondary"
	SourceDirectPrimary   ResolutionSource = "direct_primary"
)

// UnresolvedReason says why a card number did not resolve.
type UnresolvedReason string

const (
	ReasonPhysicalCardUnmapped      UnresolvedReason = "physical_card_unmapped"
	ReasonNotAssociatedWithBusiness UnresolvedReason = "not_associated_with_business"
)

// Resolution is the outcome of resolving a presented card number within a
// business. Exactly one of Source or Reason is set, matching Resolved.
type Resolution struct {
	Resolved          bool             `json:"resolved"`
	CardNumber        int64            `json:"cardNumber,string"`
	PrimaryCardNumber int64            `json:"primaryCardNumber,omitempty,string"`
	Source            ResolutionSource `json:"source,omitempty"`
	Reason            UnresolvedReason `json:"reason,omitempty"`
}

// Resolved builds a successful resolution.
func Resolved(cardNumber, primary int64, source ResolutionSource) Resolution {
	return Resolution{Resolved: true, CardNumber: cardNumber, PrimaryCardNumber: primary, Source: source}
}

// Unresolved builds a negative resolution.
func Unresolved(cardNumber int64, reason UnresolvedReason) Resolution {
	return Resolution{CardNumber: cardNumber, Reason: reason}
}

func (r Resolution) String() string {
	if r.Resolved {
		return fmt.Sprintf("resolved(%d, %s)", r.PrimaryCardNumber, r.Source)
	}
	return fmt.Sprintf("unresolved(%d, %s)", r.CardNumber, r.Reason)
}

// IssuanceOutcome is the result tag of assigning a physical card.
type IssuanceOutcome string

const (
	OutcomeAssigned      IssuanceOutcome = "assigned"
	OutcomeAlreadyIssued IssuanceOutcome = "already_issued"
	OutcomeCardNotFound  IssuanceOutcome = "card_not_found"
)

// Issuance is returned by the card issuance workflow. PrimaryCardNumber is
// set for Assigned and AlreadyIssued; ExistingMember only for Assigned.
type Issuance struct {
	Outcome           IssuanceOutcome `json:"outcome"`
	CardNumber        int64           `json:"cardNumber,string"`
	PrimaryCardNumber int64           `json:"primaryCardNumber,omitempty,string"`
	ExistingMember    bool            `json:"existingMember"`
}

// MintResult reports a batch mint. Count may be lower than Requested when
// the generator ran out of attempts; that is not an error.
type MintResult struct {
	BusinessCode string          `json:"businessId"`
	Requested    int             `json:"requested"`
	Count        int             `json:"count"`
	Cards        []*PhysicalCard `json:"cards"`
}
