// Package repository declares the storage contracts the service layer
// depends on. Lookups that find nothing return an error wrapping
// apperror.ErrNotFound. Writes that lose a uniqueness race on a generated
// number return apperror.ErrNumberCollision; duplicate natural keys
// (mobile number, email, secondary card) return apperror.ErrConflict.
package repository

import (
	"context"

	"github.com/sakif/cardauth/internal/model"
)

type MemberRepository interface {
	// CreateMember stores the member, reserves its primary card number and
	// records its digital self-mapping in one transaction.
	CreateMember(ctx context.Context, member *model.Member) error
	GetMemberByID(ctx context.Context, id string) (*model.Member, error)
	GetMemberByMobile(ctx context.Context, mobile string) (*model.Member, error)
	GetMemberByEmail(ctx context.Context, email string) (*model.Member, error)
	GetMemberByCardNumber(ctx context.Context, primary int64) (*model.Member, error)
}

type BusinessRepository interface {
	CreateBusiness(ctx context.Context, business *model.Business) error
	GetBusinessByCode(ctx context.Context, code string) (*model.Business, error)
	GetBusinessByMobile(ctx context.Context, mobile string) (*model.Business, error)
	GetBusinessByEmail(ctx context.Context, email string) (*model.Business, error)
	BusinessCodeExists(ctx context.Context, code int64) (bool, error)
}

type CardRepository interface {
	// CardNumberExists checks the unified index of physical, primary and
	// mapped digital or prepaid card numbers.
	CardNumberExists(ctx context.Context, number int64) (bool, error)
	// InsertPhysicalCards stores the whole batch or nothing.
	InsertPhysicalCards(ctx context.Context, cards []*model.PhysicalCard) error
	GetPhysicalCard(ctx context.Context, number int64, businessCode string) (*model.PhysicalCard, error)
	ListPhysicalCards(ctx context.Context, businessCode string) ([]*model.PhysicalCard, error)

	// CreateMapping reserves a digital or prepaid secondary in the unified
	// index together with the mapping.
	CreateMapping(ctx context.Context, mapping *model.CardMapping) error
	GetMappingBySecondary(ctx context.Context, secondary int64) (*model.CardMapping, error)
	ListMappingsByBusiness(ctx context.Context, businessCode string) ([]*model.CardMapping, error)
	HasMappingForBusiness(ctx context.Context, primary int64, businessCode string) (bool, error)

	// IssuePhysicalCard records the mapping and flips the card's issued
	// flag together. If the card is already issued it returns
	// apperror.ErrConflict and writes nothing.
	IssuePhysicalCard(ctx context.Context, mapping *model.CardMapping) error
}

type StaffRepository interface {
	UpsertStaff(ctx context.Context, staff *model.Staff) error
	GetStaffByID(ctx context.Context, id string) (*model.Staff, error)
}

type GovernmentUserRepository interface {
	CreateGovernmentUser(ctx context.Context, user *model.GovernmentUser) error
	GetGovernmentUserByID(ctx context.Context, id string) (*model.GovernmentUser, error)
	GetGovernmentUserByEmail(ctx context.Context, email string) (*model.GovernmentUser, error)
	// UpdateGovernmentUser rewrites the profile fields, password hash and
	// active flag.
	UpdateGovernmentUser(ctx context.Context, user *model.GovernmentUser) error
}
