package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/cardauth/internal/apperror"
	"github.com/sakif/cardauth/internal/model"
	"github.com/sakif/cardauth/internal/repository"
)

// InstituteService lets an institute enrol members directly. The new member
// is always recorded as created by the institute.
type InstituteService struct {
	businesses repository.BusinessRepository
	members    *MemberService
	logger     *slog.Logger
}

func NewInstituteService(businesses repository.BusinessRepository, members *MemberService, logger *slog.Logger) *InstituteService {
	return &InstituteService{businesses: businesses, members: members, logger: logger}
}

// AddMember creates a member on behalf of the institute with code
// instituteCode. Plain businesses and inactive institutes are refused.
func (s *InstituteService) AddMember(ctx context.Context, instituteCode string, in NewMember) (*model.Member, error) {
	code, err := checkBusinessCode(instituteCode)
	if err != nil {
		return nil, err
	}

	institute, err := s.businesses.GetBusinessByCode(ctx, code)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Forbidden("only institutes can add members")
		}
		return nil, fmt.Errorf("service/institute: %w", err)
	}
	if !institute.IsInstitute {
		return nil, apperror.Forbidden("only institutes can add members")
	}
	if !institute.Active {
		return nil, apperror.Forbidden("this institute is inactive")
	}

	in.CreatedBy = institute.Code
	member, err := s.members.AddMember(ctx, institute.Code, in)
	if err != nil {
		return nil, err
	}

	s.logger.Info("member added by institute",
		slog.String("businessID", institute.Code),
		slog.String("memberID", member.ID),
	)
	return member, nil
}
