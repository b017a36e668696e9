package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/cardauth/internal/apperror"
	"github.com/sakif/cardauth/internal/auth"
	"github.com/sakif/cardauth/internal/model"
	"github.com/sakif/cardauth/internal/repository"
)

// StaffAuth bundles a staff record with a freshly issued access token.
type StaffAuth struct {
	Staff *model.Staff
	Token string
}

// StaffService signs operators in through GitHub.
//
//	AuthHandler (HTTP) → StaffService → StaffRepository (DB)
//	                   ↘ TokenService (JWT)
type StaffService struct {
	staff   repository.StaffRepository
	tokens  *auth.TokenService
	allowed map[string]bool
	logger  *slog.Logger
}

// NewStaffService creates a StaffService. When allowedLogins is non-empty
// only those GitHub logins may sign in.
func NewStaffService(
	staff repository.StaffRepository,
	tokens *auth.TokenService,
	allowedLogins []string,
	logger *slog.Logger,
) *StaffService {
	allowed := make(map[string]bool, len(allowedLogins))
	for _, login := range allowedLogins {
		allowed[login] = true
	}
	return &StaffService{
		staff:   staff,
		tokens:  tokens,
		allowed: allowed,
		logger:  logger,
	}
}

// LoginWithGitHub upserts the staff record for a GitHub profile and issues a
// token. GitHub ids are stable, so the first login inserts and later ones
// refresh the profile fields.
func (s *StaffService) LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*StaffAuth, error) {
	if gh == nil {
		return nil, fmt.Errorf("service/staff: GitHub user must not be nil")
	}
	if len(s.allowed) > 0 && !s.allowed[gh.Login] {
		s.logger.Warn("staff login refused", slog.String("login", gh.Login))
		return nil, apperror.Forbidden("this GitHub account is not a staff member")
	}

	staff := &model.Staff{
		GitHubID:  gh.ID,
		Login:     gh.Login,
		Email:     gh.Email,
		AvatarURL: gh.AvatarURL,
	}
	if err := s.staff.UpsertStaff(ctx, staff); err != nil {
		return nil, fmt.Errorf("service/staff: upserting staff (githubID=%d): %w", gh.ID, err)
	}

	s.logger.Info("staff authenticated via GitHub",
		slog.String("staffID", staff.ID),
		slog.String("login", staff.Login),
	)

	token, err := s.tokens.Generate(staff.ID, auth.RoleStaff)
	if err != nil {
		return nil, fmt.Errorf("service/staff: generating token for %s: %w", staff.ID, err)
	}
	return &StaffAuth{Staff: staff, Token: token}, nil
}

func (s *StaffService) Get(ctx context.Context, id string) (*model.Staff, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "staff id is required")
	}
	return s.staff.GetStaffByID(ctx, id)
}
