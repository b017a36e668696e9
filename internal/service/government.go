package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/cardauth/internal/apperror"
	"github.com/sakif/cardauth/internal/auth"
	"github.com/sakif/cardauth/internal/model"
	"github.com/sakif/cardauth/internal/repository"
)

// NewGovernmentUser is the input to GovernmentService.Create.
type NewGovernmentUser struct {
	Email        string
	FullName     string
	MobileNumber string
	Department   string
	Designation  string
	Password     string
}

// GovernmentProfile holds the fields an officer may change. Empty fields
// are left as they are.
type GovernmentProfile struct {
	FullName     string
	MobileNumber string
	Department   string
	Designation  string
}

// GovernmentAuth bundles a government user with a freshly issued token.
type GovernmentAuth struct {
	User  *model.GovernmentUser
	Token string
}

// GovernmentService manages government accounts. Staff create and
// (de)activate them; officers sign in with email and password.
//
//	GovernmentHandler (HTTP) → GovernmentService → GovernmentUserRepository (DB)
//	                         ↘ PINHasher (bcrypt), TokenService (JWT)
type GovernmentService struct {
	users  repository.GovernmentUserRepository
	hasher *auth.PINHasher
	tokens *auth.TokenService
	logger *slog.Logger
}

func NewGovernmentService(
	users repository.GovernmentUserRepository,
	hasher *auth.PINHasher,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *GovernmentService {
	return &GovernmentService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		logger: logger,
	}
}

// Create registers an active government user.
func (s *GovernmentService) Create(ctx context.Context, in NewGovernmentUser) (*model.GovernmentUser, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}

	user := &model.GovernmentUser{Email: email}
	if err := applyProfile(user, GovernmentProfile{
		FullName:     in.FullName,
		MobileNumber: in.MobileNumber,
		Department:   in.Department,
		Designation:  in.Designation,
	}, true); err != nil {
		return nil, err
	}
	if err := checkPassword("password", in.Password); err != nil {
		return nil, err
	}

	if user.PasswordHash, err = s.hasher.Hash(in.Password); err != nil {
		return nil, fmt.Errorf("service/government: %w", err)
	}

	if err := s.users.CreateGovernmentUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/government: creating user: %w", err)
	}

	s.logger.Info("government user created",
		slog.String("governmentUserID", user.ID),
		slog.String("department", user.Department),
	)
	return user, nil
}

// Login checks email and password. Unknown email and wrong password give the
// same answer.
func (s *GovernmentService) Login(ctx context.Context, email, password string) (*GovernmentAuth, error) {
	email, err := normalizeEmail(email)
	if err != nil || email == "" || password == "" {
		return nil, apperror.Unauthorized("invalid email or password")
	}

	user, err := s.users.GetGovernmentUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("invalid email or password")
		}
		return nil, fmt.Errorf("service/government: %w", err)
	}

	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPIN) {
			return nil, apperror.Unauthorized("invalid email or password")
		}
		return nil, fmt.Errorf("service/government: %w", err)
	}
	if !user.Active {
		return nil, apperror.Forbidden("this account is inactive")
	}

	token, err := s.tokens.Generate(user.ID, auth.RoleGovernment)
	if err != nil {
		return nil, fmt.Errorf("service/government: generating token for %s: %w", user.ID, err)
	}

	s.logger.Info("government user logged in", slog.String("governmentUserID", user.ID))
	return &GovernmentAuth{User: user, Token: token}, nil
}

func (s *GovernmentService) Get(ctx context.Context, id string) (*model.GovernmentUser, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "government user id is required")
	}
	return s.users.GetGovernmentUserByID(ctx, id)
}

// UpdateProfile changes the non-empty fields of p.
func (s *GovernmentService) UpdateProfile(ctx context.Context, id string, p GovernmentProfile) (*model.GovernmentUser, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyProfile(user, p, false); err != nil {
		return nil, err
	}
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword replaces the password after checking the current one.
// Tokens already issued stay valid until they expire.
func (s *GovernmentService) ChangePassword(ctx context.Context, id, current, next string) error {
	if current == "" {
		return apperror.ValidationFailed("old_password", "old password is required")
	}
	if err := checkPassword("new_password", next); err != nil {
		return err
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.hasher.Verify(user.PasswordHash, current); err != nil {
		if errors.Is(err, auth.ErrInvalidPIN) {
			return apperror.ValidationFailed("old_password", "current password is incorrect")
		}
		return fmt.Errorf("service/government: %w", err)
	}

	if user.PasswordHash, err = s.hasher.Hash(next); err != nil {
		return fmt.Errorf("service/government: %w", err)
	}
	if err := s.save(ctx, user); err != nil {
		return err
	}

	s.logger.Info("government user changed password", slog.String("governmentUserID", user.ID))
	return nil
}

// SetActive activates or deactivates an account. An inactive user cannot
// log in.
func (s *GovernmentService) SetActive(ctx context.Context, id string, active bool) (*model.GovernmentUser, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Active = active
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("government user activation changed",
		slog.String("governmentUserID", user.ID),
		slog.Bool("active", active),
	)
	return user, nil
}

func (s *GovernmentService) save(ctx context.Context, user *model.GovernmentUser) error {
	err := s.users.UpdateGovernmentUser(ctx, user)
	if err == nil {
		return nil
	}
	if errors.Is(err, apperror.ErrConflict) || errors.Is(err, apperror.ErrNotFound) {
		return err
	}
	return fmt.Errorf("service/government: updating %s: %w", user.ID, err)
}

// applyProfile validates p and copies it onto user. With required set every
// field must be present; otherwise empty fields are skipped.
func applyProfile(user *model.GovernmentUser, p GovernmentProfile, required bool) error {
	if p.FullName != "" || required {
		name, err := normalizeName("full_name", p.FullName)
		if err != nil {
			return err
		}
		user.FullName = name
	}
	if p.MobileNumber != "" || required {
		mobile, err := normalizeMobile(p.MobileNumber)
		if err != nil {
			return err
		}
		user.MobileNumber = mobile
	}
	if p.Department != "" || required {
		department, err := normalizeName("department", p.Department)
		if err != nil {
			return err
		}
		user.Department = department
	}
	if p.Designation != "" || required {
		designation, err := normalizeName("designation", p.Designation)
		if err != nil {
			return err
		}
		user.Designation = designation
	}
	return nil
}
