package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/cardauth/internal/apperror"
	"github.com/sakif/cardauth/internal/auth"
	"github.com/sakif/cardauth/internal/model"
	"github.com/sakif/cardauth/internal/service"
)

type GovernmentService interface {
	Create(ctx context.Context, in service.NewGovernmentUser) (*model.GovernmentUser, error)
	Login(ctx context.Context, email, password string) (*service.GovernmentAuth, error)
	Get(ctx context.Context, id string) (*model.GovernmentUser, error)
	UpdateProfile(ctx context.Context, id string, p service.GovernmentProfile) (*model.GovernmentUser, error)
	ChangePassword(ctx context.Context, id, current, next string) error
	SetActive(ctx context.Context, id string, active bool) (*model.GovernmentUser, error)
}

var _ GovernmentService = (*service.GovernmentService)(nil)

// GovernmentHandler serves government accounts: staff administration and
// the officers' own login and profile.
type GovernmentHandler struct {
	users  GovernmentService
	logger *slog.Logger
}

func NewGovernmentHandler(users GovernmentService, logger *slog.Logger) *GovernmentHandler {
	return &GovernmentHandler{users: users, logger: logger}
}

type createGovernmentUserRequest struct {
	Email        string `json:"email" validate:"required,email"`
	FullName     string `json:"fullName" validate:"required,max=100"`
	MobileNumber string `json:"mobileNumber" validate:"required,numeric,min=10,max=15"`
	Department   string `json:"department" validate:"required,max=100"`
	Designation  string `json:"designation" validate:"required,max=100"`
	Password     string `json:"password" validate:"required"`
}

type governmentLoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type governmentProfileRequest struct {
	FullName     string `json:"fullName" validate:"omitempty,max=100"`
	MobileNumber string `json:"mobileNumber" validate:"omitempty,numeric,min=10,max=15"`
	Department   string `json:"department" validate:"omitempty,max=100"`
	Designation  string `json:"designation" validate:"omitempty,max=100"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type governmentAuthResponse struct {
	Token string                `json:"token"`
	User  *model.GovernmentUser `json:"user"`
}

// HandleCreate registers a government user. Staff only.
//
// HTTP: POST /api/admin/government-users
func (h *GovernmentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req createGovernmentUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Create(r.Context(), service.NewGovernmentUser{
		Email:        req.Email,
		FullName:     req.FullName,
		MobileNumber: req.MobileNumber,
		Department:   req.Department,
		Designation:  req.Designation,
		Password:     req.Password,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("government user added by staff",
		slog.String("staffID", p.Subject),
		slog.String("governmentUserID", user.ID),
	)
	writeJSON(w, http.StatusCreated, user)
}

// HandleSetActive activates or deactivates a government user. Staff only.
//
// HTTP: PUT /api/admin/government-users/{id}/active
func (h *GovernmentHandler) HandleSetActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.SetActive(r.Context(), chi.URLParam(r, "id"), *req.Active)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleLogin exchanges email and password for a token.
//
// HTTP: POST /api/government/login
func (h *GovernmentHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req governmentLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, governmentAuthResponse{Token: res.Token, User: res.User})
}

// HandleMe returns the calling government user.
//
// HTTP: GET /api/government/me
func (h *GovernmentHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, err := h.caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateProfile changes the caller's profile. Omitted fields stay.
//
// HTTP: PUT /api/government/me
func (h *GovernmentHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, err := h.caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req governmentProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), id, service.GovernmentProfile{
		FullName:     req.FullName,
		MobileNumber: req.MobileNumber,
		Department:   req.Department,
		Designation:  req.Designation,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleChangePassword replaces the caller's password.
//
// HTTP: POST /api/government/password
func (h *GovernmentHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	id, err := h.caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.users.ChangePassword(r.Context(), id, req.OldPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

func (h *GovernmentHandler) caller(r *http.Request) (string, error) {
	p, err := principal(r)
	if err != nil {
		return "", err
	}
	if p.Role != auth.RoleGovernment {
		return "", apperror.Forbidden("only government users have a government profile")
	}
	return p.Subject, nil
}
