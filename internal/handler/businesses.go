package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/cardauth/internal/model"
	"github.com/sakif/cardauth/internal/service"
)

type BusinessService interface {
	StartSignup(ctx context.Context, req service.BusinessSignupRequest) error
	VerifySignup(ctx context.Context, mobile, code string) (*service.BusinessAuth, error)
	Login(ctx context.Context, mobile, pin string) (*service.BusinessAuth, error)
	Create(ctx context.Context, in service.NewBusiness) (*model.Business, error)
}

var _ BusinessService = (*service.BusinessService)(nil)

// BusinessHandler serves business and institute signup and login.
type BusinessHandler struct {
	businesses BusinessService
	logger     *slog.Logger
}

func NewBusinessHandler(businesses BusinessService, logger *slog.Logger) *BusinessHandler {
	return &BusinessHandler{businesses: businesses, logger: logger}
}

type businessSignupRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	MobileNumber string `json:"mobileNumber" validate:"required,numeric,min=10,max=15"`
	Email        string `json:"email" validate:"omitempty,email"`
	PIN          string `json:"pin" validate:"required,numeric,min=4,max=6"`
	IsInstitute  bool   `json:"isInstitute"`
}

type businessAuthResponse struct {
	Token    string          `json:"token"`
	Business *model.Business `json:"business"`
}

// HTTP: POST /api/businesses/signup
func (h *BusinessHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req businessSignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := h.businesses.StartSignup(r.Context(), service.BusinessSignupRequest{
		Name:         req.Name,
		MobileNumber: req.MobileNumber,
		Email:        req.Email,
		PIN:          req.PIN,
		IsInstitute:  req.IsInstitute,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"message": "OTP sent"})
}

// HTTP: POST /api/businesses/signup/verify
func (h *BusinessHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.businesses.VerifySignup(r.Context(), req.MobileNumber, req.OTP)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, businessAuthResponse{Token: res.Token, Business: res.Business})
}

// HTTP: POST /api/businesses/login
func (h *BusinessHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.businesses.Login(r.Context(), req.MobileNumber, req.PIN)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, businessAuthResponse{Token: res.Token, Business: res.Business})
}

// HandleCreate registers a business directly. Staff only.
//
// HTTP: POST /api/admin/businesses
func (h *BusinessHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req businessSignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	business, err := h.businesses.Create(r.Context(), service.NewBusiness{
		Name:         req.Name,
		MobileNumber: req.MobileNumber,
		Email:        req.Email,
		PIN:          req.PIN,
		IsInstitute:  req.IsInstitute,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, business)
}
