package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/cardauth/internal/apperror"
	"github.com/sakif/cardauth/internal/auth"
	"github.com/sakif/cardauth/internal/model"
	"github.com/sakif/cardauth/internal/service"
)

type MemberService interface {
	StartSignup(ctx context.Context, req service.SignupRequest) error
	VerifySignup(ctx context.Context, mobile, code string) (*service.MemberAuth, error)
	Login(ctx context.Context, mobile, pin string) (*service.MemberAuth, error)
	AddMember(ctx context.Context, actor string, in service.NewMember) (*model.Member, error)
	Get(ctx context.Context, id string) (*model.Member, error)
}

var _ MemberService = (*service.MemberService)(nil)

// MemberHandler serves member signup, login and profile routes.
type MemberHandler struct {
	members MemberService
	logger  *slog.Logger
}

func NewMemberHandler(members MemberService, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{members: members, logger: logger}
}

type memberSignupRequest struct {
	FullName     string `json:"fullName" validate:"required,max=100"`
	MobileNumber string `json:"mobileNumber" validate:"required,numeric,min=10,max=15"`
	Email        string `json:"email" validate:"omitempty,email"`
	PIN          string `json:"pin" validate:"required,numeric,min=4,max=6"`
	ReferralID   string `json:"referralId"`
}

type verifyRequest struct {
	MobileNumber string `json:"mobileNumber" validate:"required"`
	OTP          string `json:"otp" validate:"required,numeric,len=6"`
}

type loginRequest struct {
	MobileNumber string `json:"mobileNumber" validate:"required"`
	PIN          string `json:"pin" validate:"required"`
}

type addMemberRequest struct {
	FullName     string `json:"fullName" validate:"required,max=100"`
	MobileNumber string `json:"mobileNumber" validate:"required,numeric,min=10,max=15"`
	Email        string `json:"email" validate:"omitempty,email"`
	PIN          string `json:"pin" validate:"required,numeric,min=4,max=6"`
	CreatedBy    string `json:"createdBy"`
}

type memberAuthResponse struct {
	Token  string        `json:"token"`
	Member *model.Member `json:"member"`
}

// HandleSignup starts a member signup and sends the OTP.
//
// HTTP: POST /api/members/signup
func (h *MemberHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req memberSignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := h.members.StartSignup(r.Context(), service.SignupRequest{
		FullName:     req.FullName,
		MobileNumber: req.MobileNumber,
		Email:        req.Email,
		PIN:          req.PIN,
		ReferredBy:   req.ReferralID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"message": "OTP sent"})
}

// HandleVerify completes a signup with the OTP and returns a token.
//
// HTTP: POST /api/members/signup/verify
func (h *MemberHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.members.VerifySignup(r.Context(), req.MobileNumber, req.OTP)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, memberAuthResponse{Token: res.Token, Member: res.Member})
}

// HandleLogin exchanges mobile number and PIN for a token.
//
// HTTP: POST /api/members/login
func (h *MemberHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.members.Login(r.Context(), req.MobileNumber, req.PIN)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, memberAuthResponse{Token: res.Token, Member: res.Member})
}

// HandleMe returns the calling member.
//
// HTTP: GET /api/members/me
func (h *MemberHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if p.Role != auth.RoleMember {
		writeError(w, apperror.Forbidden("only members have a member profile"))
		return
	}

	member, err := h.members.Get(r.Context(), p.Subject)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// HandleAdd registers a member without an OTP round trip. Staff only.
//
// HTTP: POST /api/admin/members
func (h *MemberHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req addMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	member, err := h.members.AddMember(r.Context(), p.Subject, service.NewMember{
		MobileNumber: req.MobileNumber,
		FullName:     req.FullName,
		Email:        req.Email,
		PIN:          req.PIN,
		CreatedBy:    req.CreatedBy,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("member added by staff",
		slog.String("staffID", p.Subject),
		slog.String("memberID", member.ID),
	)
	writeJSON(w, http.StatusCreated, member)
}
