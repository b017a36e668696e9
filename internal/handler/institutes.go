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

type InstituteService interface {
	AddMember(ctx context.Context, instituteCode string, in service.NewMember) (*model.Member, error)
}

var _ InstituteService = (*service.InstituteService)(nil)

// InstituteHandler lets institute accounts enrol their own members.
type InstituteHandler struct {
	institutes InstituteService
	logger     *slog.Logger
}

func NewInstituteHandler(institutes InstituteService, logger *slog.Logger) *InstituteHandler {
	return &InstituteHandler{institutes: institutes, logger: logger}
}

// The creator is always the calling institute, so it is not accepted here.
type instituteMemberRequest struct {
	FullName     string `json:"fullName" validate:"required,max=100"`
	MobileNumber string `json:"mobileNumber" validate:"required,numeric,min=10,max=15"`
	Email        string `json:"email" validate:"omitempty,email"`
	PIN          string `json:"pin" validate:"required,numeric,min=4,max=6"`
}

// HandleAddMember registers a member on behalf of the calling institute.
//
// HTTP: POST /api/institutes/members
func (h *InstituteHandler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if p.Role != auth.RoleBusiness {
		writeError(w, apperror.Forbidden("only institutes can add members"))
		return
	}

	var req instituteMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	member, err := h.institutes.AddMember(r.Context(), p.Subject, service.NewMember{
		MobileNumber: req.MobileNumber,
		FullName:     req.FullName,
		Email:        req.Email,
		PIN:          req.PIN,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, member)
}
