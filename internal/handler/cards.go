package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/cardauth/internal/apperror"
	"github.com/sakif/cardauth/internal/model"
	"github.com/sakif/cardauth/internal/service"
)

// CardService is the part of service.CardService the card routes use.
type CardService interface {
	MintBatch(ctx context.Context, businessCode string, count int) (*model.MintResult, error)
	ListPhysicalCards(ctx context.Context, businessCode string) ([]*model.PhysicalCard, error)
	ListMappings(ctx context.Context, businessCode string) ([]*model.CardMapping, error)
	Resolve(ctx context.Context, cardNumber int64, businessCode string) (model.Resolution, error)
	AssignCard(ctx context.Context, req service.AssignRequest) (*model.Issuance, error)
	MapCard(ctx context.Context, req service.MapRequest) (*model.CardMapping, error)
}

var _ CardService = (*service.CardService)(nil)

// CardHandler serves the card pool, resolution, issuance and mapping routes.
type CardHandler struct {
	cards  CardService
	logger *slog.Logger
}

func NewCardHandler(cards CardService, logger *slog.Logger) *CardHandler {
	return &CardHandler{cards: cards, logger: logger}
}

type assignRequest struct {
	BusinessID   string `json:"businessId"`
	CardNumber   int64  `json:"cardNumber,string" validate:"required,gt=0"`
	MobileNumber string `json:"mobileNumber" validate:"required,numeric,min=10,max=15"`
	FullName     string `json:"fullName" validate:"omitempty,max=100"`
	Email        string `json:"email" validate:"omitempty,email"`
	PIN          string `json:"pin" validate:"omitempty,numeric,min=4,max=6"`
}

type mintRequest struct {
	Count int `json:"count" validate:"required,min=1,max=100"`
}

type mapRequest struct {
	PrimaryCardNumber   int64  `json:"primaryCardNumber,string" validate:"required,gt=0"`
	SecondaryCardNumber int64  `json:"secondaryCardNumber,string" validate:"required,gt=0"`
	CardType            string `json:"cardType" validate:"required,oneof=physical digital prepaid"`
	BusinessID          string `json:"businessId"`
}

// HandleResolve resolves a presented card number for a business.
//
// HTTP: GET /api/cards/resolve?card_number=...&business_id=...
//
// An unresolved card is a normal 200 response with resolved=false and a
// reason; only a failure to answer is an error.
func (h *CardHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cardNumber, err := strconv.ParseInt(q.Get("card_number"), 10, 64)
	if err != nil || cardNumber <= 0 {
		writeError(w, apperror.ValidationFailed("card_number", "card_number must be a positive integer"))
		return
	}

	businessCode, err := businessScope(r, q.Get("business_id"))
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.cards.Resolve(r.Context(), cardNumber, businessCode)
	if err != nil {
		h.logger.Error("card resolution failed",
			slog.Int64("cardNumber", cardNumber),
			slog.String("businessID", businessCode),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// HandleAssign issues a physical card to a member identified by mobile.
//
// HTTP: POST /api/cards/assign
//
// RESPONSES:
//
//	201 outcome=assigned
//	200 outcome=already_issued (primaryCardNumber is the existing owner)
//	404 outcome=card_not_found
func (h *CardHandler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	businessCode, err := businessScope(r, req.BusinessID)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.cards.AssignCard(r.Context(), service.AssignRequest{
		BusinessCode: businessCode,
		CardNumber:   req.CardNumber,
		MobileNumber: req.MobileNumber,
		FullName:     req.FullName,
		Email:        req.Email,
		PIN:          req.PIN,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	switch res.Outcome {
	case model.OutcomeAssigned:
		status = http.StatusCreated
	case model.OutcomeCardNotFound:
		status = http.StatusNotFound
	}
	writeJSON(w, status, res)
}

// HandleListCards lists a business's physical card pool.
//
// HTTP: GET /api/businesses/{code}/cards
func (h *CardHandler) HandleListCards(w http.ResponseWriter, r *http.Request) {
	businessCode, err := businessScope(r, chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}

	cards, err := h.cards.ListPhysicalCards(r.Context(), businessCode)
	if err != nil {
		writeError(w, err)
		return
	}
	if cards == nil {
		cards = []*model.PhysicalCard{}
	}
	writeJSON(w, http.StatusOK, cards)
}

// HandleListMappings lists the mappings recorded under a business.
//
// HTTP: GET /api/businesses/{code}/mappings
func (h *CardHandler) HandleListMappings(w http.ResponseWriter, r *http.Request) {
	businessCode, err := businessScope(r, chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}

	mappings, err := h.cards.ListMappings(r.Context(), businessCode)
	if err != nil {
		writeError(w, err)
		return
	}
	if mappings == nil {
		mappings = []*model.CardMapping{}
	}
	writeJSON(w, http.StatusOK, mappings)
}

// HandleMint mints physical cards for a business. Staff only.
//
// HTTP: POST /api/admin/businesses/{code}/cards
// REQUEST BODY: {"count": 50}
func (h *CardHandler) HandleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.cards.MintBatch(r.Context(), chi.URLParam(r, "code"), req.Count)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// HandleMap records a secondary card for an existing primary card. Staff
// only.
//
// HTTP: POST /api/admin/mappings
func (h *CardHandler) HandleMap(w http.ResponseWriter, r *http.Request) {
	var req mapRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	mapping, err := h.cards.MapCard(r.Context(), service.MapRequest{
		PrimaryCardNumber:   req.PrimaryCardNumber,
		SecondaryCardNumber: req.SecondaryCardNumber,
		Kind:                model.CardKind(req.CardType),
		BusinessCode:        req.BusinessID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapping)
}
