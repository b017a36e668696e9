package handler_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/cardauth/internal/auth"
	"github.com/sakif/cardauth/internal/model"
	"github.com/sakif/cardauth/internal/service"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newRequest builds a request carrying principal p (nil for anonymous) and
// chi URL params given as key, value pairs.
func newRequest(method, target, body string, p *auth.Principal, params ...string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	ctx := req.Context()
	if p != nil {
		ctx = auth.WithPrincipal(ctx, p)
	}
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for i := 0; i+1 < len(params); i += 2 {
			rctx.URLParams.Add(params[i], params[i+1])
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

var (
	businessCaller = &auth.Principal{Subject: "100200", Role: auth.RoleBusiness}
	staffCaller    = &auth.Principal{Subject: "staff-1", Role: auth.RoleStaff}
	memberCaller   = &auth.Principal{Subject: "member-1", Role: auth.RoleMember}
	officerCaller  = &auth.Principal{Subject: "gov-1", Role: auth.RoleGovernment}
)

type fakeCards struct {
	resolveArgs struct {
		card     int64
		business string
	}
	resolution model.Resolution
	issuance   *model.Issuance
	assignReq  service.AssignRequest
	mint       *model.MintResult
	mintCount  int
	mapReq     service.MapRequest
	cards      []*model.PhysicalCard
	mappings   []*model.CardMapping
	err        error
}

func (f *fakeCards) MintBatch(_ context.Context, code string, count int) (*model.MintResult, error) {
	f.mintCount = count
	if f.err != nil {
		return nil, f.err
	}
	return f.mint, nil
}

func (f *fakeCards) ListPhysicalCards(context.Context, string) ([]*model.PhysicalCard, error) {
	return f.cards, f.err
}

func (f *fakeCards) ListMappings(context.Context, string) ([]*model.CardMapping, error) {
	return f.mappings, f.err
}

func (f *fakeCards) Resolve(_ context.Context, card int64, business string) (model.Resolution, error) {
	f.resolveArgs.card = card
	f.resolveArgs.business = business
	return f.resolution, f.err
}

func (f *fakeCards) AssignCard(_ context.Context, req service.AssignRequest) (*model.Issuance, error) {
	f.assignReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.issuance, nil
}

func (f *fakeCards) MapCard(_ context.Context, req service.MapRequest) (*model.CardMapping, error) {
	f.mapReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &model.CardMapping{
		PrimaryCardNumber:   req.PrimaryCardNumber,
		SecondaryCardNumber: req.SecondaryCardNumber,
		Kind:                req.Kind,
		BusinessCode:        req.BusinessCode,
	}, nil
}

type fakeMembers struct {
	signup   service.SignupRequest
	added    service.NewMember
	actor    string
	member   *model.Member
	token    string
	err      error
	verified struct{ mobile, code string }
}

func (f *fakeMembers) StartSignup(_ context.Context, req service.SignupRequest) error {
	f.signup = req
	return f.err
}

func (f *fakeMembers) VerifySignup(_ context.Context, mobile, code string) (*service.MemberAuth, error) {
	f.verified.mobile, f.verified.code = mobile, code
	if f.err != nil {
		return nil, f.err
	}
	return &service.MemberAuth{Member: f.member, Token: f.token}, nil
}

func (f *fakeMembers) Login(context.Context, string, string) (*service.MemberAuth, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.MemberAuth{Member: f.member, Token: f.token}, nil
}

func (f *fakeMembers) AddMember(_ context.Context, actor string, in service.NewMember) (*model.Member, error) {
	f.actor, f.added = actor, in
	if f.err != nil {
		return nil, f.err
	}
	return f.member, nil
}

func (f *fakeMembers) Get(context.Context, string) (*model.Member, error) {
	return f.member, f.err
}

type fakeInstitutes struct {
	code   string
	added  service.NewMember
	member *model.Member
	err    error
}

func (f *fakeInstitutes) AddMember(_ context.Context, code string, in service.NewMember) (*model.Member, error) {
	f.code, f.added = code, in
	if f.err != nil {
		return nil, f.err
	}
	return f.member, nil
}

type fakeGovernment struct {
	created   service.NewGovernmentUser
	profile   service.GovernmentProfile
	passwords struct{ current, next string }
	active    *bool
	id        string
	user      *model.GovernmentUser
	token     string
	err       error
}

func (f *fakeGovernment) Create(_ context.Context, in service.NewGovernmentUser) (*model.GovernmentUser, error) {
	f.created = in
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

func (f *fakeGovernment) Login(context.Context, string, string) (*service.GovernmentAuth, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.GovernmentAuth{User: f.user, Token: f.token}, nil
}

func (f *fakeGovernment) Get(_ context.Context, id string) (*model.GovernmentUser, error) {
	f.id = id
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

func (f *fakeGovernment) UpdateProfile(_ context.Context, id string, p service.GovernmentProfile) (*model.GovernmentUser, error) {
	f.id, f.profile = id, p
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

func (f *fakeGovernment) ChangePassword(_ context.Context, id, current, next string) error {
	f.id = id
	f.passwords.current, f.passwords.next = current, next
	return f.err
}

func (f *fakeGovernment) SetActive(_ context.Context, id string, active bool) (*model.GovernmentUser, error) {
	f.id, f.active = id, &active
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}
