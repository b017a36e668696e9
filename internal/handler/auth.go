package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/cardauth/internal/apperror"
	"github.com/sakif/cardauth/internal/auth"
	"github.com/sakif/cardauth/internal/model"
	"github.com/sakif/cardauth/internal/service"
)

// GitHubProvider performs the OAuth code exchange.
type GitHubProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

type StaffService interface {
	LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*service.StaffAuth, error)
	Get(ctx context.Context, id string) (*model.Staff, error)
}

var (
	_ GitHubProvider = (*auth.GitHubProvider)(nil)
	_ StaffService   = (*service.StaffService)(nil)
)

// AuthHandler runs the staff GitHub sign-in flow.
//
//   - HandleGitHubLogin    → redirect the browser to GitHub
//   - HandleGitHubCallback → check state, exchange the code, set the token cookie
//   - HandleLogout         → clear the token cookie
//   - HandleMe             → the signed-in staff profile
type AuthHandler struct {
	github   GitHubProvider
	staff    StaffService
	tokenTTL time.Duration
	logger   *slog.Logger
}

func NewAuthHandler(github GitHubProvider, staff StaffService, tokenTTL time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		github:   github,
		staff:    staff,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

// HandleGitHubLogin redirects to GitHub with a random state that is also
// stored in a short-lived HttpOnly cookie for the callback to compare.
//
// HTTP: GET /auth/github/login
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes sign-in.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{
		Name:   "oauth_state",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		writeError(w, apperror.Unauthorized("GitHub authorization was denied"))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		writeError(w, apperror.Unauthorized("authentication failed"))
		return
	}

	res, err := h.staff.LoginWithGitHub(r.Context(), ghUser)
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    res.Token,
		Path:     "/",
		MaxAge:   int(h.tokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, struct {
		Token string       `json:"token"`
		Staff *model.Staff `json:"staff"`
	}{res.Token, res.Staff})
}

// HandleLogout clears the token cookie. Tokens stay valid until they expire.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the signed-in staff member.
//
// HTTP: GET /api/staff/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	staff, err := h.staff.Get(r.Context(), p.Subject)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, staff)
}
