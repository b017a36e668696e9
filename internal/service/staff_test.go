package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/cardauth/internal/apperror"
	"github.com/sakif/cardauth/internal/auth"
)

func TestLoginWithGitHub_NewThenReturning(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first, err := env.staff.LoginWithGitHub(ctx, &auth.GitHubUser{ID: 42, Login: "octocat", Email: "old@example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, first.Staff.ID)

	p, err := env.tokens.Validate(first.Token)
	require.NoError(t, err)
	assert.Equal(t, first.Staff.ID, p.Subject)
	assert.Equal(t, auth.RoleStaff, p.Role)

	second, err := env.staff.LoginWithGitHub(ctx, &auth.GitHubUser{ID: 42, Login: "octocat", Email: "new@example.com"})
	require.NoError(t, err)
	assert.Equal(t, first.Staff.ID, second.Staff.ID)

	got, err := env.staff.Get(ctx, first.Staff.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", got.Email)
}

func TestLoginWithGitHub_Allowlist(t *testing.T) {
	env := newTestEnv(t, nil)
	svc := NewStaffService(env.db, env.tokens, []string{"octocat"}, discardLogger())

	_, err := svc.LoginWithGitHub(context.Background(), &auth.GitHubUser{ID: 7, Login: "mallory"})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = svc.LoginWithGitHub(context.Background(), &auth.GitHubUser{ID: 42, Login: "octocat"})
	assert.NoError(t, err)
}

func TestLoginWithGitHub_NilUser(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.staff.LoginWithGitHub(context.Background(), nil)
	assert.Error(t, err)
}

func TestStaffGet_EmptyID(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.staff.Get(context.Background(), "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
