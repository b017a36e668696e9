package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/cardauth/internal/apperror"
	"github.com/sakif/cardauth/internal/model"
)

func newGovernmentUser(email, mobile string) *model.GovernmentUser {
	return &model.GovernmentUser{
		Email:        email,
		FullName:     "Officer " + mobile,
		MobileNumber: mobile,
		Department:   "Education",
		Designation:  "Inspector",
		PasswordHash: "hash",
	}
}

func TestCreateGovernmentUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := newGovernmentUser("officer@gov.example", "9700000001")
	require.NoError(t, db.CreateGovernmentUser(ctx, u))
	assert.NotEmpty(t, u.ID)
	assert.True(t, u.Active)

	byEmail, err := db.GetGovernmentUserByEmail(ctx, "officer@gov.example")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
	assert.Equal(t, "Education", byEmail.Department)
	assert.Equal(t, "hash", byEmail.PasswordHash)

	byID, err := db.GetGovernmentUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Inspector", byID.Designation)
}

func TestCreateGovernmentUser_Duplicates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.CreateGovernmentUser(ctx, newGovernmentUser("officer@gov.example", "9700000001")))

	err := db.CreateGovernmentUser(ctx, newGovernmentUser("officer@gov.example", "9700000002"))
	assert.ErrorIs(t, err, apperror.ErrConflict)

	err = db.CreateGovernmentUser(ctx, newGovernmentUser("other@gov.example", "9700000001"))
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestUpdateGovernmentUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := newGovernmentUser("officer@gov.example", "9700000001")
	require.NoError(t, db.CreateGovernmentUser(ctx, u))

	u.Department = "Health"
	u.PasswordHash = "new-hash"
	u.Active = false
	require.NoError(t, db.UpdateGovernmentUser(ctx, u))

	found, err := db.GetGovernmentUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Health", found.Department)
	assert.Equal(t, "new-hash", found.PasswordHash)
	assert.False(t, found.Active)
	assert.Equal(t, "officer@gov.example", found.Email)
}

func TestUpdateGovernmentUser_NotFound(t *testing.T) {
	db := newTestDB(t)
	u := newGovernmentUser("officer@gov.example", "9700000001")
	u.ID = "missing"
	assert.ErrorIs(t, db.UpdateGovernmentUser(context.Background(), u), apperror.ErrNotFound)
}

func TestGetGovernmentUserByEmail_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetGovernmentUserByEmail(context.Background(), "nobody@gov.example")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
