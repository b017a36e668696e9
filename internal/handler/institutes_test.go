package handler_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/cardauth/internal/apperror"
	"github.com/sakif/cardauth/internal/handler"
	"github.com/sakif/cardauth/internal/model"
)

func TestInstituteAddMember(t *testing.T) {
	institutes := &fakeInstitutes{member: &model.Member{ID: "m1", CreatedBy: "100200"}}
	h := handler.NewInstituteHandler(institutes, quietLogger())

	body := `{"fullName":"Student One","mobileNumber":"01711000001","pin":"1234"}`
	rr := httptest.NewRecorder()
	h.HandleAddMember(rr, newRequest(http.MethodPost, "/api/institutes/members", body, businessCaller))

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "100200", institutes.code)
	assert.Equal(t, "Student One", institutes.added.FullName)
	assert.Empty(t, institutes.added.CreatedBy)
	assert.Contains(t, rr.Body.String(), `"createdBy":"100200"`)
}

func TestInstituteAddMember_Rejected(t *testing.T) {
	body := `{"fullName":"Student One","mobileNumber":"01711000001","pin":"1234"}`

	t.Run("member token", func(t *testing.T) {
		institutes := &fakeInstitutes{}
		h := handler.NewInstituteHandler(institutes, quietLogger())

		rr := httptest.NewRecorder()
		h.HandleAddMember(rr, newRequest(http.MethodPost, "/api/institutes/members", body, memberCaller))
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Empty(t, institutes.code)
	})

	t.Run("plain business", func(t *testing.T) {
		h := handler.NewInstituteHandler(&fakeInstitutes{err: apperror.Forbidden("only institutes can add members")}, quietLogger())

		rr := httptest.NewRecorder()
		h.HandleAddMember(rr, newRequest(http.MethodPost, "/api/institutes/members", body, businessCaller))
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("creator cannot be chosen", func(t *testing.T) {
		h := handler.NewInstituteHandler(&fakeInstitutes{}, quietLogger())

		withCreator := `{"fullName":"Student One","mobileNumber":"01711000001","pin":"1234","createdBy":"999999"}`
		rr := httptest.NewRecorder()
		h.HandleAddMember(rr, newRequest(http.MethodPost, "/api/institutes/members", withCreator, businessCaller))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("anonymous", func(t *testing.T) {
		h := handler.NewInstituteHandler(&fakeInstitutes{}, quietLogger())

		rr := httptest.NewRecorder()
		h.HandleAddMember(rr, newRequest(http.MethodPost, "/api/institutes/members", body, nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
