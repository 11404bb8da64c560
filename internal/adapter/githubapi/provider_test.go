package githubapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseairosa/codesalvage-sub000/internal/port"
)

func TestGrantCollaborator_InvitationCreated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/repos/acme/widget/collaborators/alice", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 42})
	}))
	defer srv.Close()

	p := NewProvider(srv.URL)
	res, err := p.GrantCollaborator(context.Background(), "acme", "widget", "alice", "tok")
	require.NoError(t, err)
	assert.EqualValues(t, 42, res.InvitationID)
	assert.False(t, res.AlreadyCollaborator)
}

func TestGrantCollaborator_AlreadyCollaboratorIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewProvider(srv.URL)
	res, err := p.GrantCollaborator(context.Background(), "acme", "widget", "alice", "tok")
	require.NoError(t, err)
	assert.True(t, res.AlreadyCollaborator)
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		class  port.ProviderErrorClass
	}{
		{http.StatusUnauthorized, port.ProviderUnauthorized},
		{http.StatusForbidden, port.ProviderForbidden},
		{http.StatusNotFound, port.ProviderNotFound},
		{http.StatusConflict, port.ProviderConflict},
		{http.StatusUnprocessableEntity, port.ProviderValidationFailed},
		{http.StatusInternalServerError, port.ProviderValidationFailed},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "boom"})
		}))

		p := NewProvider(srv.URL)
		err := p.TransferOwnership(context.Background(), "acme", "widget", "alice", "tok")
		require.Error(t, err, tc.status)
		assert.Equal(t, tc.class, port.ProviderClassOf(err), "status %d", tc.status)
		srv.Close()
	}
}

func TestTransferOwnership_Accepted(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/acme/widget/transfer", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewProvider(srv.URL)
	err := p.TransferOwnership(context.Background(), "acme", "widget", "alice", "tok")
	require.NoError(t, err)
	assert.Equal(t, "alice", gotBody["new_owner"])
}

func TestCheckCollaboratorAccess(t *testing.T) {
	status := http.StatusNoContent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	p := NewProvider(srv.URL)

	ok, err := p.CheckCollaboratorAccess(context.Background(), "acme", "widget", "alice", "tok")
	require.NoError(t, err)
	assert.True(t, ok)

	status = http.StatusNotFound
	ok, err = p.CheckCollaboratorAccess(context.Background(), "acme", "widget", "alice", "tok")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevokeCollaborator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewProvider(srv.URL)
	require.NoError(t, p.RevokeCollaborator(context.Background(), "acme", "widget", "alice", "tok"))
}

func TestUnauthorizedIsTheOnlyNonRetryableClass(t *testing.T) {
	err := &port.ProviderError{Class: port.ProviderUnauthorized, Op: "transfer_ownership", Message: "expired"}
	assert.True(t, port.IsProviderUnauthorized(err))

	for _, class := range []port.ProviderErrorClass{
		port.ProviderNotFound, port.ProviderForbidden, port.ProviderConflict, port.ProviderValidationFailed,
	} {
		e := &port.ProviderError{Class: class, Op: "transfer_ownership", Message: "x"}
		assert.False(t, port.IsProviderUnauthorized(e), class)
	}
}
