package social

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hotelkalsubai/backend/pkg/errors"
)

func TestGoogleVerifier_Verify_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer valid-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sub":"g-123","email":"alice@example.com","name":"Alice Smith"}`))
	}))
	defer srv.Close()

	v := NewGoogleVerifierWithURL(srv.URL)

	identity, err := v.Verify(context.Background(), "valid-token")
	require.NoError(t, err)
	assert.Equal(t, "g-123", identity.ID)
	assert.Equal(t, "alice@example.com", identity.Email)
	assert.Equal(t, "Alice Smith", identity.Name)
}

func TestGoogleVerifier_Verify_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	v := NewGoogleVerifierWithURL(srv.URL)

	identity, err := v.Verify(context.Background(), "bad-token")
	assert.Nil(t, identity)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidExternalToken), "expected ErrInvalidExternalToken, got: %v", err)
}

func TestGoogleVerifier_Verify_MissingSubject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"email":"alice@example.com"}`))
	}))
	defer srv.Close()

	v := NewGoogleVerifierWithURL(srv.URL)

	_, err := v.Verify(context.Background(), "odd-token")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidExternalToken))
}

func TestFacebookVerifier_Verify_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer valid-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"id":"fb-456","name":"Bob Jones","email":"bob@example.com"}`))
	}))
	defer srv.Close()

	v := NewFacebookVerifierWithURL(srv.URL)

	identity, err := v.Verify(context.Background(), "valid-token")
	require.NoError(t, err)
	assert.Equal(t, "fb-456", identity.ID)
	assert.Equal(t, "bob@example.com", identity.Email)
}

func TestFacebookVerifier_Verify_BadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	v := NewFacebookVerifierWithURL(srv.URL)

	identity, err := v.Verify(context.Background(), "expired-token")
	assert.Nil(t, identity)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidExternalToken))
}

func TestVerifier_ProviderNames(t *testing.T) {
	assert.Equal(t, ProviderGoogle, NewGoogleVerifier().Provider())
	assert.Equal(t, ProviderFacebook, NewFacebookVerifier().Provider())
}
