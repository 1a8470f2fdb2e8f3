package social

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	apperrors "github.com/hotelkalsubai/backend/pkg/errors"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// GoogleVerifier resolves Google OAuth2 access tokens against the userinfo
// endpoint.
type GoogleVerifier struct {
	userInfoURL string
}

// NewGoogleVerifier creates a verifier against the production Google API.
func NewGoogleVerifier() *GoogleVerifier {
	return &GoogleVerifier{userInfoURL: googleUserInfoURL}
}

// NewGoogleVerifierWithURL creates a verifier against a custom userinfo
// endpoint. Used in tests.
func NewGoogleVerifierWithURL(url string) *GoogleVerifier {
	return &GoogleVerifier{userInfoURL: url}
}

// Provider returns the provider name.
func (v *GoogleVerifier) Provider() string {
	return ProviderGoogle
}

// Verify calls the userinfo endpoint with the access token and returns the
// Google-scoped identity it resolves to.
func (v *GoogleVerifier) Verify(ctx context.Context, accessToken string) (*ExternalIdentity, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch google userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, apperrors.InvalidExternalToken(ProviderGoogle)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google userinfo returned status %d", resp.StatusCode)
	}

	var info struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode google userinfo: %w", err)
	}
	if info.Sub == "" {
		return nil, apperrors.InvalidExternalToken(ProviderGoogle)
	}

	return &ExternalIdentity{ID: info.Sub, Email: info.Email, Name: info.Name}, nil
}
