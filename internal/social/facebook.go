package social

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	apperrors "github.com/hotelkalsubai/backend/pkg/errors"
)

const facebookUserInfoURL = "https://graph.facebook.com/v18.0/me?fields=id,name,email"

// FacebookVerifier resolves Facebook access tokens against the Graph API.
type FacebookVerifier struct {
	userInfoURL string
}

// NewFacebookVerifier creates a verifier against the production Graph API.
func NewFacebookVerifier() *FacebookVerifier {
	return &FacebookVerifier{userInfoURL: facebookUserInfoURL}
}

// NewFacebookVerifierWithURL creates a verifier against a custom endpoint.
// Used in tests.
func NewFacebookVerifierWithURL(url string) *FacebookVerifier {
	return &FacebookVerifier{userInfoURL: url}
}

// Provider returns the provider name.
func (v *FacebookVerifier) Provider() string {
	return ProviderFacebook
}

// Verify calls the Graph API with the access token and returns the
// Facebook-scoped identity it resolves to.
func (v *FacebookVerifier) Verify(ctx context.Context, accessToken string) (*ExternalIdentity, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build graph request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch facebook profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		return nil, apperrors.InvalidExternalToken(ProviderFacebook)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("facebook graph returned status %d", resp.StatusCode)
	}

	var info struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode facebook profile: %w", err)
	}
	if info.ID == "" {
		return nil, apperrors.InvalidExternalToken(ProviderFacebook)
	}

	return &ExternalIdentity{ID: info.ID, Email: info.Email, Name: info.Name}, nil
}
