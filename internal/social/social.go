// Package social verifies access tokens issued by external identity
// providers and resolves them to provider-scoped identities.
package social

import "context"

// Provider names accepted by the login endpoints.
const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
)

// ExternalIdentity is the provider-scoped identity resolved from a
// verified access token.
type ExternalIdentity struct {
	ID    string
	Email string
	Name  string
}

// TokenVerifier validates a provider access token and returns the identity
// it belongs to. Invalid and expired tokens yield ErrInvalidExternalToken.
type TokenVerifier interface {
	Provider() string
	Verify(ctx context.Context, accessToken string) (*ExternalIdentity, error)
}
