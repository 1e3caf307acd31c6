// Package identity defines the contract of the identity federation provider
// and the request values sent to it. The provider itself is an external
// capability; this package only describes its surface.
package identity

import "context"

// Account is the opaque identity record resolved by the provider.
type Account struct {
	ID    string
	Name  string
	Email string
}

// LoginResult is the outcome of an interactive login.
type LoginResult struct {
	Account     Account
	AccessToken string
}

// TokenResult is the outcome of a credential acquisition.
type TokenResult struct {
	AccessToken string
}

// Gateway is the capability surface of the identity federation provider.
// Initialize must complete before any other call; the single-initialization
// discipline is enforced by the caller, not by implementations.
type Gateway interface {
	Initialize(ctx context.Context) error

	// HandleRedirectResult completes an in-flight redirect-based login.
	// A nil result with a nil error means no redirect was in flight.
	HandleRedirectResult(ctx context.Context) (*LoginResult, error)

	ListAccounts(ctx context.Context) ([]Account, error)

	LoginInteractive(ctx context.Context, req CredentialRequest) (*LoginResult, error)

	AcquireTokenSilent(ctx context.Context, req CredentialRequest) (*TokenResult, error)
	AcquireTokenInteractive(ctx context.Context, req CredentialRequest) (*TokenResult, error)

	ClearAccount(ctx context.Context, account Account) error
}
