package identity_test

import (
	"testing"

	"github.com/incasautomation/telemetrix/identity"
	"github.com/stretchr/testify/require"
)

const testScope = "758ff3e9-e6bd-4838-90d0-50cf3ec88387/.default"

func TestNewWorkAccountRequest(t *testing.T) {
	req := identity.NewWorkAccountRequest([]string{testScope}, "alice@acme.com")

	require.Equal(t, []string{testScope}, req.Scopes)
	require.Equal(t, "alice@acme.com", req.LoginHint)
	require.Equal(t, "acme.com", req.DomainHint)
	require.Equal(t, identity.PromptSelectAccount, req.PromptPolicy)
	require.Nil(t, req.Account)
	require.Nil(t, req.ExtraParams)
}

func TestNewMicrosoftRequest(t *testing.T) {
	req := identity.NewMicrosoftRequest([]string{testScope})

	require.Equal(t, identity.PromptSelectAccount, req.PromptPolicy)
	require.Empty(t, req.LoginHint)
	require.Empty(t, req.DomainHint)
	require.Nil(t, req.ExtraParams)
}

func TestNewGoogleRequest(t *testing.T) {
	req := identity.NewGoogleRequest([]string{testScope})

	require.Equal(t, identity.PromptSelectAccount, req.PromptPolicy)
	require.Empty(t, req.DomainHint)
	require.Equal(t, map[string]string{"domain_hint": identity.GoogleFederationDomain}, req.ExtraParams)
}

func TestNewSilentRequest(t *testing.T) {
	account := identity.Account{ID: "1", Name: "Alice", Email: "alice@acme.com"}
	req := identity.NewSilentRequest([]string{testScope}, account)

	require.NotNil(t, req.Account)
	require.Equal(t, account, *req.Account)
	require.Equal(t, identity.PromptPolicy(""), req.PromptPolicy)
}

func TestRequestScopesAreCopied(t *testing.T) {
	scopes := []string{testScope}
	req := identity.NewMicrosoftRequest(scopes)

	scopes[0] = "mutated"
	require.Equal(t, testScope, req.Scopes[0])
}

func TestEmailDomain(t *testing.T) {
	require.Equal(t, "acme.com", identity.EmailDomain("alice@acme.com"))
	require.Equal(t, "acme.com", identity.EmailDomain("alice@ACME.com"))
	require.Equal(t, "", identity.EmailDomain("alice"))
	require.Equal(t, "", identity.EmailDomain("alice@"))
}

func TestCodeOf(t *testing.T) {
	err := identity.NewError(identity.CodeUserCancelled, "popup dismissed")
	require.Equal(t, identity.CodeUserCancelled, identity.CodeOf(err))
	require.Equal(t, "", identity.CodeOf(nil))
}
