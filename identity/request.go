package identity

import "strings"

// PromptPolicy controls how the provider behaves when the user already has a
// session with it.
type PromptPolicy string

const (
	PromptSelectAccount PromptPolicy = "select_account"
	PromptForceLogin    PromptPolicy = "login"
	PromptNone          PromptPolicy = "none"
)

// GoogleFederationDomain routes a login to the external social identity
// source federated into the tenant.
const GoogleFederationDomain = "google.com"

const domainHintParam = "domain_hint"

// CredentialRequest describes what is being asked of the provider. Values are
// built by the constructors below, one per login path, and never mutated.
type CredentialRequest struct {
	Scopes       []string
	Account      *Account
	LoginHint    string
	DomainHint   string
	PromptPolicy PromptPolicy

	// ExtraParams carries provider-specific routing hints, e.g. the
	// federation domain for social logins.
	ExtraParams map[string]string
}

// NewWorkAccountRequest builds the request for a work or school account
// login. The email's domain is sent as a hint so the provider can route the
// login to the right tenant.
func NewWorkAccountRequest(scopes []string, email string) CredentialRequest {
	return CredentialRequest{
		Scopes:       cloneScopes(scopes),
		LoginHint:    email,
		DomainHint:   EmailDomain(email),
		PromptPolicy: PromptSelectAccount,
	}
}

// NewMicrosoftRequest builds the request for a plain Microsoft account login.
func NewMicrosoftRequest(scopes []string) CredentialRequest {
	return CredentialRequest{
		Scopes:       cloneScopes(scopes),
		PromptPolicy: PromptSelectAccount,
	}
}

// NewGoogleRequest builds the request for a Google login federated through
// the provider.
func NewGoogleRequest(scopes []string) CredentialRequest {
	return CredentialRequest{
		Scopes:       cloneScopes(scopes),
		PromptPolicy: PromptSelectAccount,
		ExtraParams:  map[string]string{domainHintParam: GoogleFederationDomain},
	}
}

// NewSilentRequest builds the request for a non-interactive credential
// renewal against an established account.
func NewSilentRequest(scopes []string, account Account) CredentialRequest {
	return CredentialRequest{
		Scopes:  cloneScopes(scopes),
		Account: &account,
	}
}

// EmailDomain returns the lower-cased domain part of an email address, or an
// empty string if there is none.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

func cloneScopes(scopes []string) []string {
	return append([]string(nil), scopes...)
}
