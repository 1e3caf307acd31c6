package config

import "strings"

const (
	authorityVar   = "AUTH_AUTHORITY"
	clientIDVar    = "AUTH_CLIENT_ID"
	scopesVar      = "AUTH_SCOPES"
	redirectURLVar = "AUTH_REDIRECT_URL"
	loginEmailVar  = "DASHBOARD_LOGIN_EMAIL"
)

type Auth struct{}

var _ AuthConfig = Auth{}

func (Auth) GetAuthority() string {
	return GetEnv(authorityVar, "https://login.microsoftonline.com/common/v2.0")
}

func (Auth) GetClientID() string {
	return GetEnv(clientIDVar, "")
}

// GetScopes returns the scopes requested from the provider. When none are
// configured explicitly, the client's own default scope is requested.
func (a Auth) GetScopes() []string {
	if scopes := GetEnv(scopesVar, ""); scopes != "" {
		return strings.Fields(scopes)
	}
	if clientID := a.GetClientID(); clientID != "" {
		return []string{clientID + "/.default"}
	}
	return nil
}

func (Auth) GetRedirectURL() string {
	return GetEnv(redirectURLVar, "http://localhost:3000")
}

func (Auth) GetLoginEmail() string {
	return GetEnv(loginEmailVar, "")
}
