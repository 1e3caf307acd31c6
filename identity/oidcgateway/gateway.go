// Package oidcgateway implements the identity provider contract against a
// live OIDC authority. The interactive step uses the device authorization
// grant; silent renewal redeems the cached refresh token.
package oidcgateway

import (
	"context"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/incasautomation/telemetrix/identity"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// PromptFunc surfaces the device login instructions to the user.
type PromptFunc func(verificationURI, userCode string)

// Config holds the provider settings.
type Config struct {
	// Authority is the OIDC issuer URL used for discovery.
	Authority string
	// ClientID identifies this application at the provider.
	ClientID string
	// RedirectURL is registered with the provider for redirect flows.
	RedirectURL string
	// Prompt is called when an interactive flow needs the user to complete
	// a device login. Optional.
	Prompt PromptFunc
}

var _ identity.Gateway = (*Gateway)(nil)

// Gateway talks to a single OIDC authority and caches at most one signed-in
// account, mirroring the single-identity model of the dashboard.
type Gateway struct {
	cfg      Config
	provider *oidc.Provider
	endpoint oauth2.Endpoint

	mu          sync.Mutex
	initialized bool
	token       *oauth2.Token
	account     *identity.Account
}

func New(cfg Config) *Gateway {
	return &Gateway{cfg: cfg}
}

// Initialize runs OIDC discovery. Safe to call more than once; discovery is
// performed only on the first call.
func (g *Gateway) Initialize(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initialized {
		return nil
	}
	if g.cfg.Authority == "" {
		return errors.New("[Gateway.Initialize] authority is required")
	}
	if g.cfg.ClientID == "" {
		return errors.New("[Gateway.Initialize] client id is required")
	}
	provider, err := oidc.NewProvider(ctx, g.cfg.Authority)
	if err != nil {
		return errors.Wrap(err, "[Gateway.Initialize] oidc discovery")
	}
	g.provider = provider
	g.endpoint = provider.Endpoint()
	g.initialized = true
	return nil
}

// HandleRedirectResult always reports no in-flight login: the device grant
// completes inline, there is no redirect leg to resume.
func (g *Gateway) HandleRedirectResult(_ context.Context) (*identity.LoginResult, error) {
	return nil, nil
}

func (g *Gateway) ListAccounts(_ context.Context) ([]identity.Account, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.account == nil {
		return nil, nil
	}
	return []identity.Account{*g.account}, nil
}

func (g *Gateway) LoginInteractive(ctx context.Context, req identity.CredentialRequest) (*identity.LoginResult, error) {
	token, err := g.deviceFlow(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "[Gateway.LoginInteractive]")
	}
	account, err := g.resolveAccount(ctx, token)
	if err != nil {
		return nil, errors.Wrap(err, "[Gateway.LoginInteractive]")
	}

	g.mu.Lock()
	g.token = token
	g.account = account
	g.mu.Unlock()

	return &identity.LoginResult{Account: *account, AccessToken: token.AccessToken}, nil
}

func (g *Gateway) AcquireTokenSilent(ctx context.Context, req identity.CredentialRequest) (*identity.TokenResult, error) {
	g.mu.Lock()
	cached := g.token
	g.mu.Unlock()
	if cached == nil {
		return nil, errors.New("[Gateway.AcquireTokenSilent] no cached credential")
	}

	cfg, err := g.flowConfig(req.Scopes)
	if err != nil {
		return nil, errors.Wrap(err, "[Gateway.AcquireTokenSilent]")
	}
	token, err := cfg.TokenSource(ctx, cached).Token()
	if err != nil {
		return nil, providerError(err, "[Gateway.AcquireTokenSilent] token refresh")
	}

	g.mu.Lock()
	g.token = token
	g.mu.Unlock()
	return &identity.TokenResult{AccessToken: token.AccessToken}, nil
}

func (g *Gateway) AcquireTokenInteractive(ctx context.Context, req identity.CredentialRequest) (*identity.TokenResult, error) {
	token, err := g.deviceFlow(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "[Gateway.AcquireTokenInteractive]")
	}

	g.mu.Lock()
	g.token = token
	g.mu.Unlock()
	return &identity.TokenResult{AccessToken: token.AccessToken}, nil
}

func (g *Gateway) ClearAccount(_ context.Context, account identity.Account) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.account != nil && g.account.ID == account.ID {
		g.account = nil
		g.token = nil
	}
	return nil
}

// deviceFlow runs one device authorization grant and waits for the user to
// approve it.
func (g *Gateway) deviceFlow(ctx context.Context, req identity.CredentialRequest) (*oauth2.Token, error) {
	cfg, err := g.flowConfig(req.Scopes)
	if err != nil {
		return nil, err
	}

	var opts []oauth2.AuthCodeOption
	if req.LoginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", req.LoginHint))
	}
	if req.DomainHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("domain_hint", req.DomainHint))
	}
	if req.PromptPolicy != "" && req.PromptPolicy != identity.PromptNone {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", string(req.PromptPolicy)))
	}
	for key, value := range req.ExtraParams {
		opts = append(opts, oauth2.SetAuthURLParam(key, value))
	}

	response, err := cfg.DeviceAuth(ctx, opts...)
	if err != nil {
		return nil, providerError(err, "device authorization")
	}
	if g.cfg.Prompt != nil {
		g.cfg.Prompt(response.VerificationURI, response.UserCode)
	}

	token, err := cfg.DeviceAccessToken(ctx, response)
	if err != nil {
		return nil, providerError(err, "device token exchange")
	}
	return token, nil
}

// resolveAccount extracts the signed-in identity from the token, preferring
// the ID token and falling back to the userinfo endpoint.
func (g *Gateway) resolveAccount(ctx context.Context, token *oauth2.Token) (*identity.Account, error) {
	g.mu.Lock()
	provider := g.provider
	g.mu.Unlock()
	if provider == nil {
		return nil, errors.New("gateway not initialized")
	}

	if rawIDToken, ok := token.Extra("id_token").(string); ok && rawIDToken != "" {
		verifier := provider.Verifier(&oidc.Config{ClientID: g.cfg.ClientID})
		idToken, err := verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return nil, errors.Wrap(err, "id token verification")
		}
		var claims struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		}
		if err := idToken.Claims(&claims); err != nil {
			return nil, errors.Wrap(err, "id token claims")
		}
		return &identity.Account{ID: idToken.Subject, Name: claims.Name, Email: claims.Email}, nil
	}

	info, err := provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, errors.Wrap(err, "userinfo")
	}
	return &identity.Account{ID: info.Subject, Name: info.Profile, Email: info.Email}, nil
}

func (g *Gateway) flowConfig(scopes []string) (*oauth2.Config, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.initialized {
		return nil, errors.New("gateway not initialized")
	}
	return &oauth2.Config{
		ClientID:    g.cfg.ClientID,
		Endpoint:    g.endpoint,
		RedirectURL: g.cfg.RedirectURL,
		Scopes:      scopes,
	}, nil
}

// providerError converts oauth2 endpoint failures into identity errors so
// callers can classify them by code. access_denied is the device-grant
// spelling of a cancelled login.
func providerError(err error, context string) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		code := retrieveErr.ErrorCode
		if code == "access_denied" {
			code = identity.CodeUserCancelled
		}
		return identity.NewError(code, retrieveErr.ErrorDescription)
	}
	return errors.Wrap(err, context)
}
