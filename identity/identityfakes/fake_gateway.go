package identityfakes

import (
	"context"
	"sync"

	"github.com/incasautomation/telemetrix/identity"
	"github.com/pkg/errors"
)

var _ identity.Gateway = (*FakeGateway)(nil)

// FakeGateway is a recording test double for the provider contract. Each
// method delegates to its Fn field when set; the defaults resolve to an empty
// provider (no redirect result, no accounts, failing logins).
type FakeGateway struct {
	lock sync.Mutex

	InitializeFn              func(ctx context.Context) error
	HandleRedirectResultFn    func(ctx context.Context) (*identity.LoginResult, error)
	ListAccountsFn            func(ctx context.Context) ([]identity.Account, error)
	LoginInteractiveFn        func(ctx context.Context, req identity.CredentialRequest) (*identity.LoginResult, error)
	AcquireTokenSilentFn      func(ctx context.Context, req identity.CredentialRequest) (*identity.TokenResult, error)
	AcquireTokenInteractiveFn func(ctx context.Context, req identity.CredentialRequest) (*identity.TokenResult, error)
	ClearAccountFn            func(ctx context.Context, account identity.Account) error

	calls         []string
	LoginRequests []identity.CredentialRequest
	TokenRequests []identity.CredentialRequest
	Cleared       []identity.Account
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{}
}

// Calls returns the ordered method names invoked so far.
func (g *FakeGateway) Calls() []string {
	g.lock.Lock()
	defer g.lock.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *FakeGateway) record(name string) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.calls = append(g.calls, name)
}

func (g *FakeGateway) Initialize(ctx context.Context) error {
	g.record("Initialize")
	if g.InitializeFn != nil {
		return g.InitializeFn(ctx)
	}
	return nil
}

func (g *FakeGateway) HandleRedirectResult(ctx context.Context) (*identity.LoginResult, error) {
	g.record("HandleRedirectResult")
	if g.HandleRedirectResultFn != nil {
		return g.HandleRedirectResultFn(ctx)
	}
	return nil, nil
}

func (g *FakeGateway) ListAccounts(ctx context.Context) ([]identity.Account, error) {
	g.record("ListAccounts")
	if g.ListAccountsFn != nil {
		return g.ListAccountsFn(ctx)
	}
	return nil, nil
}

func (g *FakeGateway) LoginInteractive(ctx context.Context, req identity.CredentialRequest) (*identity.LoginResult, error) {
	g.record("LoginInteractive")
	g.lock.Lock()
	g.LoginRequests = append(g.LoginRequests, req)
	g.lock.Unlock()
	if g.LoginInteractiveFn != nil {
		return g.LoginInteractiveFn(ctx, req)
	}
	return nil, errors.New("no interactive login configured")
}

func (g *FakeGateway) AcquireTokenSilent(ctx context.Context, req identity.CredentialRequest) (*identity.TokenResult, error) {
	g.record("AcquireTokenSilent")
	g.lock.Lock()
	g.TokenRequests = append(g.TokenRequests, req)
	g.lock.Unlock()
	if g.AcquireTokenSilentFn != nil {
		return g.AcquireTokenSilentFn(ctx, req)
	}
	return nil, errors.New("no silent acquisition configured")
}

func (g *FakeGateway) AcquireTokenInteractive(ctx context.Context, req identity.CredentialRequest) (*identity.TokenResult, error) {
	g.record("AcquireTokenInteractive")
	g.lock.Lock()
	g.TokenRequests = append(g.TokenRequests, req)
	g.lock.Unlock()
	if g.AcquireTokenInteractiveFn != nil {
		return g.AcquireTokenInteractiveFn(ctx, req)
	}
	return nil, errors.New("no interactive acquisition configured")
}

func (g *FakeGateway) ClearAccount(ctx context.Context, account identity.Account) error {
	g.record("ClearAccount")
	g.lock.Lock()
	g.Cleared = append(g.Cleared, account)
	g.lock.Unlock()
	if g.ClearAccountFn != nil {
		return g.ClearAccountFn(ctx, account)
	}
	return nil
}
