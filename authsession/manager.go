package authsession

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/incasautomation/telemetrix/credstore"
	"github.com/incasautomation/telemetrix/identity"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Manager establishes and maintains exactly one authenticated identity and
// hands out valid credentials on demand. It is the only writer of the Session
// state; everything else reads it through Session() or Status().
type Manager struct {
	gateway identity.Gateway
	store   credstore.Store
	scopes  []string
	log     zerolog.Logger
	nowTime func() time.Time

	mu            sync.Mutex
	session       Session
	initialized   bool
	loginInFlight bool
}

// ManagerOption modifies the Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithLogger sets the logger used for session lifecycle events.
func WithLogger(log zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = log
	}
}

// NewManager initializes a new Manager with required dependencies. The scopes
// are the default set requested from the provider.
func NewManager(gateway identity.Gateway, store credstore.Store, scopes []string, options ...ManagerOption) (*Manager, error) {
	if gateway == nil {
		return nil, errors.New("[NewManager] gateway is required")
	}
	if store == nil {
		return nil, errors.New("[NewManager] credential store is required")
	}
	if len(scopes) == 0 {
		return nil, errors.New("[NewManager] at least one scope is required")
	}

	m := &Manager{
		gateway: gateway,
		store:   store,
		scopes:  append([]string(nil), scopes...),
		log:     zerolog.Nop(),
		nowTime: time.Now,
		session: Session{Status: StatusUninitialized},
	}

	for _, opt := range options {
		opt(m)
	}

	return m, nil
}

// Session returns a copy of the current session state.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	session := m.session
	if m.session.Account != nil {
		account := *m.session.Account
		session.Account = &account
	}
	return session
}

// Status returns the current authentication status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Status
}

// Initialize resolves the starting identity: it loads the provider, completes
// any in-flight redirect login, and otherwise adopts the provider's first
// cached account. A recorded logout intent always wins over whatever the
// provider still remembers. Idempotent after the first successful call.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.session = Session{Status: StatusInitializing}
	m.mu.Unlock()

	if err := m.gateway.Initialize(ctx); err != nil {
		wrapped := errors.Wrap(err, "[Manager.Initialize] provider load")
		m.setSession(Session{Status: StatusError, LastAuthError: wrapped})
		m.log.Error().Err(err).Msg("identity provider failed to load")
		return wrapped
	}

	account := m.resolveAccount(ctx)

	if _, err := m.store.Get(credstore.IntentionalLogoutKey); err == nil {
		// The last action in this session was a logout; stale provider
		// state must not resurrect the account.
		if err := m.store.Delete(credstore.IntentionalLogoutKey); err != nil {
			m.log.Warn().Err(err).Msg("failed to clear logout intent flag")
		}
		account = nil
	}
	if err := m.store.Delete(credstore.InteractionStatusKey); err != nil {
		m.log.Warn().Err(err).Msg("failed to clear interaction marker")
	}

	m.mu.Lock()
	m.initialized = true
	if account != nil {
		m.session = Session{Status: StatusAuthenticated, Account: account, EstablishedAt: m.nowTime()}
	} else {
		m.session = Session{Status: StatusUnauthenticated}
	}
	status := m.session.Status
	m.mu.Unlock()

	m.log.Info().Str("status", string(status)).Msg("session initialized")
	return nil
}

// resolveAccount completes a redirect login if one is in flight, falling back
// to the provider's cached accounts. Provider failures resolve to no account.
func (m *Manager) resolveAccount(ctx context.Context) *identity.Account {
	result, err := m.gateway.HandleRedirectResult(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("redirect result could not be resolved")
	} else if result != nil {
		return &result.Account
	}

	accounts, err := m.gateway.ListAccounts(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("account enumeration failed")
		return nil
	}
	if len(accounts) == 0 {
		return nil
	}
	return &accounts[0]
}

// LoginWithWorkAccount signs in with a work or school email. The email is
// validated against the consumer-domain denylist before any provider call.
func (m *Manager) LoginWithWorkAccount(ctx context.Context, email string) error {
	if err := ValidateWorkEmail(email); err != nil {
		return errors.Wrap(err, "[Manager.LoginWithWorkAccount]")
	}
	return m.loginInteractive(ctx, "work_account", identity.NewWorkAccountRequest(m.scopes, email))
}

// LoginWithMicrosoft signs in with a standard Microsoft account.
func (m *Manager) LoginWithMicrosoft(ctx context.Context) error {
	return m.loginInteractive(ctx, "microsoft", identity.NewMicrosoftRequest(m.scopes))
}

// LoginWithGoogle signs in through the Google federation configured at the
// provider.
func (m *Manager) LoginWithGoogle(ctx context.Context) error {
	return m.loginInteractive(ctx, "google", identity.NewGoogleRequest(m.scopes))
}

func (m *Manager) loginInteractive(ctx context.Context, path string, req identity.CredentialRequest) error {
	m.mu.Lock()
	if m.loginInFlight {
		m.mu.Unlock()
		return errors.Wrap(LoginInProgressErr, "[Manager.loginInteractive]")
	}
	m.loginInFlight = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.loginInFlight = false
		m.mu.Unlock()
	}()

	log := m.log.With().Str("login_id", uuid.New().String()).Str("path", path).Logger()

	// The provider refuses a new interaction while it believes one is still
	// running; a marker left behind by an aborted attempt blocks login.
	if err := m.store.Delete(credstore.InteractionStatusKey); err != nil {
		log.Warn().Err(err).Msg("failed to clear interaction marker")
	}

	result, err := m.gateway.LoginInteractive(ctx, req)
	if err != nil {
		// The provider may leave the marker set when the popup is
		// dismissed mid-flow.
		if derr := m.store.Delete(credstore.InteractionStatusKey); derr != nil {
			log.Warn().Err(derr).Msg("failed to clear interaction marker")
		}
		log.Warn().Err(err).Msg("interactive login failed")
		return errors.Wrapf(classifyLoginError(err), "[Manager.loginInteractive] %v", err)
	}
	if result == nil || result.Account.ID == "" {
		return errors.Wrap(ProviderErr, "[Manager.loginInteractive] provider returned no account")
	}

	account := result.Account
	m.setSession(Session{Status: StatusAuthenticated, Account: &account, EstablishedAt: m.nowTime()})
	log.Info().Str("account_id", account.ID).Msg("login succeeded")
	return nil
}

// classifyLoginError maps a provider failure to the typed errors the login
// surface exposes.
func classifyLoginError(err error) error {
	switch identity.CodeOf(err) {
	case identity.CodeUserCancelled:
		return UserCancelledErr
	case identity.CodePopupBlocked:
		return PopupBlockedErr
	}
	return ProviderErr
}

// GetValidCredential returns a currently valid access token for the given
// scopes (the manager's default scopes when none are given). Silent renewal
// is tried first; interactive renewal exactly once after that. When both fail
// the session is terminated and SessionExpiredErr is returned.
func (m *Manager) GetValidCredential(ctx context.Context, scopes []string) (string, error) {
	m.mu.Lock()
	if m.session.Status != StatusAuthenticated {
		m.mu.Unlock()
		return "", errors.Wrap(NotAuthenticatedErr, "[Manager.GetValidCredential]")
	}
	account := *m.session.Account
	m.mu.Unlock()

	if len(scopes) == 0 {
		scopes = m.scopes
	}
	req := identity.NewSilentRequest(scopes, account)

	result, silentErr := m.gateway.AcquireTokenSilent(ctx, req)
	if silentErr == nil {
		return result.AccessToken, nil
	}
	m.log.Debug().Err(silentErr).Msg("silent renewal failed, trying interactive renewal")

	result, interactiveErr := m.gateway.AcquireTokenInteractive(ctx, req)
	if interactiveErr == nil {
		return result.AccessToken, nil
	}

	m.log.Warn().
		AnErr("silent_error", silentErr).
		AnErr("interactive_error", interactiveErr).
		Msg("credential renewal exhausted, ending session")
	m.Logout(ctx)
	return "", errors.Wrap(SessionExpiredErr, "[Manager.GetValidCredential]")
}

// Logout tears the session down. The local state reset is authoritative:
// provider cleanup failures are logged and never propagated.
func (m *Manager) Logout(ctx context.Context) {
	// The intent flag must be durable before provider cleanup starts so
	// that a racing redirect completion still resolves to a logged-out
	// state.
	if err := m.store.Set(credstore.IntentionalLogoutKey, "true"); err != nil {
		m.log.Error().Err(err).Msg("failed to record logout intent")
	}

	accounts, err := m.gateway.ListAccounts(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("account enumeration failed during logout")
	}
	for _, account := range accounts {
		if err := m.gateway.ClearAccount(ctx, account); err != nil {
			m.log.Warn().Err(err).Str("account_id", account.ID).Msg("failed to clear provider account")
		}
	}

	if err := m.store.Clear(); err != nil {
		m.log.Warn().Err(err).Msg("failed to clear credential store")
	}
	// Clear wipes the intent flag with everything else; restore it so the
	// next initialization still honours this logout.
	if err := m.store.Set(credstore.IntentionalLogoutKey, "true"); err != nil {
		m.log.Error().Err(err).Msg("failed to restore logout intent")
	}

	m.setSession(Session{Status: StatusUnauthenticated})
	m.log.Info().Msg("logged out")
}

func (m *Manager) setSession(session Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session
}
