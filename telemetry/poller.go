package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/incasautomation/telemetrix/authsession"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	defaultInterval    = 5 * time.Second
	defaultLogoutDelay = 2 * time.Second
	requestTimeout     = 10 * time.Second
)

// CredentialSource is the slice of the session manager the poller depends
// on. The poller never mutates session state directly; session termination
// goes through Logout.
type CredentialSource interface {
	GetValidCredential(ctx context.Context, scopes []string) (string, error)
	Logout(ctx context.Context)
	Status() authsession.Status
}

// Poller drives the fixed-interval refresh loop. Fetches run sequentially on
// one goroutine; a tick that fires while a fetch is still in flight is
// dropped by the ticker rather than stacking requests.
type Poller struct {
	source      CredentialSource
	endpoint    string
	scopes      []string
	client      *http.Client
	interval    time.Duration
	logoutDelay time.Duration
	log         zerolog.Logger
	nowTime     func() time.Time

	mu       sync.Mutex
	snapshot Snapshot
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// PollerOption modifies the Poller instance.
type PollerOption func(*Poller)

// WithInterval sets the poll interval.
func WithInterval(interval time.Duration) PollerOption {
	return func(p *Poller) {
		p.interval = interval
	}
}

// WithLogoutDelay sets how long an authentication failure stays visible
// before the session is terminated. Zero means immediate termination.
func WithLogoutDelay(delay time.Duration) PollerOption {
	return func(p *Poller) {
		p.logoutDelay = delay
	}
}

// WithHTTPClient replaces the default fetch client.
func WithHTTPClient(client *http.Client) PollerOption {
	return func(p *Poller) {
		p.client = client
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) PollerOption {
	return func(p *Poller) {
		p.nowTime = nowFunc
	}
}

// WithLogger sets the logger used for poll cycle events.
func WithLogger(log zerolog.Logger) PollerOption {
	return func(p *Poller) {
		p.log = log
	}
}

// NewPoller initializes a new Poller fetching the given endpoint with
// credentials for the given scopes.
func NewPoller(source CredentialSource, endpoint string, scopes []string, options ...PollerOption) (*Poller, error) {
	if source == nil {
		return nil, errors.New("[NewPoller] credential source is required")
	}
	if endpoint == "" {
		return nil, errors.New("[NewPoller] endpoint is required")
	}

	p := &Poller{
		source:      source,
		endpoint:    endpoint,
		scopes:      append([]string(nil), scopes...),
		client:      newHTTPClient(),
		interval:    defaultInterval,
		logoutDelay: defaultLogoutDelay,
		log:         zerolog.Nop(),
		nowTime:     time.Now,
	}

	for _, opt := range options {
		opt(p)
	}

	if p.interval <= 0 {
		return nil, errors.New("[NewPoller] interval must be positive")
	}
	return p, nil
}

// newHTTPClient builds the fetch client. Transport-level retries are
// disabled: the poll interval is the retry policy.
func newHTTPClient() *http.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.Logger = nil
	client.HTTPClient.Timeout = requestTimeout
	return client.StandardClient()
}

// Snapshot returns a copy of the current snapshot.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	snapshot := p.snapshot
	if p.snapshot.Status != nil {
		status := *p.snapshot.Status
		snapshot.Status = &status
	}
	return snapshot
}

// Running reports whether the refresh loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Start performs one immediate fetch and then refreshes at the configured
// interval until Stop is called, the context ends, or an authentication
// failure terminates the session.
func (p *Poller) Start(ctx context.Context) error {
	if p.source.Status() != authsession.StatusAuthenticated {
		return errors.New("[Poller.Start] session is not authenticated")
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("[Poller.Start] already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	stopCh := p.stopCh
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx, stopCh)
	return nil
}

// Stop cancels the refresh loop. Idempotent; when it returns no further
// fetch will be initiated, though a fetch already in flight may complete.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopCh == nil {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.stopCh = nil
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, stopCh chan struct{}) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	if done := p.cycle(ctx, stopCh); done {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := p.cycle(ctx, stopCh); done {
				return
			}
		}
	}
}

// cycle runs one fetch and applies its result. It reports whether the loop
// must end, either because the session is gone or because the fetch hit an
// authentication failure.
func (p *Poller) cycle(ctx context.Context, stopCh chan struct{}) bool {
	raw, status, err := p.fetch(ctx)

	if p.source.Status() != authsession.StatusAuthenticated {
		p.log.Debug().Msg("session ended mid-fetch, result discarded")
		return true
	}

	p.apply(raw, status, err)

	if !errors.Is(err, AuthExpiredErr) {
		return false
	}

	// Leave the expiry visible for a moment before tearing the session
	// down.
	if p.logoutDelay > 0 {
		timer := time.NewTimer(p.logoutDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		case <-stopCh:
			return true
		}
	}
	p.log.Info().Msg("telemetry credential rejected, ending session")
	p.source.Logout(ctx)
	return true
}

// apply replaces the snapshot on success; on failure only the classified
// error is recorded and the last good data stays visible.
func (p *Poller) apply(raw json.RawMessage, status *MachineStatus, err error) {
	if err != nil {
		p.mu.Lock()
		p.snapshot.Err = err
		p.mu.Unlock()
		p.log.Warn().Err(err).Msg("poll cycle failed")
		return
	}

	p.mu.Lock()
	p.snapshot = Snapshot{Raw: raw, Status: status, FetchedAt: p.nowTime()}
	p.mu.Unlock()
	p.log.Debug().Str("device_id", status.DeviceID).Int("bag_count", status.BagCount).Msg("snapshot updated")
}

func (p *Poller) fetch(ctx context.Context) (json.RawMessage, *MachineStatus, error) {
	token, err := p.source.GetValidCredential(ctx, p.scopes)
	if err != nil {
		return nil, nil, errors.Wrapf(TransientFetchErr, "credential acquisition failed: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return nil, nil, errors.Wrapf(TransientFetchErr, "building request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, nil, errors.Wrapf(TransientFetchErr, "request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, nil, errors.Wrap(AuthExpiredErr, "telemetry endpoint returned 401")
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, nil, errors.Wrapf(TransientFetchErr, "telemetry endpoint returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, errors.Wrapf(TransientFetchErr, "reading response: %v", err)
	}
	var status MachineStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, nil, errors.Wrapf(TransientFetchErr, "malformed payload: %v", err)
	}
	return body, &status, nil
}
