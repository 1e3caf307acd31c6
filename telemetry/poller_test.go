package telemetry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/incasautomation/telemetrix/authsession"
	"github.com/incasautomation/telemetrix/telemetry"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const (
	testScope    = "758ff3e9-e6bd-4838-90d0-50cf3ec88387/.default"
	testToken    = "access-token-1"
	testInterval = 15 * time.Millisecond
	waitFor      = 3 * time.Second
	tick         = 2 * time.Millisecond
)

// stubSource stands in for the session manager.
type stubSource struct {
	mu      sync.Mutex
	status  authsession.Status
	token   string
	err     error
	logouts int
}

func newStubSource() *stubSource {
	return &stubSource{status: authsession.StatusAuthenticated, token: testToken}
}

func (s *stubSource) GetValidCredential(_ context.Context, _ []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

func (s *stubSource) Logout(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logouts++
	s.status = authsession.StatusUnauthenticated
}

func (s *stubSource) Status() authsession.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *stubSource) setStatus(status authsession.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *stubSource) Logouts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logouts
}

type scriptedResponse struct {
	code int
	body string
}

// scriptedServer serves the given responses in order, repeating the last one
// once the script runs out, and counts the requests it saw.
type scriptedServer struct {
	*httptest.Server
	mu        sync.Mutex
	responses []scriptedResponse
	requests  int
	lastAuth  string
}

func newScriptedServer(t *testing.T, responses ...scriptedResponse) *scriptedServer {
	t.Helper()

	s := &scriptedServer{responses: responses}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.lastAuth = r.Header.Get("Authorization")
		index := s.requests
		s.requests++
		if index >= len(s.responses) {
			index = len(s.responses) - 1
		}
		response := s.responses[index]
		s.mu.Unlock()

		w.WriteHeader(response.code)
		_, _ = w.Write([]byte(response.body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *scriptedServer) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *scriptedServer) LastAuth() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth
}

func newTestPoller(t *testing.T, source telemetry.CredentialSource, endpoint string, options ...telemetry.PollerOption) *telemetry.Poller {
	t.Helper()

	options = append([]telemetry.PollerOption{telemetry.WithInterval(testInterval)}, options...)
	poller, err := telemetry.NewPoller(source, endpoint, []string{testScope}, options...)
	require.NoError(t, err)
	t.Cleanup(poller.Stop)
	return poller
}

func TestNewPoller_RequiresDependencies(t *testing.T) {
	source := newStubSource()

	_, err := telemetry.NewPoller(nil, "http://example.com", nil)
	require.Error(t, err)

	_, err = telemetry.NewPoller(source, "", nil)
	require.Error(t, err)

	_, err = telemetry.NewPoller(source, "http://example.com", nil, telemetry.WithInterval(0))
	require.Error(t, err)
}

func TestPoller_StartRequiresAuthenticatedSession(t *testing.T) {
	source := newStubSource()
	source.setStatus(authsession.StatusUnauthenticated)
	poller := newTestPoller(t, source, "http://example.com")

	require.Error(t, poller.Start(context.Background()))
	require.False(t, poller.Running())
}

func TestPoller_StartTwiceRejected(t *testing.T) {
	source := newStubSource()
	server := newScriptedServer(t, scriptedResponse{code: http.StatusOK, body: `{"bagCount":1}`})
	poller := newTestPoller(t, source, server.URL)

	require.NoError(t, poller.Start(context.Background()))
	require.Error(t, poller.Start(context.Background()))
}

func TestPoller_FetchSequence(t *testing.T) {
	source := newStubSource()
	server := newScriptedServer(t,
		scriptedResponse{code: http.StatusOK, body: `{"deviceId":"bagger-01","machineState":"running","bagCount":10}`},
		scriptedResponse{code: http.StatusInternalServerError, body: "boom"},
		scriptedResponse{code: http.StatusOK, body: `{"deviceId":"bagger-01","machineState":"running","bagCount":15}`},
	)
	poller := newTestPoller(t, source, server.URL)

	require.NoError(t, poller.Start(context.Background()))

	require.Eventually(t, func() bool {
		s := poller.Snapshot()
		return s.Status != nil && s.Status.BagCount == 10 && s.Err == nil
	}, waitFor, tick, "first fetch should land")

	require.Eventually(t, func() bool {
		s := poller.Snapshot()
		return errors.Is(s.Err, telemetry.TransientFetchErr) && s.Status != nil && s.Status.BagCount == 10
	}, waitFor, tick, "500 should record the error and keep the last good data")

	require.Eventually(t, func() bool {
		s := poller.Snapshot()
		return s.Status != nil && s.Status.BagCount == 15 && s.Err == nil
	}, waitFor, tick, "next success should clear the error and replace the data")

	require.NotZero(t, poller.Snapshot().FetchedAt)
	require.Equal(t, "Bearer "+testToken, server.LastAuth())
	require.Zero(t, source.Logouts(), "transient failures never touch the session")
}

func TestPoller_MalformedPayloadIsTransient(t *testing.T) {
	source := newStubSource()
	server := newScriptedServer(t, scriptedResponse{code: http.StatusOK, body: "not json"})
	poller := newTestPoller(t, source, server.URL)

	require.NoError(t, poller.Start(context.Background()))

	require.Eventually(t, func() bool {
		return errors.Is(poller.Snapshot().Err, telemetry.TransientFetchErr)
	}, waitFor, tick)
	require.Nil(t, poller.Snapshot().Status)
	require.Zero(t, source.Logouts())
}

func TestPoller_UnauthorizedTerminatesSession(t *testing.T) {
	source := newStubSource()
	server := newScriptedServer(t,
		scriptedResponse{code: http.StatusOK, body: `{"deviceId":"bagger-01","bagCount":10}`},
		scriptedResponse{code: http.StatusUnauthorized, body: "expired"},
	)
	poller := newTestPoller(t, source, server.URL, telemetry.WithLogoutDelay(10*time.Millisecond))

	require.NoError(t, poller.Start(context.Background()))

	require.Eventually(t, func() bool {
		return source.Logouts() == 1
	}, waitFor, tick, "401 should log the session out after the delay")

	snapshot := poller.Snapshot()
	require.ErrorIs(t, snapshot.Err, telemetry.AuthExpiredErr)
	require.NotNil(t, snapshot.Status)
	require.Equal(t, 10, snapshot.Status.BagCount, "401 must not discard the last good data")

	require.Eventually(t, func() bool {
		return !poller.Running()
	}, waitFor, tick, "poller must stop once the session is terminated")
}

func TestPoller_StopHaltsFetching(t *testing.T) {
	source := newStubSource()
	server := newScriptedServer(t, scriptedResponse{code: http.StatusOK, body: `{"bagCount":1}`})
	poller := newTestPoller(t, source, server.URL)

	require.NoError(t, poller.Start(context.Background()))
	require.Eventually(t, func() bool {
		return server.Requests() >= 2
	}, waitFor, tick)

	poller.Stop()
	seen := server.Requests()

	time.Sleep(6 * testInterval)
	require.Equal(t, seen, server.Requests(), "no fetch may start after Stop returns")
	require.False(t, poller.Running())

	poller.Stop() // idempotent
}

func TestPoller_CredentialFailureSkipsNetworkCall(t *testing.T) {
	source := newStubSource()
	source.err = errors.New("silent renewal broke")
	server := newScriptedServer(t, scriptedResponse{code: http.StatusOK, body: `{"bagCount":1}`})
	poller := newTestPoller(t, source, server.URL)

	require.NoError(t, poller.Start(context.Background()))

	require.Eventually(t, func() bool {
		return errors.Is(poller.Snapshot().Err, telemetry.TransientFetchErr)
	}, waitFor, tick)
	require.Zero(t, server.Requests(), "failed credential acquisition must skip the fetch")
}

func TestPoller_DiscardsResultWhenSessionEndsMidFetch(t *testing.T) {
	source := newStubSource()

	arrived := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(arrived)
		<-release
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"bagCount":99}`))
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})

	poller := newTestPoller(t, source, server.URL)
	require.NoError(t, poller.Start(context.Background()))

	<-arrived
	source.setStatus(authsession.StatusUnauthenticated)
	close(release)

	require.Eventually(t, func() bool {
		return !poller.Running()
	}, waitFor, tick)

	snapshot := poller.Snapshot()
	require.Nil(t, snapshot.Status, "a result completed after the session ended must be discarded")
	require.Zero(t, snapshot.FetchedAt)
}
