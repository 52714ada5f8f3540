package handshake

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravitejakamalapuram/copytradepro/internal/domain"
	"github.com/ravitejakamalapuram/copytradepro/internal/events"
)

// fakeSurface simulates the popup window. Location returns whatever
// the test last set.
type fakeSurface struct {
	mu         sync.Mutex
	location   string
	locErr     error
	closeCalls int32
}

func (s *fakeSurface) set(location string, err error) {
	s.mu.Lock()
	s.location = location
	s.locErr = err
	s.mu.Unlock()
}

func (s *fakeSurface) Location() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location, s.locErr
}

func (s *fakeSurface) Close() error {
	atomic.AddInt32(&s.closeCalls, 1)
	return nil
}

type fakeOpener struct {
	surface *fakeSurface
	err     error
	opened  []string
}

func (o *fakeOpener) Open(authURL string) (Surface, error) {
	o.opened = append(o.opened, authURL)
	if o.err != nil {
		return nil, o.err
	}
	return o.surface, nil
}

func testOptions() Options {
	return Options{
		PollInterval:     2 * time.Millisecond,
		CrossOriginAfter: 10 * time.Millisecond,
		OverallTimeout:   500 * time.Millisecond,
	}
}

func newTestRegistry(t *testing.T, opener SurfaceOpener, opts Options) *Registry {
	t.Helper()
	bus := events.NewBus(zerolog.Nop())
	manager := events.NewManager(bus, zerolog.Nop())
	return NewRegistry(opener, NewStaging(), manager, opts, "http://localhost:3000", zerolog.Nop())
}

func waitForResult(t *testing.T, h *Handshake) Result {
	t.Helper()
	select {
	case result := <-h.Done():
		return result
	case <-time.After(2 * time.Second):
		t.Fatal("handshake did not finish in time")
		return Result{}
	}
}

func TestBeginRejectsSecondHandshakeForSameAccount(t *testing.T) {
	surface := &fakeSurface{locErr: ErrCrossOrigin}
	registry := newTestRegistry(t, &fakeOpener{surface: surface}, testOptions())

	first, err := registry.Begin("acc-1", "https://broker.example/auth", StagedAuth{AccountID: "acc-1"})
	require.NoError(t, err)
	defer first.Cancel()

	_, err = registry.Begin("acc-1", "https://broker.example/auth", StagedAuth{AccountID: "acc-1"})
	assert.ErrorIs(t, err, ErrHandshakeInFlight)

	// A different account is unaffected
	second, err := registry.Begin("acc-2", "https://broker.example/auth", StagedAuth{AccountID: "acc-2"})
	require.NoError(t, err)
	second.Cancel()
}

func TestBeginPopupBlocked(t *testing.T) {
	registry := newTestRegistry(t, &fakeOpener{err: errors.New("blocked by browser")}, testOptions())

	_, err := registry.Begin("acc-1", "https://broker.example/auth", StagedAuth{})
	require.Error(t, err)

	var hsErr *HandshakeError
	require.ErrorAs(t, err, &hsErr)
	assert.Equal(t, domain.TaxonomyPopupBlocked, hsErr.Entry.Kind)

	// The failed attempt does not count as in flight
	assert.Equal(t, 0, registry.ActiveCount())
	_, err = registry.Begin("acc-1", "https://broker.example/auth", StagedAuth{})
	assert.Error(t, err) // opener still failing, but not ErrHandshakeInFlight
	assert.NotErrorIs(t, err, ErrHandshakeInFlight)
}

func TestBeginPopupBlockedEmitsNoTransitions(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	manager := events.NewManager(bus, zerolog.Nop())
	registry := NewRegistry(&fakeOpener{err: errors.New("blocked by browser")},
		NewStaging(), manager, testOptions(), "http://localhost:3000", zerolog.Nop())

	transitions := 0
	bus.Subscribe(events.HandshakeStateChanged, func(event *events.Event) {
		transitions++
	})

	_, err := registry.Begin("acc-1", "https://broker.example/auth", StagedAuth{})
	require.Error(t, err)

	// A blocked popup never reaches the event stream: no OPENED event
	// for a handshake that would then silently vanish.
	assert.Equal(t, 0, transitions)
}

func TestPollingPicksUpRedirectCode(t *testing.T) {
	surface := &fakeSurface{locErr: ErrCrossOrigin}
	registry := newTestRegistry(t, &fakeOpener{surface: surface}, testOptions())

	h, err := registry.Begin("acc-1", "https://broker.example/auth", StagedAuth{AccountID: "acc-1", BrokerKind: "fyers"})
	require.NoError(t, err)

	surface.set("http://localhost:3000/oauth/callback?code=abc123&state=xyz", nil)

	result := waitForResult(t, h)
	assert.Equal(t, StateCodeReceived, result.State)
	assert.Equal(t, "abc123", result.AuthCode)
	assert.Nil(t, result.Failure)

	// Surface closed exactly once
	assert.Equal(t, int32(1), atomic.LoadInt32(&surface.closeCalls))

	// Staged context survives until the OAuth exchange consumes it
	staged, found := registry.Staged("acc-1")
	require.True(t, found)
	assert.Equal(t, "fyers", staged.BrokerKind)

	registry.ClearStaged("acc-1")
	_, found = registry.Staged("acc-1")
	assert.False(t, found)

	assert.Equal(t, 0, registry.ActiveCount())
}

func TestCrossOriginBlockThenManualCode(t *testing.T) {
	surface := &fakeSurface{locErr: ErrCrossOrigin}
	registry := newTestRegistry(t, &fakeOpener{surface: surface}, testOptions())

	h, err := registry.Begin("acc-1", "https://broker.example/auth", StagedAuth{AccountID: "acc-1"})
	require.NoError(t, err)

	// Cross-origin reads persist long enough to trip the block
	require.Eventually(t, func() bool {
		return h.State() == StateCrossOriginBlocked
	}, time.Second, time.Millisecond)

	require.NoError(t, h.SubmitCode("manual-code-1"))

	result := waitForResult(t, h)
	assert.Equal(t, StateCodeReceived, result.State)
	assert.Equal(t, "manual-code-1", result.AuthCode)
}

func TestBriefCrossOriginDoesNotBlock(t *testing.T) {
	surface := &fakeSurface{locErr: ErrCrossOrigin}
	opts := testOptions()
	opts.CrossOriginAfter = time.Hour // never trips
	registry := newTestRegistry(t, &fakeOpener{surface: surface}, opts)

	h, err := registry.Begin("acc-1", "https://broker.example/auth", StagedAuth{})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateAwaitingCode, h.State())

	surface.set("http://localhost:3000/oauth/callback?request_token=tok-1", nil)
	result := waitForResult(t, h)
	assert.Equal(t, "tok-1", result.AuthCode)
}

func TestHandshakeTimesOut(t *testing.T) {
	surface := &fakeSurface{locErr: ErrCrossOrigin}
	opts := testOptions()
	opts.OverallTimeout = 30 * time.Millisecond
	registry := newTestRegistry(t, &fakeOpener{surface: surface}, opts)

	h, err := registry.Begin("acc-1", "https://broker.example/auth", StagedAuth{AccountID: "acc-1"})
	require.NoError(t, err)

	result := waitForResult(t, h)
	assert.Equal(t, StateTimedOut, result.State)
	require.NotNil(t, result.Failure)
	assert.Equal(t, domain.TaxonomyTimedOut, result.Failure.Kind)

	// Timed-out handshakes clear their staged context
	_, found := registry.Staged("acc-1")
	assert.False(t, found)
	assert.Equal(t, int32(1), atomic.LoadInt32(&surface.closeCalls))
}

func TestCancelFinishesHandshake(t *testing.T) {
	surface := &fakeSurface{locErr: ErrCrossOrigin}
	registry := newTestRegistry(t, &fakeOpener{surface: surface}, testOptions())

	h, err := registry.Begin("acc-1", "https://broker.example/auth", StagedAuth{AccountID: "acc-1"})
	require.NoError(t, err)

	h.Cancel()
	h.Cancel() // idempotent

	result := waitForResult(t, h)
	assert.Equal(t, StateCancelled, result.State)
	require.NotNil(t, result.Failure)
	assert.Equal(t, domain.TaxonomyCancelled, result.Failure.Kind)
	assert.Equal(t, 0, registry.ActiveCount())
}

func TestUserClosingSurfaceCancels(t *testing.T) {
	surface := &fakeSurface{locErr: ErrSurfaceClosed}
	registry := newTestRegistry(t, &fakeOpener{surface: surface}, testOptions())

	h, err := registry.Begin("acc-1", "https://broker.example/auth", StagedAuth{})
	require.NoError(t, err)

	result := waitForResult(t, h)
	assert.Equal(t, StateCancelled, result.State)
}

func TestSubmitCodeAfterFinish(t *testing.T) {
	surface := &fakeSurface{locErr: ErrCrossOrigin}
	registry := newTestRegistry(t, &fakeOpener{surface: surface}, testOptions())

	h, err := registry.Begin("acc-1", "https://broker.example/auth", StagedAuth{})
	require.NoError(t, err)

	h.Cancel()
	waitForResult(t, h)

	assert.ErrorIs(t, h.SubmitCode("late-code"), ErrHandshakeFinished)
}

func TestSignalOriginCheck(t *testing.T) {
	surface := &fakeSurface{locErr: ErrCrossOrigin}
	registry := newTestRegistry(t, &fakeOpener{surface: surface}, testOptions())

	h, err := registry.Begin("acc-1", "https://broker.example/auth", StagedAuth{})
	require.NoError(t, err)
	defer h.Cancel()

	err = registry.Signal("acc-1", "code-1", "https://evil.example")
	assert.ErrorIs(t, err, ErrOriginMismatch)

	require.NoError(t, registry.Signal("acc-1", "code-1", "http://localhost:3000"))
	result := waitForResult(t, h)
	assert.Equal(t, "code-1", result.AuthCode)
}

func TestSignalUnknownAccount(t *testing.T) {
	registry := newTestRegistry(t, &fakeOpener{surface: &fakeSurface{}}, testOptions())
	err := registry.Signal("acc-missing", "code", "http://localhost:3000")
	assert.ErrorIs(t, err, ErrHandshakeFinished)
}

func TestCancelStale(t *testing.T) {
	surface := &fakeSurface{locErr: ErrCrossOrigin}
	registry := newTestRegistry(t, &fakeOpener{surface: surface}, testOptions())

	h, err := registry.Begin("acc-1", "https://broker.example/auth", StagedAuth{})
	require.NoError(t, err)

	assert.Equal(t, 0, registry.CancelStale(time.Hour))

	cancelled := registry.CancelStale(0)
	assert.Equal(t, 1, cancelled)
	result := waitForResult(t, h)
	assert.Equal(t, StateCancelled, result.State)
}

func TestExtractAuthCode(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://localhost:3000/cb?code=abc", "abc"},
		{"http://localhost:3000/cb?auth_code=def", "def"},
		{"http://localhost:3000/cb?request_token=ghi&state=s", "ghi"},
		{"http://localhost:3000/cb?state=s", ""},
		{"://not-a-url", ""},
		{"", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, extractAuthCode(tc.url), tc.url)
	}
}

func TestStagingRoundTrip(t *testing.T) {
	staging := NewStaging()

	staged := StagedAuth{
		AccountID:   "acc-1",
		BrokerKind:  "shoonya",
		Credentials: map[string]string{"user_id": "FA0001", "api_key": "k"},
		StartedAt:   time.Now().Truncate(time.Second),
	}
	require.NoError(t, staging.Put("handshake:acc-1", staged))
	assert.Equal(t, 1, staging.Len())

	var decoded StagedAuth
	found, err := staging.Get("handshake:acc-1", &decoded)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, staged.AccountID, decoded.AccountID)
	assert.Equal(t, staged.Credentials, decoded.Credentials)

	staging.Delete("handshake:acc-1")
	found, _ = staging.Get("handshake:acc-1", &decoded)
	assert.False(t, found)
	assert.Equal(t, 0, staging.Len())
}
