// Package handshake drives the interactive OAuth-style login flow a
// broker account needs before orders can be placed on it. A handshake
// opens an auth surface (a popup on the dashboard), watches it for the
// redirect that carries the auth code, and falls back to manual code
// entry when the surface navigates cross-origin and can no longer be
// read.
package handshake

import (
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/ravitejakamalapuram/copytradepro/internal/domain"
)

// State is the lifecycle state of a handshake.
type State string

const (
	StateOpened             State = "OPENED"
	StateAwaitingCode       State = "AWAITING_CODE"
	StateCrossOriginBlocked State = "CROSS_ORIGIN_BLOCKED"
	StateCodeReceived       State = "CODE_RECEIVED"
	StateTimedOut           State = "TIMED_OUT"
	StateCancelled          State = "CANCELLED"
)

// Terminal reports whether the state ends the handshake.
func (s State) Terminal() bool {
	switch s {
	case StateCodeReceived, StateTimedOut, StateCancelled:
		return true
	}
	return false
}

var (
	// ErrCrossOrigin is returned by Surface.Location while the surface
	// is on a foreign origin and its URL cannot be read.
	ErrCrossOrigin = errors.New("surface location is cross-origin")

	// ErrSurfaceClosed is returned by Surface.Location after the user
	// closed the surface.
	ErrSurfaceClosed = errors.New("surface is closed")

	// ErrHandshakeInFlight is returned when an account already has an
	// active handshake.
	ErrHandshakeInFlight = errors.New("a handshake is already in flight for this account")

	// ErrHandshakeFinished is returned when a code or cancel arrives
	// after the handshake reached a terminal state.
	ErrHandshakeFinished = errors.New("handshake already finished")

	// ErrOriginMismatch is returned when a signal arrives from an
	// origin other than the configured public origin.
	ErrOriginMismatch = errors.New("signal origin does not match the configured public origin")
)

// Surface is the window the user authenticates in. Location returns
// the surface's current URL, ErrCrossOrigin while it is on the
// broker's domain, or ErrSurfaceClosed once the user has closed it.
type Surface interface {
	Location() (string, error)
	Close() error
}

// SurfaceOpener opens an auth surface at the given URL. An error
// means the surface could not be opened at all (popup blocked).
type SurfaceOpener interface {
	Open(authURL string) (Surface, error)
}

// Result is the final outcome of a handshake.
type Result struct {
	State    State
	AuthCode string
	Failure  *domain.ErrorTaxonomyEntry
}

// Handshake is one in-flight authentication attempt for one account.
type Handshake struct {
	ID        string
	AccountID string
	StartedAt time.Time

	mu    sync.RWMutex
	state State

	signal    chan string
	cancelled chan struct{}
	done      chan Result

	cancelOnce sync.Once
	closeOnce  sync.Once
	surface    Surface
}

// State returns the current lifecycle state.
func (h *Handshake) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Done returns a channel that receives the final result exactly once.
func (h *Handshake) Done() <-chan Result {
	return h.done
}

// SubmitCode delivers an auth code to the handshake, either typed in
// manually after a cross-origin block or relayed by the redirect
// callback. It fails once the handshake has finished.
func (h *Handshake) SubmitCode(code string) error {
	if code == "" {
		return errors.New("auth code is empty")
	}
	if h.State().Terminal() {
		return ErrHandshakeFinished
	}
	select {
	case h.signal <- code:
		return nil
	default:
		// A code is already queued; one is enough.
		return nil
	}
}

// Cancel aborts the handshake. Safe to call multiple times and after
// completion.
func (h *Handshake) Cancel() {
	h.cancelOnce.Do(func() {
		close(h.cancelled)
	})
}

// closeSurface closes the auth surface exactly once.
func (h *Handshake) closeSurface() {
	h.closeOnce.Do(func() {
		if h.surface != nil {
			_ = h.surface.Close()
		}
	})
}

func (h *Handshake) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// authCodeParams are the query parameter names brokers use to carry
// the auth code on the redirect URL.
var authCodeParams = []string{"code", "auth_code", "request_token"}

// extractAuthCode pulls the auth code out of a redirect URL. Returns
// "" when the URL carries no recognizable code.
func extractAuthCode(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	query := parsed.Query()
	for _, param := range authCodeParams {
		if value := query.Get(param); value != "" {
			return value
		}
	}
	return ""
}
