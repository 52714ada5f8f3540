package handshake

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ravitejakamalapuram/copytradepro/internal/events"
	"github.com/ravitejakamalapuram/copytradepro/internal/taxonomy"

	"github.com/ravitejakamalapuram/copytradepro/internal/domain"
)

// Options are the handshake timing knobs. Tests shrink these to
// milliseconds; production values come from config.
type Options struct {
	// PollInterval is how often the auth surface is polled for its
	// redirect URL.
	PollInterval time.Duration
	// CrossOriginAfter is how long location reads may keep failing
	// cross-origin before the handshake gives up on polling and asks
	// for manual code entry.
	CrossOriginAfter time.Duration
	// OverallTimeout bounds the whole handshake.
	OverallTimeout time.Duration
}

// DefaultOptions returns the production timing: poll every second,
// declare cross-origin after 5 seconds, give up after 5 minutes.
func DefaultOptions() Options {
	return Options{
		PollInterval:     time.Second,
		CrossOriginAfter: 5 * time.Second,
		OverallTimeout:   5 * time.Minute,
	}
}

// Registry owns all in-flight handshakes, at most one per account.
type Registry struct {
	opener       SurfaceOpener
	staging      *Staging
	eventManager *events.Manager
	opts         Options
	publicOrigin string
	log          zerolog.Logger

	mu     sync.Mutex
	active map[string]*Handshake
}

// NewRegistry creates a handshake registry.
func NewRegistry(opener SurfaceOpener, staging *Staging, eventManager *events.Manager, opts Options, publicOrigin string, log zerolog.Logger) *Registry {
	return &Registry{
		opener:       opener,
		staging:      staging,
		eventManager: eventManager,
		opts:         opts,
		publicOrigin: strings.TrimRight(publicOrigin, "/"),
		log:          log.With().Str("service", "handshake").Logger(),
		active:       make(map[string]*Handshake),
	}
}

// Begin opens the auth surface and starts a handshake for the
// account. Returns ErrHandshakeInFlight when one is already running,
// and a POPUP_BLOCKED-classified error when the surface cannot open.
func (r *Registry) Begin(accountID, authURL string, staged StagedAuth) (*Handshake, error) {
	r.mu.Lock()
	if _, exists := r.active[accountID]; exists {
		r.mu.Unlock()
		return nil, ErrHandshakeInFlight
	}

	h := &Handshake{
		ID:        uuid.New().String(),
		AccountID: accountID,
		StartedAt: time.Now(),
		state:     StateOpened,
		signal:    make(chan string, 1),
		cancelled: make(chan struct{}),
		done:      make(chan Result, 1),
	}
	r.active[accountID] = h
	r.mu.Unlock()

	// OPENED is announced only once the surface actually opened, so a
	// blocked popup never shows up on the event stream as a handshake
	// that silently vanishes.
	surface, err := r.opener.Open(authURL)
	if err != nil {
		r.log.Warn().
			Str("account_id", accountID).
			Err(err).
			Msg("Auth surface could not be opened")
		r.remove(accountID)
		entry := taxonomy.HandshakeEntry(domain.TaxonomyPopupBlocked)
		return nil, &HandshakeError{Entry: entry, Err: err}
	}
	h.surface = surface
	r.emitTransition(h, "", StateOpened, "")

	if err := r.staging.Put(stagingKey(accountID), staged); err != nil {
		r.log.Error().Str("account_id", accountID).Err(err).Msg("Failed to stage handshake context")
	}

	go r.run(h)
	return h, nil
}

// Get returns the in-flight handshake for an account.
func (r *Registry) Get(accountID string) (*Handshake, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.active[accountID]
	return h, ok
}

// Staged returns the staged auth context for an account's handshake.
func (r *Registry) Staged(accountID string) (StagedAuth, bool) {
	var staged StagedAuth
	found, err := r.staging.Get(stagingKey(accountID), &staged)
	if err != nil {
		r.log.Error().Str("account_id", accountID).Err(err).Msg("Failed to decode staged handshake context")
		return StagedAuth{}, false
	}
	return staged, found
}

// Signal delivers an auth code relayed from the redirect callback or
// the dashboard's signal socket. The origin must match the configured
// public origin.
func (r *Registry) Signal(accountID, code, origin string) error {
	if !r.OriginAllowed(origin) {
		return ErrOriginMismatch
	}
	h, ok := r.Get(accountID)
	if !ok {
		return ErrHandshakeFinished
	}
	return h.SubmitCode(code)
}

// OriginAllowed reports whether a signal origin is acceptable. An
// empty configured origin allows everything (dev mode).
func (r *Registry) OriginAllowed(origin string) bool {
	if r.publicOrigin == "" {
		return true
	}
	return strings.TrimRight(origin, "/") == r.publicOrigin
}

// CancelStale cancels handshakes older than maxAge. Used by the
// maintenance scheduler as a backstop; the per-handshake timeout
// normally fires first.
func (r *Registry) CancelStale(maxAge time.Duration) int {
	r.mu.Lock()
	var stale []*Handshake
	cutoff := time.Now().Add(-maxAge)
	for _, h := range r.active {
		if h.StartedAt.Before(cutoff) {
			stale = append(stale, h)
		}
	}
	r.mu.Unlock()

	for _, h := range stale {
		h.Cancel()
	}
	return len(stale)
}

// Snapshot describes one in-flight handshake for the API.
type Snapshot struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"started_at"`
}

// Active returns a snapshot of every in-flight handshake, oldest first.
func (r *Registry) Active() []Snapshot {
	r.mu.Lock()
	snapshots := make([]Snapshot, 0, len(r.active))
	for _, h := range r.active {
		snapshots = append(snapshots, Snapshot{
			ID:        h.ID,
			AccountID: h.AccountID,
			State:     h.State(),
			StartedAt: h.StartedAt,
		})
	}
	r.mu.Unlock()

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].StartedAt.Before(snapshots[j].StartedAt)
	})
	return snapshots
}

// ActiveCount returns the number of in-flight handshakes.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// run is the handshake state machine. It polls the surface, listens
// for signalled codes and cancellation, and finishes exactly once.
func (r *Registry) run(h *Handshake) {
	r.transition(h, StateAwaitingCode, "")

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	timeout := time.NewTimer(r.opts.OverallTimeout)
	defer timeout.Stop()

	var crossOriginSince time.Time

	for {
		select {
		case <-ticker.C:
			location, err := h.surface.Location()
			switch {
			case err == nil:
				crossOriginSince = time.Time{}
				if code := extractAuthCode(location); code != "" {
					r.finish(h, Result{State: StateCodeReceived, AuthCode: code})
					return
				}

			case err == ErrCrossOrigin:
				if crossOriginSince.IsZero() {
					crossOriginSince = time.Now()
				}
				if h.State() == StateAwaitingCode && time.Since(crossOriginSince) >= r.opts.CrossOriginAfter {
					r.transition(h, StateCrossOriginBlocked, "surface navigated cross-origin")
				}

			case err == ErrSurfaceClosed:
				// User closed the window without completing auth.
				entry := taxonomy.HandshakeEntry(domain.TaxonomyCancelled)
				r.finish(h, Result{State: StateCancelled, Failure: &entry})
				return

			default:
				r.log.Debug().
					Str("handshake_id", h.ID).
					Err(err).
					Msg("Surface location read failed")
			}

		case code := <-h.signal:
			r.finish(h, Result{State: StateCodeReceived, AuthCode: code})
			return

		case <-h.cancelled:
			entry := taxonomy.HandshakeEntry(domain.TaxonomyCancelled)
			r.finish(h, Result{State: StateCancelled, Failure: &entry})
			return

		case <-timeout.C:
			entry := taxonomy.HandshakeEntry(domain.TaxonomyTimedOut)
			r.finish(h, Result{State: StateTimedOut, Failure: &entry})
			return
		}
	}
}

// finish moves the handshake to its terminal state, closes the
// surface, clears staged context on failure, and delivers the result.
func (r *Registry) finish(h *Handshake, result Result) {
	from := h.State()
	h.setState(result.State)
	h.closeSurface()

	// Staged credentials survive CODE_RECEIVED: the OAuth completion
	// still needs them. Every other terminal state clears them.
	if result.State != StateCodeReceived {
		r.staging.Delete(stagingKey(h.AccountID))
	}

	r.remove(h.AccountID)
	r.emitTransition(h, from, result.State, "")
	h.done <- result
}

// ClearStaged drops the staged context for an account, called after
// the OAuth exchange consumed it.
func (r *Registry) ClearStaged(accountID string) {
	r.staging.Delete(stagingKey(accountID))
}

func (r *Registry) transition(h *Handshake, to State, reason string) {
	from := h.State()
	h.setState(to)
	r.emitTransition(h, from, to, reason)
}

func (r *Registry) emitTransition(h *Handshake, from, to State, reason string) {
	r.log.Info().
		Str("handshake_id", h.ID).
		Str("account_id", h.AccountID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Handshake state changed")
	r.eventManager.EmitTyped(events.HandshakeStateChanged, "handshake", &events.HandshakeStateChangedData{
		HandshakeID: h.ID,
		AccountID:   h.AccountID,
		FromState:   string(from),
		ToState:     string(to),
		Reason:      reason,
	})
}

func (r *Registry) remove(accountID string) {
	r.mu.Lock()
	delete(r.active, accountID)
	r.mu.Unlock()
}

func stagingKey(accountID string) string {
	return "handshake:" + accountID
}

// HandshakeError carries a classified handshake failure.
type HandshakeError struct {
	Entry domain.ErrorTaxonomyEntry
	Err   error
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return e.Entry.UserMessage + ": " + e.Err.Error()
	}
	return e.Entry.UserMessage
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}
