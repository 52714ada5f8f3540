package handshake

import "time"

// StaleHandshakeJob cancels handshakes that outlived the overall timeout.
// The state machine times out on its own; this is a backstop for goroutines
// that died without finishing.
type StaleHandshakeJob struct {
	registry *Registry
	maxAge   time.Duration
}

// NewStaleHandshakeJob creates a new stale handshake job
func NewStaleHandshakeJob(registry *Registry, maxAge time.Duration) *StaleHandshakeJob {
	return &StaleHandshakeJob{registry: registry, maxAge: maxAge}
}

// Run cancels handshakes older than maxAge
func (j *StaleHandshakeJob) Run() error {
	j.registry.CancelStale(j.maxAge)
	return nil
}

// Name returns the job name for scheduler
func (j *StaleHandshakeJob) Name() string {
	return "stale_handshake_gc"
}
