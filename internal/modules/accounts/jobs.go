package accounts

import (
	"context"
	"time"
)

// SessionSweepJob deactivates accounts whose broker session has expired.
type SessionSweepJob struct {
	service *Service
}

// NewSessionSweepJob creates a new session sweep job
func NewSessionSweepJob(service *Service) *SessionSweepJob {
	return &SessionSweepJob{service: service}
}

// Run executes the sweep
func (j *SessionSweepJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := j.service.SweepExpiredSessions(ctx)
	return err
}

// Name returns the job name for scheduler
func (j *SessionSweepJob) Name() string {
	return "session_sweep"
}
