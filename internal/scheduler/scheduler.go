// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// ErrorSink receives job failures for the event stream. Satisfied by
// the events manager.
type ErrorSink interface {
	EmitError(module string, err error, context map[string]interface{})
}

// JobStatus is the run history of one registered job.
type JobStatus struct {
	Name           string    `json:"name"`
	Schedule       string    `json:"schedule"`
	Runs           int       `json:"runs"`
	Failures       int       `json:"failures"`
	LastRun        time.Time `json:"last_run"`
	LastDurationMS int64     `json:"last_duration_ms"`
	LastError      string    `json:"last_error,omitempty"`
}

// Scheduler manages background jobs and tracks their run history.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu    sync.Mutex
	sink  ErrorSink
	stats map[string]*JobStatus
}

// New creates a new scheduler
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:  cron.New(),
		log:   log.With().Str("component", "scheduler").Logger(),
		stats: make(map[string]*JobStatus),
	}
}

// SetErrorSink routes job failures onto the event stream. Wired after
// construction because the event manager comes up later in wiring.
func (s *Scheduler) SetErrorSink(sink ErrorSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "*/5 * * * *"   - Every 5 minutes
//   - "@hourly"       - Every hour
//   - "@every 30s"    - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.runJob(job)
	})

	if err != nil {
		return err
	}

	s.mu.Lock()
	s.stats[job.Name()] = &JobStatus{Name: job.Name(), Schedule: schedule}
	s.mu.Unlock()

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.runJob(job)
}

// Jobs returns the status of every registered job, sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	statuses := make([]JobStatus, 0, len(s.stats))
	for _, status := range s.stats {
		statuses = append(statuses, *status)
	}
	s.mu.Unlock()

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Name < statuses[j].Name
	})
	return statuses
}

func (s *Scheduler) runJob(job Job) error {
	s.log.Debug().Str("job", job.Name()).Msg("Running job")

	start := time.Now()
	err := job.Run()
	elapsed := time.Since(start)

	s.mu.Lock()
	status, ok := s.stats[job.Name()]
	if !ok {
		status = &JobStatus{Name: job.Name()}
		s.stats[job.Name()] = status
	}
	status.Runs++
	status.LastRun = start
	status.LastDurationMS = elapsed.Milliseconds()
	if err != nil {
		status.Failures++
		status.LastError = err.Error()
	} else {
		status.LastError = ""
	}
	sink := s.sink
	s.mu.Unlock()

	if err != nil {
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Dur("duration", elapsed).
			Msg("Job failed")
		if sink != nil {
			sink.EmitError("scheduler", err, map[string]interface{}{
				"job":         job.Name(),
				"duration_ms": elapsed.Milliseconds(),
			})
		}
		return err
	}

	s.log.Debug().
		Str("job", job.Name()).
		Dur("duration", elapsed).
		Msg("Job completed")
	return nil
}
