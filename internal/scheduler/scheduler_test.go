package scheduler

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	name string
	err  error
	runs int
}

func (j *fakeJob) Run() error {
	j.runs++
	return j.err
}

func (j *fakeJob) Name() string { return j.name }

type recordingSink struct {
	errors  []error
	context []map[string]interface{}
}

func (s *recordingSink) EmitError(module string, err error, context map[string]interface{}) {
	s.errors = append(s.errors, err)
	s.context = append(s.context, context)
}

func TestAddJobRejectsBadSchedule(t *testing.T) {
	sched := New(zerolog.Nop())
	err := sched.AddJob("not a schedule", &fakeJob{name: "bad"})
	assert.Error(t, err)
}

func TestRunNowRecordsStats(t *testing.T) {
	sched := New(zerolog.Nop())
	job := &fakeJob{name: "sweep"}
	require.NoError(t, sched.AddJob("@hourly", job))

	require.NoError(t, sched.RunNow(job))
	require.NoError(t, sched.RunNow(job))

	statuses := sched.Jobs()
	require.Len(t, statuses, 1)
	assert.Equal(t, "sweep", statuses[0].Name)
	assert.Equal(t, "@hourly", statuses[0].Schedule)
	assert.Equal(t, 2, statuses[0].Runs)
	assert.Equal(t, 0, statuses[0].Failures)
	assert.False(t, statuses[0].LastRun.IsZero())
	assert.Empty(t, statuses[0].LastError)
}

func TestRunNowFailureReachesSink(t *testing.T) {
	sched := New(zerolog.Nop())
	sink := &recordingSink{}
	sched.SetErrorSink(sink)

	boom := errors.New("checkpoint failed")
	job := &fakeJob{name: "wal_checkpoint", err: boom}
	require.NoError(t, sched.AddJob("@hourly", job))

	err := sched.RunNow(job)
	assert.ErrorIs(t, err, boom)

	statuses := sched.Jobs()
	require.Len(t, statuses, 1)
	assert.Equal(t, 1, statuses[0].Failures)
	assert.Equal(t, "checkpoint failed", statuses[0].LastError)

	require.Len(t, sink.errors, 1)
	assert.ErrorIs(t, sink.errors[0], boom)
	assert.Equal(t, "wal_checkpoint", sink.context[0]["job"])
}

func TestJobsSortedByName(t *testing.T) {
	sched := New(zerolog.Nop())
	require.NoError(t, sched.AddJob("@daily", &fakeJob{name: "zeta"}))
	require.NoError(t, sched.AddJob("@daily", &fakeJob{name: "alpha"}))

	statuses := sched.Jobs()
	require.Len(t, statuses, 2)
	assert.Equal(t, "alpha", statuses[0].Name)
	assert.Equal(t, "zeta", statuses[1].Name)
}

func TestFailureThenSuccessClearsLastError(t *testing.T) {
	sched := New(zerolog.Nop())
	job := &fakeJob{name: "reconcile", err: errors.New("gateway down")}
	require.NoError(t, sched.AddJob("@every 5m", job))

	_ = sched.RunNow(job)
	job.err = nil
	require.NoError(t, sched.RunNow(job))

	statuses := sched.Jobs()
	require.Len(t, statuses, 1)
	assert.Equal(t, 2, statuses[0].Runs)
	assert.Equal(t, 1, statuses[0].Failures)
	assert.Empty(t, statuses[0].LastError)
}
