package database

import "fmt"

// WALCheckpointJob truncates the WAL of every managed database so the
// log file does not grow unbounded between backups.
type WALCheckpointJob struct {
	databases []*DB
}

// NewWALCheckpointJob creates a new WAL checkpoint job
func NewWALCheckpointJob(databases ...*DB) *WALCheckpointJob {
	return &WALCheckpointJob{databases: databases}
}

// Run checkpoints every database; the first failure is returned but the
// remaining databases are still checkpointed.
func (j *WALCheckpointJob) Run() error {
	var firstErr error
	for _, db := range j.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("checkpoint %s: %w", db.Name(), err)
		}
	}
	return firstErr
}

// Name returns the job name for scheduler
func (j *WALCheckpointJob) Name() string {
	return "wal_checkpoint"
}
