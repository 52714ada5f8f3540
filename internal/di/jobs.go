package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ravitejakamalapuram/copytradepro/internal/config"
	"github.com/ravitejakamalapuram/copytradepro/internal/database"
	"github.com/ravitejakamalapuram/copytradepro/internal/handshake"
	"github.com/ravitejakamalapuram/copytradepro/internal/modules/accounts"
	"github.com/ravitejakamalapuram/copytradepro/internal/modules/orders"
	"github.com/ravitejakamalapuram/copytradepro/internal/reliability"
	"github.com/ravitejakamalapuram/copytradepro/internal/scheduler"
)

// RegisterJobs wires all background jobs onto the scheduler
func RegisterJobs(container *Container, cfg *config.Config, sched *scheduler.Scheduler, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	// Job failures surface on the event stream alongside everything else.
	sched.SetErrorSink(container.EventManager)

	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{"@every 1m", accounts.NewSessionSweepJob(container.AccountService)},
		{"@every 1m", handshake.NewStaleHandshakeJob(container.Handshakes, 2*cfg.Handshake.OverallTimeout)},
		{"@every 5m", orders.NewReconcileJob(container.OrderService)},
		{"@hourly", database.NewWALCheckpointJob(container.AccountsDB, container.OrdersCacheDB)},
		{"@daily", reliability.NewDailyBackupJob(container.BackupService)},
	}

	if container.CloudBackupService != nil {
		jobs = append(jobs, struct {
			schedule string
			job      scheduler.Job
		}{"@daily", reliability.NewCloudBackupJob(container.CloudBackupService, cfg.Backup.Retention)})
	}

	for _, j := range jobs {
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			return fmt.Errorf("failed to register job %s: %w", j.job.Name(), err)
		}
	}

	return nil
}
