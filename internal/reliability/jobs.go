package reliability

import (
	"context"
	"time"
)

// DailyBackupJob wraps BackupService.DailyBackup for scheduler
type DailyBackupJob struct {
	service *BackupService
}

// NewDailyBackupJob creates a new daily backup job
func NewDailyBackupJob(service *BackupService) *DailyBackupJob {
	return &DailyBackupJob{service: service}
}

// Run executes the daily backup
func (j *DailyBackupJob) Run() error {
	return j.service.DailyBackup()
}

// Name returns the job name for scheduler
func (j *DailyBackupJob) Name() string {
	return "daily_backup"
}

// CloudBackupJob uploads a backup archive and rotates old ones.
type CloudBackupJob struct {
	service       *CloudBackupService
	retentionDays int
}

// NewCloudBackupJob creates a new cloud backup job
func NewCloudBackupJob(service *CloudBackupService, retentionDays int) *CloudBackupJob {
	return &CloudBackupJob{service: service, retentionDays: retentionDays}
}

// Run uploads a fresh archive, then prunes expired ones
func (j *CloudBackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}
	return j.service.RotateOldBackups(ctx, j.retentionDays)
}

// Name returns the job name for scheduler
func (j *CloudBackupJob) Name() string {
	return "cloud_backup"
}
