package reliability

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ravitejakamalapuram/copytradepro/internal/database"
	"github.com/rs/zerolog"
)

// BackupService manages local backups of the service databases.
// Backups are taken with SQLite's VACUUM INTO, which produces a fresh
// copy without WAL files.
type BackupService struct {
	databases map[string]*database.DB
	dataDir   string
	backupDir string
	log       zerolog.Logger
}

// NewBackupService creates a new backup service
func NewBackupService(
	databases map[string]*database.DB,
	dataDir string,
	backupDir string,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		databases: databases,
		dataDir:   dataDir,
		backupDir: backupDir,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// GetDatabaseNames returns the names of all managed databases, sorted
// for deterministic backup ordering.
func (s *BackupService) GetDatabaseNames() []string {
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DailyBackup backs up every managed database into a dated directory
// under the backup root and rotates old backups.
func (s *BackupService) DailyBackup() error {
	s.log.Info().Msg("Starting daily backup")
	startTime := time.Now()

	date := time.Now().Format("2006-01-02")
	dailyDir := filepath.Join(s.backupDir, "daily", date)
	if err := os.MkdirAll(dailyDir, 0755); err != nil {
		return fmt.Errorf("failed to create daily backup directory: %w", err)
	}

	for _, dbName := range s.GetDatabaseNames() {
		backupPath := filepath.Join(dailyDir, dbName+".db")

		if err := s.BackupDatabase(dbName, backupPath); err != nil {
			s.log.Error().
				Str("database", dbName).
				Err(err).
				Msg("Failed to backup database")
			// Continue with other databases
			continue
		}

		if err := s.verifyBackup(backupPath); err != nil {
			s.log.Error().
				Str("database", dbName).
				Err(err).
				Msg("Backup verification failed")
			os.Remove(backupPath)
		}
	}

	if err := s.rotateDailyBackups(); err != nil {
		s.log.Error().Err(err).Msg("Failed to rotate daily backups")
		// Don't fail - backup succeeded
	}

	duration := time.Since(startTime)
	s.log.Info().
		Dur("duration_ms", duration).
		Str("backup_dir", dailyDir).
		Msg("Daily backup completed successfully")

	return nil
}

// BackupDatabase performs backup of a single database using SQLite's VACUUM INTO
func (s *BackupService) BackupDatabase(dbName, backupPath string) error {
	db, ok := s.databases[dbName]
	if !ok {
		return fmt.Errorf("database %s not found", dbName)
	}

	s.log.Debug().
		Str("database", dbName).
		Str("backup_path", backupPath).
		Msg("Backing up database")

	_, err := db.Conn().Exec(fmt.Sprintf("VACUUM INTO '%s'", backupPath))
	if err != nil {
		return fmt.Errorf("VACUUM INTO failed: %w", err)
	}

	info, err := os.Stat(backupPath)
	if err != nil {
		return fmt.Errorf("failed to stat backup: %w", err)
	}

	sizeMB := float64(info.Size()) / 1024 / 1024
	s.log.Debug().
		Str("database", dbName).
		Float64("size_mb", sizeMB).
		Msg("Backup created")

	return nil
}

// verifyBackup verifies backup integrity
func (s *BackupService) verifyBackup(backupPath string) error {
	backupDB, err := sql.Open("sqlite", backupPath)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer backupDB.Close()

	var result string
	err = backupDB.QueryRow("PRAGMA integrity_check").Scan(&result)
	if err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}

	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}

// rotateDailyBackups deletes backups older than 14 days
func (s *BackupService) rotateDailyBackups() error {
	dailyDir := filepath.Join(s.backupDir, "daily")
	cutoff := time.Now().AddDate(0, 0, -14)

	entries, err := os.ReadDir(dailyDir)
	if err != nil {
		return fmt.Errorf("failed to read daily backup directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		// Directory names are dates (YYYY-MM-DD)
		dirDate, err := time.Parse("2006-01-02", entry.Name())
		if err != nil {
			s.log.Warn().
				Str("dir", entry.Name()).
				Msg("Failed to parse date from directory name")
			continue
		}

		if dirDate.Before(cutoff) {
			path := filepath.Join(dailyDir, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				s.log.Warn().
					Str("path", path).
					Err(err).
					Msg("Failed to delete old daily backup")
			} else {
				s.log.Debug().
					Str("path", path).
					Msg("Deleted old daily backup")
			}
		}
	}

	return nil
}

// RestoreFromBackup finds the most recent local backup of a database.
// Returns the path to the backup file; the caller decides what to do with it.
func (s *BackupService) RestoreFromBackup(dbName string) (string, error) {
	s.log.Warn().
		Str("database", dbName).
		Msg("Searching for backup to restore")

	backupPath := s.findMostRecentBackup(filepath.Join(s.backupDir, "daily"), dbName+".db")
	if backupPath != "" {
		s.log.Info().
			Str("backup", backupPath).
			Msg("Found daily backup")
		return backupPath, nil
	}

	return "", fmt.Errorf("no backup found for %s", dbName)
}

// findMostRecentBackup searches for the most recent backup in a directory tree
func (s *BackupService) findMostRecentBackup(baseDir, filename string) string {
	var mostRecent string
	var mostRecentTime time.Time

	if err := filepath.Walk(baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}

		if info.IsDir() {
			return nil
		}

		if filepath.Base(path) == filename && info.ModTime().After(mostRecentTime) {
			mostRecent = path
			mostRecentTime = info.ModTime()
		}

		return nil
	}); err != nil {
		s.log.Warn().Err(err).Str("base_dir", baseDir).Msg("Error walking directory for backup search")
	}

	return mostRecent
}
