package reliability

import (
	"archive/tar"
	"compress/gzip"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravitejakamalapuram/copytradepro/internal/database"
)

func newBackupFixture(t *testing.T) (*BackupService, string) {
	t.Helper()
	dataDir := t.TempDir()

	accounts, err := database.New(database.Config{
		Path:    filepath.Join(dataDir, "accounts.db"),
		Profile: database.ProfileStandard,
		Name:    "accounts",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = accounts.Close() })
	require.NoError(t, accounts.Migrate())

	_, err = accounts.Exec(
		`INSERT INTO broker_accounts (account_id, broker_kind, is_active, linked_at, updated_at)
		 VALUES (?, ?, 1, ?, ?)`,
		"ACC1", "shoonya", time.Now(), time.Now(),
	)
	require.NoError(t, err)

	backupDir := filepath.Join(dataDir, "backups")
	svc := NewBackupService(
		map[string]*database.DB{"accounts": accounts},
		dataDir,
		backupDir,
		zerolog.Nop(),
	)
	return svc, backupDir
}

func TestDailyBackupProducesReadableCopy(t *testing.T) {
	svc, backupDir := newBackupFixture(t)

	require.NoError(t, svc.DailyBackup())

	date := time.Now().Format("2006-01-02")
	backupPath := filepath.Join(backupDir, "daily", date, "accounts.db")
	require.FileExists(t, backupPath)

	// The copy must be a standalone database holding the same rows.
	copyDB, err := sql.Open("sqlite", backupPath)
	require.NoError(t, err)
	defer copyDB.Close()

	var count int
	require.NoError(t, copyDB.QueryRow(`SELECT COUNT(*) FROM broker_accounts`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestBackupDatabaseUnknownName(t *testing.T) {
	svc, _ := newBackupFixture(t)

	err := svc.BackupDatabase("ledger", filepath.Join(t.TempDir(), "ledger.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRestoreFromBackupFindsLatest(t *testing.T) {
	svc, backupDir := newBackupFixture(t)

	_, err := svc.RestoreFromBackup("accounts")
	require.Error(t, err)

	require.NoError(t, svc.DailyBackup())

	path, err := svc.RestoreFromBackup("accounts")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path) || path != "")
	assert.Contains(t, path, backupDir)
}

func TestGetDatabaseNamesSorted(t *testing.T) {
	svc, _ := newBackupFixture(t)
	assert.Equal(t, []string{"accounts"}, svc.GetDatabaseNames())
}

func TestCalculateChecksumFormat(t *testing.T) {
	svc := &CloudBackupService{log: zerolog.Nop()}

	path := filepath.Join(t.TempDir(), "sample.db")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0644))

	checksum, err := svc.calculateChecksum(path)
	require.NoError(t, err)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, checksum)

	// Same contents, same checksum.
	again, err := svc.calculateChecksum(path)
	require.NoError(t, err)
	assert.Equal(t, checksum, again)
}

func TestCreateArchiveRoundTrip(t *testing.T) {
	svc := &CloudBackupService{log: zerolog.Nop()}
	stagingDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(stagingDir, "accounts.db"), []byte("accounts-bytes"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(stagingDir, "backup-metadata.json"), []byte(`{"timestamp":"x"}`), 0644))

	archivePath := filepath.Join(stagingDir, "test.tar.gz")
	require.NoError(t, svc.createArchive(archivePath, stagingDir, []string{"accounts", "backup-metadata"}))

	f, err := os.Open(archivePath)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	contents := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[hdr.Name] = string(data)
	}

	assert.Equal(t, "accounts-bytes", contents["accounts.db"])
	assert.Equal(t, `{"timestamp":"x"}`, contents["backup-metadata.json"])
}
