package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, name string, profile DatabaseProfile) *DB {
	t.Helper()
	db, err := New(Config{
		Path:    fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", t.Name(), name),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewCreatesDirectoryAndOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "accounts.db")
	db, err := New(Config{Path: path, Name: "accounts"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, ProfileStandard, db.Profile())
	assert.Equal(t, "accounts", db.Name())
	require.NoError(t, db.QuickCheck(context.Background()))
}

func TestBuildConnectionStringSeparator(t *testing.T) {
	// Plain paths start the query string, URI paths with existing
	// parameters append to it. A second '?' would make the DSN
	// unparseable and every in-memory test database unopenable.
	plain := buildConnectionString("/tmp/accounts.db", ProfileStandard)
	assert.Equal(t, 1, strings.Count(plain, "?"))
	assert.Contains(t, plain, "/tmp/accounts.db?_pragma=journal_mode(WAL)")

	uri := buildConnectionString("file:mem?mode=memory&cache=shared", ProfileCache)
	assert.Equal(t, 1, strings.Count(uri, "?"))
	assert.Contains(t, uri, "cache=shared&_pragma=journal_mode(WAL)")
}

func TestMigrateAccountsSchema(t *testing.T) {
	db := newTestDB(t, "accounts", ProfileStandard)
	require.NoError(t, db.Migrate())

	// Table exists and accepts rows
	_, err := db.Exec(`INSERT INTO broker_accounts (account_id, broker_kind, is_active) VALUES (?, ?, 1)`,
		"acc-1", "shoonya")
	require.NoError(t, err)

	// Migrate is idempotent
	require.NoError(t, db.Migrate())
}

func TestMigrateOrdersCacheSchema(t *testing.T) {
	db := newTestDB(t, "orders_cache", ProfileCache)
	require.NoError(t, db.Migrate())

	_, err := db.Exec(`INSERT INTO order_history (batch_id, account_id, symbol, exchange, side, quantity, order_kind, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		"b-1", "acc-1", "RELIANCE-EQ", "NSE", "BUY", 10, "MARKET", "PLACED")
	require.NoError(t, err)
}

func TestMigrateUnknownNameIsNoop(t *testing.T) {
	db := newTestDB(t, "scratch", ProfileStandard)
	require.NoError(t, db.Migrate())
}

func TestWithTransactionCommits(t *testing.T) {
	db := newTestDB(t, "accounts", ProfileStandard)
	require.NoError(t, db.Migrate())

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO broker_accounts (account_id, broker_kind) VALUES (?, ?)`, "acc-2", "fyers")
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM broker_accounts`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	db := newTestDB(t, "accounts", ProfileStandard)
	require.NoError(t, db.Migrate())

	sentinel := errors.New("deliberate failure")
	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO broker_accounts (account_id, broker_kind) VALUES (?, ?)`, "acc-3", "shoonya"); err != nil {
			return err
		}
		return sentinel
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM broker_accounts`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithTransactionRecoversPanic(t *testing.T) {
	db := newTestDB(t, "accounts", ProfileStandard)
	require.NoError(t, db.Migrate())

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in transaction")
}

func TestHealthCheck(t *testing.T) {
	db := newTestDB(t, "accounts", ProfileStandard)
	require.NoError(t, db.Migrate())
	require.NoError(t, db.HealthCheck(context.Background()))
}
