package handshake

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravitejakamalapuram/copytradepro/internal/database"
)

func newStagingDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:staging_%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileCache,
		Name:    "orders_cache",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPersistentStagingSurvivesReload(t *testing.T) {
	db := newStagingDB(t)

	staging, err := NewPersistentStaging(db)
	require.NoError(t, err)
	require.NoError(t, staging.Put("hs-1", StagedAuth{
		AccountID:   "acc-1",
		BrokerKind:  "shoonya",
		Credentials: map[string]string{"user_id": "acc-1"},
		StartedAt:   time.Now().UTC(),
	}))

	// A fresh store over the same database sees the staged entry.
	reloaded, err := NewPersistentStaging(db)
	require.NoError(t, err)
	var got StagedAuth
	found, err := reloaded.Get("hs-1", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "acc-1", got.AccountID)
	assert.Equal(t, "shoonya", got.BrokerKind)
	assert.Equal(t, "acc-1", got.Credentials["user_id"])
}

func TestPersistentStagingPutOverwrites(t *testing.T) {
	db := newStagingDB(t)

	staging, err := NewPersistentStaging(db)
	require.NoError(t, err)
	require.NoError(t, staging.Put("hs-1", StagedAuth{AccountID: "acc-1", BrokerKind: "shoonya"}))
	require.NoError(t, staging.Put("hs-1", StagedAuth{AccountID: "acc-1", BrokerKind: "fyers"}))

	reloaded, err := NewPersistentStaging(db)
	require.NoError(t, err)
	var got StagedAuth
	found, err := reloaded.Get("hs-1", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "fyers", got.BrokerKind)
	assert.Equal(t, 1, reloaded.Len())
}

func TestPersistentStagingDeleteClearsRow(t *testing.T) {
	db := newStagingDB(t)

	staging, err := NewPersistentStaging(db)
	require.NoError(t, err)
	require.NoError(t, staging.Put("hs-1", StagedAuth{AccountID: "acc-1"}))
	staging.Delete("hs-1")

	reloaded, err := NewPersistentStaging(db)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.Len())

	var got StagedAuth
	found, err := reloaded.Get("hs-1", &got)
	require.NoError(t, err)
	assert.False(t, found)
}
