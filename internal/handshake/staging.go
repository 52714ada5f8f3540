package handshake

import (
	"fmt"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ravitejakamalapuram/copytradepro/internal/database"
)

// StagedAuth is the connection context parked while the user works
// through the auth surface. It is needed again when the code arrives
// and the OAuth exchange completes.
type StagedAuth struct {
	AccountID   string            `msgpack:"account_id"`
	BrokerKind  string            `msgpack:"broker_kind"`
	Credentials map[string]string `msgpack:"credentials"`
	StartedAt   time.Time         `msgpack:"started_at"`
}

// Staging is a KV for handshake state. Values are stored
// msgpack-encoded so credentials never sit in memory as live maps
// longer than a Get. With a backing database the entries are written
// through to the handshake_staging table, so in-flight handshake
// context survives a restart.
type Staging struct {
	mu      sync.RWMutex
	entries map[string][]byte
	db      *database.DB // nil for memory-only staging
}

// NewStaging creates an empty in-memory staging store.
func NewStaging() *Staging {
	return &Staging{entries: make(map[string][]byte)}
}

// NewPersistentStaging creates a staging store backed by the cache
// database, preloading any entries left over from before a restart.
func NewPersistentStaging(db *database.DB) (*Staging, error) {
	s := &Staging{entries: make(map[string][]byte), db: db}

	rows, err := db.Query(`SELECT key, payload FROM handshake_staging`)
	if err != nil {
		return nil, fmt.Errorf("failed to load staged handshakes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var payload []byte
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan staged handshake: %w", err)
		}
		s.entries[key] = payload
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate staged handshakes: %w", err)
	}

	return s, nil
}

// Put encodes and stores a value under the given key.
func (s *Staging) Put(key string, value interface{}) error {
	encoded, err := msgpack.Marshal(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		_, err := s.db.Exec(`INSERT INTO handshake_staging (key, payload) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET payload = excluded.payload`, key, encoded)
		if err != nil {
			return fmt.Errorf("failed to persist staged handshake: %w", err)
		}
	}
	s.entries[key] = encoded
	return nil
}

// Get decodes the value under key into out. The second return is
// false when the key is absent.
func (s *Staging) Get(key string, out interface{}) (bool, error) {
	s.mu.RLock()
	encoded, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, msgpack.Unmarshal(encoded, out)
}

// Delete removes the value under key. No-op when absent.
func (s *Staging) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		_, _ = s.db.Exec(`DELETE FROM handshake_staging WHERE key = ?`, key)
	}
	delete(s.entries, key)
}

// Len returns the number of staged entries.
func (s *Staging) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
