// Package cache persists provider responses (balances, route listings,
// quotes) between CLI invocations so repeated lookups within a TTL window
// do not hit the routing service again.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS responses (
	key         TEXT PRIMARY KEY,
	payload     BLOB NOT NULL,
	fetched_at  INTEGER NOT NULL,
	ttl_seconds INTEGER NOT NULL
);`

// Store is a sqlite-backed response cache. Writes across concurrent CLI
// processes are serialized through a file lock next to the database.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

// Entry is the outcome of a cache lookup. Stale entries may still be served
// as a fallback when the service is unreachable; TooStale entries exceed the
// caller's max-stale budget and must not be.
type Entry struct {
	Hit      bool
	Payload  []byte
	Age      time.Duration
	Stale    bool
	TooStale bool
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open response cache: %w", err)
	}
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cache schema: %w", err)
		}
	}

	store := &Store{db: db, lock: flock.New(lockPath), now: time.Now}
	// Expired rows accumulate across intent hashes (every new amount is a
	// new key), so clear them out on every open.
	_ = store.Purge()
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Purge removes every row whose TTL has fully elapsed.
func (s *Store) Purge() error {
	if s == nil || s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("DELETE FROM responses WHERE fetched_at + ttl_seconds < ?", s.now().UTC().Unix()); err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	return nil
}

func (s *Store) Get(key string, maxStale time.Duration) (Entry, error) {
	var payload []byte
	var fetchedUnix, ttlSeconds int64
	err := s.db.QueryRow("SELECT payload, fetched_at, ttl_seconds FROM responses WHERE key = ?", key).
		Scan(&payload, &fetchedUnix, &ttlSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, nil
	}
	if err != nil {
		return Entry{}, fmt.Errorf("cache read: %w", err)
	}

	entry := Entry{Hit: true, Payload: payload}
	entry.Age = s.now().UTC().Sub(time.Unix(fetchedUnix, 0).UTC())
	if entry.Age < 0 {
		entry.Age = 0
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	entry.Stale = entry.Age > ttl
	entry.TooStale = entry.Stale && maxStale >= 0 && entry.Age > ttl+maxStale
	return entry, nil
}

func (s *Store) Set(key string, payload []byte, ttl time.Duration) error {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock cache: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	ttlSeconds := int64(ttl.Seconds())
	if ttlSeconds <= 0 {
		ttlSeconds = 1
	}
	_, err = s.db.Exec(`
		INSERT INTO responses (key, payload, fetched_at, ttl_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload=excluded.payload,
			fetched_at=excluded.fetched_at,
			ttl_seconds=excluded.ttl_seconds
	`, key, payload, s.now().UTC().Unix(), ttlSeconds)
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}
