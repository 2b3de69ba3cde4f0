// Package sqlite provides a SQLite-backed persistent store that mirrors the
// in-memory semantics and snapshots state after every mutation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"applycore/internal/infra/persistence/memory"
	"applycore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

const (
	bucketResources = "resources"
	bucketUsers     = "users"
)

// Store persists the in-memory state to a single SQLite table as JSON blobs.
// It snapshots the full state after every successful mutation.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "applycore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// PutResource stores the resource and snapshots state.
func (s *Store) PutResource(ctx context.Context, res domain.StoredResource) error {
	if err := s.Store.PutResource(ctx, res); err != nil {
		return err
	}
	return s.persist(ctx)
}

// DeleteResource removes the resource and snapshots state.
func (s *Store) DeleteResource(ctx context.Context, typ, permalink string) (bool, error) {
	removed, err := s.Store.DeleteResource(ctx, typ, permalink)
	if err != nil || !removed {
		return removed, err
	}
	return removed, s.persist(ctx)
}

// PutUser stores the user and snapshots state.
func (s *Store) PutUser(ctx context.Context, u *domain.User) error {
	if err := s.Store.PutUser(ctx, u); err != nil {
		return err
	}
	return s.persist(ctx)
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snap := memory.Snapshot{}
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan state row: %w", err)
		}
		switch bucket {
		case bucketResources:
			if err := json.Unmarshal(payload, &snap.Resources); err != nil {
				return fmt.Errorf("decode %s: %w", bucket, err)
			}
		case bucketUsers:
			if err := json.Unmarshal(payload, &snap.Users); err != nil {
				return fmt.Errorf("decode %s: %w", bucket, err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state rows: %w", err)
	}
	if snap.Resources != nil || snap.Users != nil {
		s.Store.ImportState(snap)
	}
	return nil
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.Store.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	for bucket, payload := range map[string]any{
		bucketResources: snap.Resources,
		bucketUsers:     snap.Users,
	} {
		raw, err := json.Marshal(payload)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode %s: %w", bucket, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO state (bucket, payload) VALUES (?, ?)
			 ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload`,
			bucket, raw); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("write %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}
