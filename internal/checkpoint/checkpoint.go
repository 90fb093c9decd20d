// Package checkpoint persists the resume-from-cursor state the sync engine
// itself deliberately keeps out of scope (spec §4.6: "there is no
// persisted journal of processed event ids, because the sighting set will
// be repopulated by the next batch's deliveries"). It only remembers the
// one number a restarted process needs: the cursor-until a prior run
// stopped at, keyed by owner pubkey and sync direction.
package checkpoint

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/relaysync/nip65sync/internal/ops"
)

// Direction distinguishes a write-sync checkpoint from a read-sync one;
// the two run against different target sets and filters and must not
// share a cursor.
type Direction string

const (
	DirectionWrite Direction = "write"
	DirectionRead  Direction = "read"
)

// Store is a sqlite-backed checkpoint table.
type Store struct {
	db     *sql.DB
	logger *ops.Logger
}

// Open opens (creating if necessary) the checkpoint database at path and
// runs its migration.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}

	s := &Store{db: db, logger: ops.Default()}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate checkpoint db: %w", err)
	}
	return s, nil
}

// SetLogger overrides the store's logger. A nil logger is ignored.
func (s *Store) SetLogger(l *ops.Logger) {
	if l != nil {
		s.logger = l
	}
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sync_checkpoint (
			pubkey       TEXT NOT NULL,
			direction    TEXT NOT NULL,
			cursor_until INTEGER NOT NULL,
			updated_at   INTEGER NOT NULL,
			PRIMARY KEY (pubkey, direction)
		)
	`)
	return err
}

// DB returns the underlying database connection, mainly for tests.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save records cursorUntil as the resume point for (pubkey, direction),
// overwriting any prior value.
func (s *Store) Save(ctx context.Context, pubkey string, direction Direction, cursorUntil, updatedAt int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_checkpoint (pubkey, direction, cursor_until, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (pubkey, direction) DO UPDATE SET
			cursor_until = excluded.cursor_until,
			updated_at = excluded.updated_at
	`, pubkey, string(direction), cursorUntil, updatedAt)
	if err != nil {
		s.logger.LogCheckpoint(pubkey, string(direction), cursorUntil, err)
		return fmt.Errorf("save checkpoint: %w", err)
	}
	s.logger.LogCheckpoint(pubkey, string(direction), cursorUntil, nil)
	return nil
}

// Load returns the saved cursor-until for (pubkey, direction). ok is false
// if no checkpoint has ever been saved for that pair, meaning the caller
// should start from its own initial-until instead.
func (s *Store) Load(ctx context.Context, pubkey string, direction Direction) (cursorUntil int64, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT cursor_until FROM sync_checkpoint WHERE pubkey = ? AND direction = ?
	`, pubkey, string(direction))

	if err := row.Scan(&cursorUntil); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("load checkpoint: %w", err)
	}
	return cursorUntil, true, nil
}

// Clear removes the checkpoint for (pubkey, direction), used once a run
// reaches Complete and there is nothing left to resume.
func (s *Store) Clear(ctx context.Context, pubkey string, direction Direction) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_checkpoint WHERE pubkey = ? AND direction = ?
	`, pubkey, string(direction))
	if err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}
