package idstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"midisession/internal/logging"
	"midisession/internal/transport"
)

// Store persists port ids backed by SQLite.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Entry is one persisted port id.
type Entry struct {
	Tag       string              `json:"tag"`
	Direction transport.Direction `json:"direction"`
	UniqueID  transport.UniqueID  `json:"unique_id"`
	UpdatedAt time.Time           `json:"updated_at"`
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open creates or connects to the id database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure id store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, logger: logging.NewComponentLogger(logger, "idstore")}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path is the database file location.
func (s *Store) Path() string { return s.path }

// Get returns the id stored for tag and dir. ok is false when no row exists.
func (s *Store) Get(ctx context.Context, tag string, dir transport.Direction) (id transport.UniqueID, ok bool, err error) {
	ctx = ensureContext(ctx)
	var raw int64
	err = retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			"SELECT unique_id FROM port_ids WHERE tag = ? AND direction = ?",
			tag, dir.String(),
		).Scan(&raw)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return transport.InvalidUniqueID, false, nil
	}
	if err != nil {
		return transport.InvalidUniqueID, false, fmt.Errorf("get port id %s/%s: %w", dir, tag, err)
	}
	return transport.UniqueID(raw), true, nil
}

// Put records id for tag and dir, replacing any earlier value.
func (s *Store) Put(ctx context.Context, tag string, dir transport.Direction, id transport.UniqueID) error {
	if !id.Valid() {
		return fmt.Errorf("put port id %s/%s: invalid unique id", dir, tag)
	}
	err := s.execWithoutResultRetry(ctx,
		`INSERT INTO port_ids (tag, direction, unique_id, updated_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(tag, direction) DO UPDATE SET unique_id = excluded.unique_id, updated_at = excluded.updated_at`,
		tag, dir.String(), int64(id), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put port id %s/%s: %w", dir, tag, err)
	}
	s.logger.Debug("port id stored",
		logging.String(logging.FieldTag, tag),
		logging.String("direction", dir.String()),
		logging.Int64(logging.FieldUniqueID, int64(id)),
	)
	return nil
}

// Delete forgets the id for tag and dir.
func (s *Store) Delete(ctx context.Context, tag string, dir transport.Direction) error {
	if err := s.execWithoutResultRetry(ctx, "DELETE FROM port_ids WHERE tag = ? AND direction = ?", tag, dir.String()); err != nil {
		return fmt.Errorf("delete port id %s/%s: %w", dir, tag, err)
	}
	return nil
}

// List returns every stored id ordered by direction and tag.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT tag, direction, unique_id, updated_at FROM port_ids ORDER BY direction, tag")
	if err != nil {
		return nil, fmt.Errorf("list port ids: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			entry      Entry
			direction  string
			raw        int64
			updatedRaw string
		)
		if err := rows.Scan(&entry.Tag, &direction, &raw, &updatedRaw); err != nil {
			return nil, fmt.Errorf("scan port id: %w", err)
		}
		entry.Direction = parseDirection(direction)
		entry.UniqueID = transport.UniqueID(raw)
		if ts, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
			entry.UpdatedAt = ts
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate port ids: %w", err)
	}
	return out, nil
}

func parseDirection(value string) transport.Direction {
	if value == transport.Output.String() {
		return transport.Output
	}
	return transport.Input
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithoutResultRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}
