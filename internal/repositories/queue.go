package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunedl/internal/shared"
	"github.com/gofrs/flock"
)

const queueBuffer = 4096

// Entry is one persisted work item.
type Entry struct {
	Key       string
	Payload   string
	Image     []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

type queueWrite struct {
	key     string
	payload string
	image   []byte
	done    chan struct{}
}

// QueueStore persists work items in the queue_entries table.
//
// Writes are queued on a buffered channel and applied in order by one goroutine, so callers on worker
// goroutines never block on the database.
type QueueStore struct {
	db     *sql.DB
	logger *log.Logger
	lock   *flock.Flock

	writes chan queueWrite
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// OpenQueueStore opens (or creates) the queue database at path and applies migrations.
func OpenQueueStore(ctx context.Context, path string, logger *log.Logger) (*QueueStore, error) {
	var lock *flock.Flock
	if path != ":memory:" {
		lock = flock.New(path + ".lock")
		ok, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to lock queue database: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", shared.ErrLocked, path)
		}
	}

	db, err := shared.NewDatabase(path)
	if err != nil {
		unlock(lock)
		return nil, err
	}
	if path == ":memory:" {
		shared.ConfigureDatabase(db, 1, 1)
	}
	if err := shared.RunMigrations(ctx, db); err != nil {
		db.Close()
		unlock(lock)
		return nil, err
	}

	s := NewQueueStore(db, logger)
	s.lock = lock
	return s, nil
}

// NewQueueStore wraps an already migrated database and starts the writer.
func NewQueueStore(db *sql.DB, logger *log.Logger) *QueueStore {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := &QueueStore{
		db:     db,
		logger: logger,
		writes: make(chan queueWrite, queueBuffer),
	}
	s.wg.Add(1)
	go s.writer()
	return s
}

// DB exposes the underlying handle so other repositories can share the file.
func (s *QueueStore) DB() *sql.DB { return s.db }

// QueueSave schedules an upsert of key. It never blocks: when the buffer is full the write is dropped and
// logged, and after [QueueStore.Close] it is ignored.
func (s *QueueStore) QueueSave(key string, payload, image []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	w := queueWrite{key: key, payload: string(payload)}
	if len(image) > 0 {
		w.image = append([]byte(nil), image...)
	}
	select {
	case s.writes <- w:
	default:
		s.logger.Warn("queue buffer full, dropping write", "key", key)
	}
}

// Flush blocks until every write queued before the call has been applied.
func (s *QueueStore) Flush() {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	done := make(chan struct{})
	s.writes <- queueWrite{done: done}
	s.mu.RUnlock()
	<-done
}

func (s *QueueStore) writer() {
	defer s.wg.Done()
	for w := range s.writes {
		if w.done != nil {
			close(w.done)
			continue
		}
		if err := s.upsert(w); err != nil {
			s.logger.Error("failed to save queue entry", "key", w.key, "error", err)
		}
	}
}

func (s *QueueStore) upsert(w queueWrite) error {
	query := `
		INSERT INTO queue_entries (key, payload, image, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			image = COALESCE(excluded.image, queue_entries.image),
			updated_at = excluded.updated_at
	`
	now := time.Now()
	var image any
	if w.image != nil {
		image = w.image
	}
	_, err := s.db.Exec(query, w.key, w.payload, image, now, now)
	return err
}

// LoadAll returns every entry keyed by its key.
func (s *QueueStore) LoadAll(ctx context.Context) (map[string]Entry, error) {
	query := `SELECT key, payload, image, created_at, updated_at FROM queue_entries ORDER BY created_at, key`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue entries: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]Entry)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Payload, &e.Image, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries[e.Key] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue entries: %w", err)
	}
	return entries, nil
}

// Delete removes one entry. Pending writes are applied first.
func (s *QueueStore) Delete(ctx context.Context, key string) error {
	s.Flush()
	result, err := s.db.ExecContext(ctx, `DELETE FROM queue_entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: queue entry %s", shared.ErrNotFound, key)
	}
	return nil
}

// Clear removes every entry and reports how many were deleted.
func (s *QueueStore) Clear(ctx context.Context) (int64, error) {
	s.Flush()
	result, err := s.db.ExecContext(ctx, `DELETE FROM queue_entries`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear queue: %w", err)
	}
	return result.RowsAffected()
}

// Close drains pending writes, closes the database and releases the file lock. It is safe to call twice.
func (s *QueueStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.writes)
	s.mu.Unlock()

	s.wg.Wait()
	err := s.db.Close()
	unlock(s.lock)
	return err
}

func unlock(lock *flock.Flock) {
	if lock != nil {
		_ = lock.Unlock()
	}
}
