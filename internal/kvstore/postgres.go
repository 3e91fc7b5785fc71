package kvstore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/onnwee/blogcache/internal/logger"
)

// NotifyChannel is the Postgres channel mutations are announced on.
const NotifyChannel = "cache_kv_changes"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cache_kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// SQLSTATE codes that mean the server ran out of room.
var quotaCodes = map[pq.ErrorCode]bool{
	"53100": true, // disk_full
	"53200": true, // out_of_memory
	"54000": true, // program_limit_exceeded
}

// Postgres is a backend stored in a single table. Every mutation is announced with
// pg_notify so other processes sharing the table can reconcile.
type Postgres struct {
	db       *sql.DB
	dsn      string
	origin   string
	capacity int64

	closeOnce sync.Once
	closing   chan struct{}
}

type notifyPayload struct {
	Origin  string `json:"origin"`
	Key     string `json:"key"`
	Deleted bool   `json:"deleted,omitempty"`
}

// OpenPostgres connects to dsn and ensures the cache_kv table exists.
// A capacity <= 0 means unlimited.
func OpenPostgres(ctx context.Context, dsn string, capacity int64) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache_kv table: %w", err)
	}
	return &Postgres{
		db:       db,
		dsn:      dsn,
		origin:   newOrigin(),
		capacity: capacity,
		closing:  make(chan struct{}),
	}, nil
}

func newOrigin() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("pid-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func translateErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && quotaCodes[pqErr.Code] {
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, pqErr.Message)
	}
	return err
}

// Get returns the value stored under key.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := p.db.QueryRowContext(ctx, `SELECT value FROM cache_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return []byte(value), nil
}

// Put upserts value under key inside a transaction that also checks capacity and
// queues the change notification.
func (p *Postgres) Put(ctx context.Context, key string, value []byte) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if p.capacity > 0 {
		var used int64
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(octet_length(key) + octet_length(value)), 0) FROM cache_kv WHERE key <> $1`,
			key).Scan(&used)
		if err != nil {
			return fmt.Errorf("failed to measure usage: %w", err)
		}
		if used+recordSize(key, value) > p.capacity {
			return ErrQuotaExceeded
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cache_kv (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, string(value))
	if err != nil {
		return fmt.Errorf("failed to put %q: %w", key, translateErr(err))
	}
	if err := p.notify(ctx, tx, notifyPayload{Origin: p.origin, Key: key}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit put: %w", translateErr(err))
	}
	return nil
}

// Delete removes key and announces the removal if a row was deleted.
func (p *Postgres) Delete(ctx context.Context, key string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM cache_kv WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		if err := p.notify(ctx, tx, notifyPayload{Origin: p.origin, Key: key, Deleted: true}); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

func (p *Postgres) notify(ctx context.Context, tx *sql.Tx, payload notifyPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, string(body)); err != nil {
		return fmt.Errorf("failed to notify: %w", err)
	}
	return nil
}

// Keys lists keys with the given prefix in lexical order.
func (p *Postgres) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT key FROM cache_kv WHERE left(key, length($1)) = $1 ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Watch listens on NotifyChannel and delivers changes announced by other origins.
func (p *Postgres) Watch(ctx context.Context) (<-chan Change, error) {
	log := logger.WithComponent("kvstore")

	listener := pq.NewListener(p.dsn, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Warn("Postgres listener event", "event", ev, "error", err)
			}
		})
	if err := listener.Listen(NotifyChannel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", NotifyChannel, err)
	}

	out := make(chan Change)
	go func() {
		defer close(out)
		defer listener.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.closing:
				return
			case n := <-listener.Notify:
				if n == nil {
					// Connection was re-established; notifications in between are lost.
					continue
				}
				change, ok := p.decodeNotification(ctx, n.Extra)
				if !ok {
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				case <-p.closing:
					return
				}
			case <-time.After(90 * time.Second):
				go listener.Ping()
			}
		}
	}()
	return out, nil
}

func (p *Postgres) decodeNotification(ctx context.Context, extra string) (Change, bool) {
	var payload notifyPayload
	if err := json.Unmarshal([]byte(extra), &payload); err != nil {
		logger.WithComponent("kvstore").Warn("Dropping malformed notification", "error", err)
		return Change{}, false
	}
	if payload.Origin == p.origin {
		return Change{}, false
	}
	if payload.Deleted {
		return Change{Key: payload.Key, Deleted: true}, true
	}
	value, err := p.Get(ctx, payload.Key)
	if errors.Is(err, ErrNotFound) {
		// Removed again before we could read it.
		return Change{Key: payload.Key, Deleted: true}, true
	}
	if err != nil {
		logger.WithComponent("kvstore").Warn("Failed to fetch changed key", "key", payload.Key, "error", err)
		return Change{}, false
	}
	return Change{Key: payload.Key, Value: value}, true
}

// Close stops watchers and closes the connection pool.
func (p *Postgres) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closing)
		err = p.db.Close()
	})
	return err
}
