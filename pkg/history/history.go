// Package history records completed dispatch attempts for later audit. It
// subscribes only to the dispatch and proxy-lifecycle topics on an
// eventbus.Bus — it never gates or replays the live queue, matching the
// spec's requirement that recording be a side effect, not a dependency of
// dispatch. Storage defaults to SQLite via database/sql
// (github.com/mattn/go-sqlite3); a Postgres pool
// (github.com/jackc/pgx/v5/pgxpool) or the legacy database/sql
// (github.com/lib/pq) driver, reusing pkg/db.Pool, are both selectable by
// Config.Driver.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/devolvehq/devolve/pkg/db"
	"github.com/devolvehq/devolve/pkg/eventbus"
)

// Config selects and configures the backing store.
type Config struct {
	// Driver is one of "sqlite", "postgres" (pgx pool), or
	// "postgres-legacy" (database/sql + lib/pq).
	Driver string
	DSN    string
}

// Recorder persists dispatch outcomes and proxy lifecycle transitions.
// Exactly one of legacy/pgx is non-nil, selected by Config.Driver.
type Recorder struct {
	driver string
	legacy *db.Pool
	pgx    *pgxpool.Pool
}

// Open opens the backing store and ensures its schema exists.
func Open(ctx context.Context, cfg Config) (*Recorder, error) {
	r := &Recorder{driver: cfg.Driver}

	switch cfg.Driver {
	case "sqlite", "":
		pool, err := db.NewPool(db.PoolConfig{
			DSN:          cfg.DSN,
			DriverName:   "sqlite3",
			MaxOpenConns: 1, // sqlite3 serializes writers; avoid "database is locked"
			MaxIdleConns: 1,
		})
		if err != nil {
			return nil, fmt.Errorf("history: opening sqlite: %w", err)
		}
		r.legacy = pool
	case "postgres-legacy":
		pool, err := db.NewPool(db.DefaultPoolConfig(cfg.DSN, "postgres"))
		if err != nil {
			return nil, fmt.Errorf("history: opening postgres (legacy): %w", err)
		}
		r.legacy = pool
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("history: opening postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("history: pinging postgres: %w", err)
		}
		r.pgx = pool
	default:
		return nil, fmt.Errorf("history: unknown driver %q", cfg.Driver)
	}

	if err := r.migrate(ctx); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS dispatch_history (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	worker_name  TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	recorded_at  TIMESTAMP NOT NULL
)`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS dispatch_history (
	id           BIGSERIAL PRIMARY KEY,
	worker_name  TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL
)`

const proxySchema = `
CREATE TABLE IF NOT EXISTS proxy_history (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	worker_name  TEXT NOT NULL,
	status       TEXT NOT NULL,
	n_jobs       BIGINT NOT NULL,
	recorded_at  TIMESTAMP NOT NULL
)`

const proxySchemaPostgres = `
CREATE TABLE IF NOT EXISTS proxy_history (
	id           BIGSERIAL PRIMARY KEY,
	worker_name  TEXT NOT NULL,
	status       TEXT NOT NULL,
	n_jobs       BIGINT NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL
)`

func (r *Recorder) migrate(ctx context.Context) error {
	if r.pgx != nil {
		if _, err := r.pgx.Exec(ctx, schemaPostgres); err != nil {
			return fmt.Errorf("history: migrating: %w", err)
		}
		if _, err := r.pgx.Exec(ctx, proxySchemaPostgres); err != nil {
			return fmt.Errorf("history: migrating: %w", err)
		}
		return nil
	}
	if r.driver == "postgres-legacy" {
		if _, err := r.legacy.Exec(ctx, schemaPostgres); err != nil {
			return fmt.Errorf("history: migrating: %w", err)
		}
		if _, err := r.legacy.Exec(ctx, proxySchemaPostgres); err != nil {
			return fmt.Errorf("history: migrating: %w", err)
		}
		return nil
	}
	if _, err := r.legacy.Exec(ctx, schema); err != nil {
		return fmt.Errorf("history: migrating: %w", err)
	}
	if _, err := r.legacy.Exec(ctx, proxySchema); err != nil {
		return fmt.Errorf("history: migrating: %w", err)
	}
	return nil
}

// Close releases the backing store's connections.
func (r *Recorder) Close() error {
	if r.pgx != nil {
		r.pgx.Close()
		return nil
	}
	if r.legacy != nil {
		return r.legacy.Close()
	}
	return nil
}

// Run subscribes to bus and records events until stop is closed. Intended
// to run in its own goroutine for the lifetime of the boss process.
func (r *Recorder) Run(bus *eventbus.Bus, stop <-chan struct{}) {
	dispatches := bus.Subscribe(eventbus.TopicDispatch)
	proxies := bus.Subscribe(eventbus.TopicProxyStopped)

	for {
		select {
		case ev := <-dispatches:
			r.recordDispatch(context.Background(), ev)
		case ev := <-proxies:
			r.recordProxyStop(context.Background(), ev)
		case <-stop:
			return
		}
	}
}

func (r *Recorder) recordDispatch(ctx context.Context, ev eventbus.Event) {
	now := time.Now().UTC()
	if r.pgx != nil {
		_, _ = r.pgx.Exec(ctx, "INSERT INTO dispatch_history (worker_name, outcome, recorded_at) VALUES ($1, $2, $3)", ev.WorkerName, ev.Outcome, now)
		return
	}
	if r.driver == "postgres-legacy" {
		_, _ = r.legacy.Exec(ctx, "INSERT INTO dispatch_history (worker_name, outcome, recorded_at) VALUES ($1, $2, $3)", ev.WorkerName, ev.Outcome, now)
		return
	}
	_, _ = r.legacy.Exec(ctx, "INSERT INTO dispatch_history (worker_name, outcome, recorded_at) VALUES (?, ?, ?)", ev.WorkerName, ev.Outcome, now)
}

func (r *Recorder) recordProxyStop(ctx context.Context, ev eventbus.Event) {
	now := time.Now().UTC()
	if r.pgx != nil {
		_, _ = r.pgx.Exec(ctx, "INSERT INTO proxy_history (worker_name, status, n_jobs, recorded_at) VALUES ($1, $2, $3, $4)", ev.WorkerName, ev.Status, ev.NJobs, now)
		return
	}
	if r.driver == "postgres-legacy" {
		_, _ = r.legacy.Exec(ctx, "INSERT INTO proxy_history (worker_name, status, n_jobs, recorded_at) VALUES ($1, $2, $3, $4)", ev.WorkerName, ev.Status, ev.NJobs, now)
		return
	}
	_, _ = r.legacy.Exec(ctx, "INSERT INTO proxy_history (worker_name, status, n_jobs, recorded_at) VALUES (?, ?, ?, ?)", ev.WorkerName, ev.Status, ev.NJobs, now)
}

// Recent returns the most recently recorded dispatch outcomes, newest
// first, for a simple audit query (e.g. a dashboard "recent activity"
// panel). limit caps the number of rows.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]DispatchRecord, error) {
	var rows *sql.Rows
	var err error
	if r.pgx != nil {
		return r.recentPgx(ctx, limit)
	}
	if r.driver == "postgres-legacy" {
		rows, err = r.legacy.Query(ctx, "SELECT worker_name, outcome, recorded_at FROM dispatch_history ORDER BY id DESC LIMIT $1", limit)
	} else {
		rows, err = r.legacy.Query(ctx, "SELECT worker_name, outcome, recorded_at FROM dispatch_history ORDER BY id DESC LIMIT ?", limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDispatchRows(rows)
}

func (r *Recorder) recentPgx(ctx context.Context, limit int) ([]DispatchRecord, error) {
	rows, err := r.pgx.Query(ctx, "SELECT worker_name, outcome, recorded_at FROM dispatch_history ORDER BY id DESC LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DispatchRecord
	for rows.Next() {
		var rec DispatchRecord
		if err := rows.Scan(&rec.WorkerName, &rec.Outcome, &rec.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanDispatchRows(rows *sql.Rows) ([]DispatchRecord, error) {
	var out []DispatchRecord
	for rows.Next() {
		var rec DispatchRecord
		if err := rows.Scan(&rec.WorkerName, &rec.Outcome, &rec.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DispatchRecord is one row of dispatch_history.
type DispatchRecord struct {
	WorkerName string
	Outcome    string
	RecordedAt time.Time
}
