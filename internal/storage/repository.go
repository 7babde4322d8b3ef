package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"receitas/internal/core"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Sync states stored in incomes.sync_status
const (
	SyncPending       = "pending"
	SyncDone          = "synced"
	SyncError         = "error"
	SyncPendingDelete = "pending_delete" // tombstone, row is purged once the sheet row is gone
)

// ErrStaleVersion is returned when a sync result refers to a version the
// row has already moved past.
var ErrStaleVersion = errors.New("income version changed")

// Repository stores incomes in SQLite or Postgres
type Repository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// PendingSyncIncome is the minimal data needed to enqueue a sync
type PendingSyncIncome struct {
	ID        int64
	Version   int64
	Status    string // SyncPending or SyncPendingDelete
	UpdatedAt time.Time
}

const incomeColumns = `id, name, description, started_at, ended_at, is_continuous, created_at, updated_at, version`

// NewSQLiteRepository opens (creating if needed) the SQLite database at
// dbPath and migrates it.
func NewSQLiteRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	repo, err := Open(SQLite, dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; serialize access instead of surfacing SQLITE_BUSY
	repo.db.SetMaxOpenConns(1)
	return repo, nil
}

// NewPostgresRepository connects to databaseURL and migrates it
func NewPostgresRepository(databaseURL string) (*Repository, error) {
	return Open(Postgres, databaseURL)
}

// Open connects with the given dialect, pings and runs migrations
func Open(dialect Dialect, dsn string) (*Repository, error) {
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect.Name, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, dialect: dialect, now: time.Now}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Dialect reports which backend the repository talks to
func (r *Repository) Dialect() Dialect {
	return r.dialect
}

// Create inserts a new income and fills in its ID and timestamps
func (r *Repository) Create(ctx context.Context, in *core.Income) error {
	now := r.now().UTC()
	q := r.dialect.Rebind(`INSERT INTO incomes
		(name, description, started_at, ended_at, is_continuous, created_at, updated_at, version, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)
		RETURNING id`)

	var id int64
	err := r.db.QueryRowContext(ctx, q,
		in.Name, in.Description, in.StartedAt.String(), endedAtValue(in.EndedAt), in.IsContinuous,
		now.Unix(), now.Unix(), SyncPending,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert income: %w", err)
	}

	in.ID = id
	in.CreatedAt = time.Unix(now.Unix(), 0).UTC()
	in.UpdatedAt = in.CreatedAt
	in.Version = 1
	return nil
}

// Update overwrites an existing income, bumps its version and marks it for resync
func (r *Repository) Update(ctx context.Context, in *core.Income) error {
	now := r.now().UTC()
	q := r.dialect.Rebind(`UPDATE incomes
		SET name = ?, description = ?, started_at = ?, ended_at = ?, is_continuous = ?,
		    updated_at = ?, version = version + 1, sync_status = ?
		WHERE id = ? AND sync_status <> ?
		RETURNING version`)

	var version int64
	err := r.db.QueryRowContext(ctx, q,
		in.Name, in.Description, in.StartedAt.String(), endedAtValue(in.EndedAt), in.IsContinuous,
		now.Unix(), SyncPending, in.ID, SyncPendingDelete,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("income %d: %w", in.ID, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update income %d: %w", in.ID, err)
	}

	in.UpdatedAt = time.Unix(now.Unix(), 0).UTC()
	in.Version = version
	return nil
}

// Get returns a single income; core.ErrNotFound if it does not exist
func (r *Repository) Get(ctx context.Context, id int64) (*core.Income, error) {
	q := r.dialect.Rebind(`SELECT ` + incomeColumns + ` FROM incomes WHERE id = ? AND sync_status <> ?`)
	in, err := scanIncome(r.db.QueryRowContext(ctx, q, id, SyncPendingDelete))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("income %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get income %d: %w", id, err)
	}
	return in, nil
}

// List returns every income ordered by start month, then id
func (r *Repository) List(ctx context.Context) ([]core.Income, error) {
	q := r.dialect.Rebind(`SELECT ` + incomeColumns + ` FROM incomes WHERE sync_status <> ? ORDER BY started_at, id`)
	rows, err := r.db.QueryContext(ctx, q, SyncPendingDelete)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	defer rows.Close()

	var out []core.Income
	for rows.Next() {
		in, err := scanIncome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		out = append(out, *in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incomes: %w", err)
	}
	return out, nil
}

// Delete tombstones an income so the sheet row removal survives a lost
// message; core.ErrNotFound if it does not exist. The row stays invisible
// to Get and List until Purge drops it.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	q := r.dialect.Rebind(`UPDATE incomes
		SET sync_status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND sync_status <> ?`)
	res, err := r.db.ExecContext(ctx, q, SyncPendingDelete, r.now().UTC().Unix(), id, SyncPendingDelete)
	if err != nil {
		return fmt.Errorf("delete income %d: %w", id, err)
	}
	return expectOneRow(res, id)
}

// Purge drops a tombstoned income after its sheet row was removed.
// Live rows are left alone and purging twice is a no-op.
func (r *Repository) Purge(ctx context.Context, id int64) error {
	q := r.dialect.Rebind(`DELETE FROM incomes WHERE id = ? AND sync_status = ?`)
	if _, err := r.db.ExecContext(ctx, q, id, SyncPendingDelete); err != nil {
		return fmt.Errorf("purge income %d: %w", id, err)
	}
	return nil
}

// PendingSync returns incomes and tombstones not yet exported, oldest first
func (r *Repository) PendingSync(ctx context.Context, limit int) ([]PendingSyncIncome, error) {
	q := r.dialect.Rebind(`SELECT id, version, sync_status, updated_at FROM incomes
		WHERE sync_status IN (?, ?) ORDER BY id LIMIT ?`)
	rows, err := r.db.QueryContext(ctx, q, SyncPending, SyncPendingDelete, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync incomes: %w", err)
	}
	defer rows.Close()

	var out []PendingSyncIncome
	for rows.Next() {
		var p PendingSyncIncome
		var updated int64
		if err := rows.Scan(&p.ID, &p.Version, &p.Status, &updated); err != nil {
			return nil, fmt.Errorf("scan pending income: %w", err)
		}
		p.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkSynced marks the given version of an income as exported.
// ErrStaleVersion if the row was edited or deleted since that version was read.
func (r *Repository) MarkSynced(ctx context.Context, id, version int64) error {
	return r.setSyncStatus(ctx, id, version, SyncDone)
}

// MarkSyncError marks the given version of an income whose export failed
func (r *Repository) MarkSyncError(ctx context.Context, id, version int64) error {
	return r.setSyncStatus(ctx, id, version, SyncError)
}

func (r *Repository) setSyncStatus(ctx context.Context, id, version int64, status string) error {
	q := r.dialect.Rebind(`UPDATE incomes SET sync_status = ? WHERE id = ? AND version = ?`)
	res, err := r.db.ExecContext(ctx, q, status, id, version)
	if err != nil {
		return fmt.Errorf("mark income %d %s: %w", id, status, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("income %d version %d: %w", id, version, ErrStaleVersion)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncome(row rowScanner) (*core.Income, error) {
	var (
		in               core.Income
		started          string
		ended            sql.NullString
		created, updated int64
	)
	if err := row.Scan(&in.ID, &in.Name, &in.Description, &started, &ended, &in.IsContinuous, &created, &updated, &in.Version); err != nil {
		return nil, err
	}

	m, err := core.ParseMonth(started)
	if err != nil {
		return nil, fmt.Errorf("income %d started_at %q: %w", in.ID, started, err)
	}
	in.StartedAt = m

	if ended.Valid {
		e, err := core.ParseMonth(ended.String)
		if err != nil {
			return nil, fmt.Errorf("income %d ended_at %q: %w", in.ID, ended.String, err)
		}
		in.EndedAt = &e
	}

	in.CreatedAt = time.Unix(created, 0).UTC()
	in.UpdatedAt = time.Unix(updated, 0).UTC()
	return &in, nil
}

func endedAtValue(m *core.Month) any {
	if m == nil {
		return nil
	}
	return m.String()
}

func expectOneRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("income %d: %w", id, core.ErrNotFound)
	}
	return nil
}
