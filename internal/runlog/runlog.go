// Package runlog records imported snapshot files in Postgres. The ledger
// supplies the default watermark of the next run and an estimate of how
// long a run will take.
package runlog

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/OFFIS-RIT/openalex-import/internal/util"
	"github.com/OFFIS-RIT/openalex-import/pkg/leaselock"
	"github.com/OFFIS-RIT/openalex-import/pkg/logger"
	"github.com/OFFIS-RIT/openalex-import/pkg/openalex"
)

//go:embed migrations/*.sql
var migrations embed.FS

// FileRecord is one snapshot file whose edits the store accepted.
type FileRecord struct {
	Kind        openalex.EntityKind
	FileDate    string
	FileName    string
	RecordCount int64
	Edits       int64
	Duration    time.Duration
}

type Store struct {
	pool *pgxpool.Pool
}

// Migrate applies all pending migrations to the database at databaseURL.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Open migrates the database and connects to it.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if err := Migrate(databaseURL); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Locker returns a lease lock client on the ledger's database.
func (s *Store) Locker() *leaselock.Client {
	return leaselock.New(s.pool)
}

// RecordFile stores rec. Recording the same file again overwrites its
// counters.
func (s *Store) RecordFile(ctx context.Context, rec FileRecord) error {
	_, err := s.pool.Exec(ctx, recordFileSQL,
		string(rec.Kind),
		rec.FileDate,
		util.SanitizePostgresText(rec.FileName),
		rec.RecordCount,
		rec.Edits,
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record %s file %s: %w", rec.Kind, rec.FileName, err)
	}
	logger.Debug("Recorded imported file", "kind", rec.Kind, "date", rec.FileDate, "file", rec.FileName)
	return nil
}

// LastDate returns the newest file date recorded for kind as YYYY-MM-DD, or
// "" if nothing was imported yet.
func (s *Store) LastDate(ctx context.Context, kind openalex.EntityKind) (string, error) {
	var date *string
	if err := s.pool.QueryRow(ctx, lastDateSQL, string(kind)).Scan(&date); err != nil {
		return "", fmt.Errorf("last date of %s: %w", kind, err)
	}
	if date == nil {
		return "", nil
	}
	return *date, nil
}

// PredictDuration extrapolates the time needed for records records of kind
// from previously imported files. It returns 0 without history.
func (s *Store) PredictDuration(ctx context.Context, kind openalex.EntityKind, records int64) (time.Duration, error) {
	var msPerRecord float64
	if err := s.pool.QueryRow(ctx, msPerRecordSQL, string(kind)).Scan(&msPerRecord); err != nil {
		return 0, fmt.Errorf("predict duration of %s: %w", kind, err)
	}
	return time.Duration(msPerRecord * float64(records) * float64(time.Millisecond)), nil
}

const recordFileSQL = `
INSERT INTO import_files (entity_kind, file_date, file_name, record_count, edits, duration_ms)
VALUES ($1, $2::date, $3, $4, $5, $6)
ON CONFLICT (entity_kind, file_date, file_name) DO UPDATE
SET record_count = EXCLUDED.record_count,
    edits        = EXCLUDED.edits,
    duration_ms  = EXCLUDED.duration_ms,
    completed_at = now();
`

const lastDateSQL = `
SELECT to_char(max(file_date), 'YYYY-MM-DD')
FROM import_files
WHERE entity_kind = $1;
`

const msPerRecordSQL = `
SELECT COALESCE(sum(duration_ms)::float8 / NULLIF(sum(record_count), 0), 0)
FROM import_files
WHERE entity_kind = $1;
`
