package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const ResourcesTableSchema = `
	CREATE TABLE IF NOT EXISTS resources (
		client_id VARCHAR NOT NULL,
		account_id VARCHAR NOT NULL,
		resource_id VARCHAR NOT NULL,
		resource_type VARCHAR NOT NULL,
		region VARCHAR NOT NULL DEFAULT '',
		state VARCHAR NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '{}',
		metadata TEXT NOT NULL DEFAULT '{}',
		detected_at %[1]s NOT NULL,
		last_seen_at %[1]s NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (client_id, resource_id)
	);
`

const ResourcesScopeIndex = `
	CREATE INDEX IF NOT EXISTS idx_resources_scope
	ON resources (client_id, account_id, resource_type, is_active);
`

const FindingsTableSchema = `
	CREATE TABLE IF NOT EXISTS findings (
		id VARCHAR PRIMARY KEY,
		client_id VARCHAR NOT NULL,
		account_id VARCHAR NOT NULL,
		resource_id VARCHAR NOT NULL,
		resource_type VARCHAR NOT NULL,
		finding_type VARCHAR NOT NULL,
		severity VARCHAR NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		estimated_monthly_savings %[2]s NOT NULL DEFAULT 0,
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		resolved_at %[1]s NULL,
		resolved_by VARCHAR NULL,
		reopen_count INTEGER NOT NULL DEFAULT 0,
		detected_at %[1]s NOT NULL,
		created_at %[1]s NOT NULL,
		updated_at %[1]s NOT NULL
	);
`

// FindingsTupleIndex keeps a single row per (client, resource, finding type).
// Reopening reuses that row, so at most one active finding can exist per tuple.
const FindingsTupleIndex = `
	CREATE UNIQUE INDEX IF NOT EXISTS ux_findings_tuple
	ON findings (client_id, resource_id, finding_type);
`

const FindingsActiveIndex = `
	CREATE INDEX IF NOT EXISTS idx_findings_active
	ON findings (client_id, finding_type, resolved);
`

var bootQueries = []string{
	ResourcesTableSchema,
	ResourcesScopeIndex,
	FindingsTableSchema,
	FindingsTupleIndex,
	FindingsActiveIndex,
}

type Settings struct {
	// Driver is either sqlite or postgres (default: sqlite)
	Driver string `mapstructure:"driver"`
	// DSN is a file path for sqlite or a connection string for postgres
	DSN             string        `mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func NewDB(ctx context.Context, settings Settings) (*sql.DB, error) {
	dialect, err := ParseDialect(settings.Driver)
	if err != nil {
		return nil, err
	}

	dsn := settings.DSN
	if dialect == DialectSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	switch {
	case dialect == DialectSQLite:
		// A single connection serializes writers and keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
	case settings.MaxOpenConns > 0:
		db.SetMaxOpenConns(settings.MaxOpenConns)
	}
	if settings.ConnMaxLifetime > 0 && dialect != DialectSQLite {
		db.SetConnMaxLifetime(settings.ConnMaxLifetime)
	}

	if err := Migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	timestampType, decimalType := "TIMESTAMP", "TEXT"
	if dialect == DialectPostgres {
		timestampType, decimalType = "TIMESTAMPTZ", "NUMERIC(14,2)"
	}

	for _, query := range bootQueries {
		if strings.Contains(query, "%[") {
			query = fmt.Sprintf(query, timestampType, decimalType)
		}
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}

func sqliteDSN(path string) string {
	if path == "" || path == ":memory:" || strings.Contains(path, "?") {
		if path == "" {
			return ":memory:"
		}
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
}
