package findings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/de-tools/waste-atlas/pkg/models/store"
	"github.com/de-tools/waste-atlas/pkg/store/db"
)

// Store holds one lifecycle row per (client_id, resource_id, finding_type).
// Only the reconciliation engine is expected to call the mutating methods.
type Store interface {
	ListByType(ctx context.Context, clientID, findingType string) ([]store.Finding, error)
	Insert(ctx context.Context, finding store.Finding) error
	Reopen(ctx context.Context, finding store.Finding) error
	Resolve(ctx context.Context, id string, at time.Time, actor string) (bool, error)
	Get(ctx context.Context, clientID, id string) (*store.Finding, error)
	ListActive(ctx context.Context, clientID string, filter store.FindingFilter) ([]store.Finding, error)
	ListActiveTypes(ctx context.Context, clientID, accountID, prefix string) ([]string, error)
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

const findingColumns = `
	id, client_id, account_id, resource_id, resource_type, finding_type,
	severity, message, estimated_monthly_savings, resolved, resolved_at,
	resolved_by, reopen_count, detected_at, created_at, updated_at`

type findingStore struct {
	db      *sql.DB
	dialect db.Dialect
}

func NewStore(conn *sql.DB) (Store, error) {
	if conn == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &findingStore{
		db:      conn,
		dialect: db.DialectOf(conn),
	}, nil
}

func (s *findingStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.RunInTx(ctx, s.db, fn)
}

func (s *findingStore) q(query string) string {
	return db.Rebind(s.dialect, query)
}

func (s *findingStore) ListByType(ctx context.Context, clientID, findingType string) ([]store.Finding, error) {
	query := `SELECT ` + findingColumns + `
		FROM findings
		WHERE client_id = ? AND finding_type = ?
		ORDER BY resource_id`

	rows, err := db.Conn(ctx, s.db).QueryContext(ctx, s.q(query), clientID, findingType)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()
	return scanFindings(rows)
}

func (s *findingStore) Insert(ctx context.Context, f store.Finding) error {
	query := `
		INSERT INTO findings (` + findingColumns + `
		) VALUES (
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		)`

	_, err := db.Conn(ctx, s.db).ExecContext(ctx, s.q(query),
		f.ID,
		f.ClientID,
		f.AccountID,
		f.ResourceID,
		f.ResourceType,
		f.FindingType,
		f.Severity,
		f.Message,
		f.EstimatedMonthlySavings,
		f.Resolved,
		utcPtr(f.ResolvedAt),
		f.ResolvedBy,
		f.ReopenCount,
		f.DetectedAt.UTC(),
		f.CreatedAt.UTC(),
		f.UpdatedAt.UTC(),
	)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("insert finding %s/%s: %w", f.ResourceID, f.FindingType, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert finding: %w", err)
	}
	return nil
}

// Reopen flips a resolved row back to active and refreshes the values supplied
// by the current run. The resolved = true guard makes a lost race visible as a
// conflict instead of a silent double reopen.
func (s *findingStore) Reopen(ctx context.Context, f store.Finding) error {
	query := `
		UPDATE findings SET
			account_id = ?,
			resource_type = ?,
			severity = ?,
			message = ?,
			estimated_monthly_savings = ?,
			resolved = ?,
			resolved_at = NULL,
			resolved_by = NULL,
			reopen_count = ?,
			detected_at = ?,
			updated_at = ?
		WHERE id = ? AND resolved = ?`

	res, err := db.Conn(ctx, s.db).ExecContext(ctx, s.q(query),
		f.AccountID,
		f.ResourceType,
		f.Severity,
		f.Message,
		f.EstimatedMonthlySavings,
		false,
		f.ReopenCount,
		f.DetectedAt.UTC(),
		f.UpdatedAt.UTC(),
		f.ID,
		true,
	)
	if err != nil {
		return fmt.Errorf("reopen finding %s: %w", f.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reopen finding %s: %w", f.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("reopen finding %s: %w", f.ID, domain.ErrConflict)
	}
	return nil
}

// Resolve closes an active finding. It reports false when the row was already
// resolved or does not exist.
func (s *findingStore) Resolve(ctx context.Context, id string, at time.Time, actor string) (bool, error) {
	query := `
		UPDATE findings SET
			resolved = ?,
			resolved_at = ?,
			resolved_by = ?,
			updated_at = ?
		WHERE id = ? AND resolved = ?`

	res, err := db.Conn(ctx, s.db).ExecContext(ctx, s.q(query),
		true, at.UTC(), actor, at.UTC(), id, false)
	if err != nil {
		return false, fmt.Errorf("resolve finding %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve finding %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *findingStore) Get(ctx context.Context, clientID, id string) (*store.Finding, error) {
	query := `SELECT ` + findingColumns + `
		FROM findings
		WHERE client_id = ? AND id = ?`

	row := db.Conn(ctx, s.db).QueryRowContext(ctx, s.q(query), clientID, id)
	f, err := scanFinding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("finding %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *findingStore) ListActive(
	ctx context.Context,
	clientID string,
	filter store.FindingFilter,
) ([]store.Finding, error) {
	var (
		where = []string{"client_id = ?", "resolved = ?"}
		args  = []any{clientID, false}
	)
	if filter.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, filter.AccountID)
	}
	if filter.ResourceID != "" {
		where = append(where, "resource_id = ?")
		args = append(args, filter.ResourceID)
	}
	if filter.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, filter.Severity)
	}
	if len(filter.FindingTypes) > 0 {
		where = append(where, fmt.Sprintf("finding_type IN (%s)", db.Placeholders(len(filter.FindingTypes))))
		for _, ft := range filter.FindingTypes {
			args = append(args, ft)
		}
	}
	if len(filter.ResourceTypes) > 0 {
		where = append(where, fmt.Sprintf("resource_type IN (%s)", db.Placeholders(len(filter.ResourceTypes))))
		for _, rt := range filter.ResourceTypes {
			args = append(args, rt)
		}
	}

	query := fmt.Sprintf(`SELECT %s
		FROM findings
		WHERE %s
		ORDER BY
			CASE severity WHEN 'HIGH' THEN 0 WHEN 'MEDIUM' THEN 1 ELSE 2 END,
			detected_at, resource_id, finding_type`, findingColumns, strings.Join(where, " AND "))

	rows, err := db.Conn(ctx, s.db).QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query active findings: %w", err)
	}
	defer rows.Close()
	return scanFindings(rows)
}

func (s *findingStore) ListActiveTypes(ctx context.Context, clientID, accountID, prefix string) ([]string, error) {
	var (
		where = []string{"client_id = ?", "resolved = ?"}
		args  = []any{clientID, false}
	)
	if accountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, accountID)
	}

	query := fmt.Sprintf(`SELECT DISTINCT finding_type FROM findings WHERE %s ORDER BY finding_type`,
		strings.Join(where, " AND "))

	rows, err := db.Conn(ctx, s.db).QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query active finding types: %w", err)
	}
	defer rows.Close()

	types := []string{}
	for rows.Next() {
		var ft string
		if err := rows.Scan(&ft); err != nil {
			return nil, fmt.Errorf("scan finding type: %w", err)
		}
		if strings.HasPrefix(ft, prefix) {
			types = append(types, ft)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate finding types: %w", err)
	}
	return types, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFinding(row rowScanner) (store.Finding, error) {
	var (
		f          store.Finding
		resolvedAt sql.NullTime
		resolvedBy sql.NullString
	)
	err := row.Scan(
		&f.ID,
		&f.ClientID,
		&f.AccountID,
		&f.ResourceID,
		&f.ResourceType,
		&f.FindingType,
		&f.Severity,
		&f.Message,
		&f.EstimatedMonthlySavings,
		&f.Resolved,
		&resolvedAt,
		&resolvedBy,
		&f.ReopenCount,
		&f.DetectedAt,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return f, err
	}
	if err != nil {
		return f, fmt.Errorf("scan finding: %w", err)
	}

	if resolvedAt.Valid {
		t := resolvedAt.Time
		f.ResolvedAt = &t
	}
	if resolvedBy.Valid {
		actor := resolvedBy.String
		f.ResolvedBy = &actor
	}
	return f, nil
}

func scanFindings(rows *sql.Rows) ([]store.Finding, error) {
	findings := []store.Finding{}
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate findings: %w", err)
	}
	return findings, nil
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
