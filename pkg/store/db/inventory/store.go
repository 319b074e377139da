package inventory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/de-tools/waste-atlas/pkg/models/store"
	"github.com/de-tools/waste-atlas/pkg/store/db"
)

// Store persists the last known state of every tracked resource.
// Upsert is keyed on (client_id, resource_id); the last writer wins.
type Store interface {
	Upsert(ctx context.Context, resource store.Resource) error
	Deactivate(ctx context.Context, clientID, accountID, resourceType string) (int64, error)
	ListActive(ctx context.Context, clientID string, filter store.ResourceFilter) ([]store.Resource, error)
	Get(ctx context.Context, clientID, resourceID string) (*store.Resource, error)
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type inventoryStore struct {
	db      *sql.DB
	dialect db.Dialect
}

func NewStore(conn *sql.DB) (Store, error) {
	if conn == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &inventoryStore{
		db:      conn,
		dialect: db.DialectOf(conn),
	}, nil
}

func (s *inventoryStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.RunInTx(ctx, s.db, fn)
}

func (s *inventoryStore) Upsert(ctx context.Context, resource store.Resource) error {
	if resource.ClientID == "" || resource.ResourceID == "" {
		return fmt.Errorf("upsert resource: client_id and resource_id are required")
	}

	tags, err := json.Marshal(nonNilTags(resource.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	metadata, err := json.Marshal(nonNilMetadata(resource.Metadata))
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	detectedAt := resource.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = resource.LastSeenAt
	}

	query := `
		INSERT INTO resources (
			client_id, account_id, resource_id, resource_type, region, state,
			tags, metadata, detected_at, last_seen_at, is_active
		) VALUES (
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		)
		ON CONFLICT (client_id, resource_id) DO UPDATE SET
			account_id = excluded.account_id,
			resource_type = excluded.resource_type,
			region = excluded.region,
			state = excluded.state,
			tags = excluded.tags,
			metadata = excluded.metadata,
			last_seen_at = excluded.last_seen_at,
			is_active = excluded.is_active`

	_, err = db.Conn(ctx, s.db).ExecContext(ctx, db.Rebind(s.dialect, query),
		resource.ClientID,
		resource.AccountID,
		resource.ResourceID,
		resource.ResourceType,
		resource.Region,
		resource.State,
		string(tags),
		string(metadata),
		detectedAt.UTC(),
		resource.LastSeenAt.UTC(),
		true,
	)
	if err != nil {
		return fmt.Errorf("upsert resource %s: %w", resource.ResourceID, err)
	}
	return nil
}

func (s *inventoryStore) Deactivate(ctx context.Context, clientID, accountID, resourceType string) (int64, error) {
	query := `
		UPDATE resources SET is_active = ?
		WHERE client_id = ? AND account_id = ? AND resource_type = ? AND is_active = ?`

	res, err := db.Conn(ctx, s.db).ExecContext(ctx, db.Rebind(s.dialect, query),
		false, clientID, accountID, resourceType, true)
	if err != nil {
		return 0, fmt.Errorf("deactivate resources: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate resources: %w", err)
	}
	return n, nil
}

func (s *inventoryStore) ListActive(
	ctx context.Context,
	clientID string,
	filter store.ResourceFilter,
) ([]store.Resource, error) {
	var (
		where = []string{"client_id = ?", "is_active = ?"}
		args  = []any{clientID, true}
	)
	if filter.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, filter.AccountID)
	}
	if len(filter.ResourceTypes) > 0 {
		where = append(where, fmt.Sprintf("resource_type IN (%s)", db.Placeholders(len(filter.ResourceTypes))))
		for _, rt := range filter.ResourceTypes {
			args = append(args, rt)
		}
	}

	query := fmt.Sprintf(`
		SELECT client_id, account_id, resource_id, resource_type, region, state,
			tags, metadata, detected_at, last_seen_at, is_active
		FROM resources
		WHERE %s
		ORDER BY resource_type, resource_id`, strings.Join(where, " AND "))

	rows, err := db.Conn(ctx, s.db).QueryContext(ctx, db.Rebind(s.dialect, query), args...)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer rows.Close()

	resources := []store.Resource{}
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return resources, nil
}

func (s *inventoryStore) Get(ctx context.Context, clientID, resourceID string) (*store.Resource, error) {
	query := `
		SELECT client_id, account_id, resource_id, resource_type, region, state,
			tags, metadata, detected_at, last_seen_at, is_active
		FROM resources
		WHERE client_id = ? AND resource_id = ?`

	row := db.Conn(ctx, s.db).QueryRowContext(ctx, db.Rebind(s.dialect, query), clientID, resourceID)
	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resource %s: %w", resourceID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResource(row scanner) (store.Resource, error) {
	var (
		r        store.Resource
		tags     string
		metadata string
	)
	err := row.Scan(
		&r.ClientID,
		&r.AccountID,
		&r.ResourceID,
		&r.ResourceType,
		&r.Region,
		&r.State,
		&tags,
		&metadata,
		&r.DetectedAt,
		&r.LastSeenAt,
		&r.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return r, err
	}
	if err != nil {
		return r, fmt.Errorf("scan resource: %w", err)
	}

	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
		return r, fmt.Errorf("unmarshal tags for %s: %w", r.ResourceID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &r.Metadata); err != nil {
		return r, fmt.Errorf("unmarshal metadata for %s: %w", r.ResourceID, err)
	}
	return r, nil
}

func nonNilTags(tags map[string]string) map[string]string {
	if tags == nil {
		return map[string]string{}
	}
	return tags
}

func nonNilMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return map[string]any{}
	}
	return metadata
}
