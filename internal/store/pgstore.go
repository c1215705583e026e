package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/entityconfig/model"
)

// PgFieldStore is a PostgreSQL-backed FieldStore using pgx/v5.
type PgFieldStore struct {
	pool *pgxpool.Pool
}

// NewPgFieldStore creates a new PostgreSQL field store.
func NewPgFieldStore(pool *pgxpool.Pool) *PgFieldStore {
	return &PgFieldStore{pool: pool}
}

// GetEntity returns the entity record with the given ID.
func (s *PgFieldStore) GetEntity(ctx context.Context, id int64) (*model.EntityConfigModel, error) {
	var e model.EntityConfigModel
	err := s.pool.QueryRow(ctx, `
		SELECT id, class_name FROM entity_configs WHERE id = $1`, id,
	).Scan(&e.ID, &e.ClassName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.NewNotFoundError(fmt.Sprintf("entity %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("query entity config: %w", err)
	}
	return &e, nil
}

// SaveEntity inserts or updates an entity record.
func (s *PgFieldStore) SaveEntity(ctx context.Context, entity model.EntityConfigModel) error {
	if entity.ID == 0 || entity.ClassName == "" {
		return model.NewBadRequestError("entity id and class name are required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO entity_configs (id, class_name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET
			class_name = EXCLUDED.class_name,
			updated_at = now()`,
		entity.ID, entity.ClassName,
	)
	if err != nil {
		return fmt.Errorf("upsert entity config: %w", err)
	}
	return nil
}

// SaveField inserts or updates a field record and sets its ID.
func (s *PgFieldStore) SaveField(ctx context.Context, field *model.FieldConfigModel) error {
	if field.Entity == nil || field.FieldName == "" {
		return model.NewBadRequestError("field entity and name are required")
	}

	scopes := field.Scopes
	if scopes == nil {
		scopes = map[string]map[string]any{}
	}
	scopesJSON, err := json.Marshal(scopes)
	if err != nil {
		return fmt.Errorf("marshal scopes: %w", err)
	}

	var id int64
	if field.ID == 0 {
		err = s.pool.QueryRow(ctx, `
			INSERT INTO field_configs (entity_id, field_name, type, scopes)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (entity_id, field_name) DO UPDATE SET
				type = EXCLUDED.type,
				scopes = EXCLUDED.scopes,
				updated_at = now()
			RETURNING id`,
			field.Entity.ID, field.FieldName, field.Type, scopesJSON,
		).Scan(&id)
	} else {
		err = s.pool.QueryRow(ctx, `
			INSERT INTO field_configs (id, entity_id, field_name, type, scopes)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (entity_id, field_name) DO UPDATE SET
				type = EXCLUDED.type,
				scopes = EXCLUDED.scopes,
				updated_at = now()
			RETURNING id`,
			field.ID, field.Entity.ID, field.FieldName, field.Type, scopesJSON,
		).Scan(&id)
	}
	if err != nil {
		return fmt.Errorf("upsert field config: %w", err)
	}
	field.ID = id
	return nil
}

// ListFields returns a page of field records ordered by ID.
func (s *PgFieldStore) ListFields(ctx context.Context, offset, limit int) ([]*model.FieldConfigModel, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT f.id, f.field_name, f.type, f.scopes, e.id, e.class_name
		FROM field_configs f
		JOIN entity_configs e ON e.id = f.entity_id
		ORDER BY f.id ASC
		OFFSET $1 LIMIT $2`,
		offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query field configs: %w", err)
	}
	defer rows.Close()

	var fields []*model.FieldConfigModel
	for rows.Next() {
		var (
			f          model.FieldConfigModel
			e          model.EntityConfigModel
			scopesJSON []byte
		)
		if err := rows.Scan(&f.ID, &f.FieldName, &f.Type, &scopesJSON, &e.ID, &e.ClassName); err != nil {
			return nil, fmt.Errorf("scan field config: %w", err)
		}
		if len(scopesJSON) > 0 {
			if err := json.Unmarshal(scopesJSON, &f.Scopes); err != nil {
				return nil, fmt.Errorf("unmarshal scopes: %w", err)
			}
		}
		f.Entity = &e
		fields = append(fields, &f)
	}
	return fields, rows.Err()
}

// CountFields returns the number of stored field records.
func (s *PgFieldStore) CountFields(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM field_configs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count field configs: %w", err)
	}
	return n, nil
}

// HealthCheck pings the database.
func (s *PgFieldStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// syncSequence moves the id sequence past explicitly seeded IDs.
func (s *PgFieldStore) syncSequence(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		SELECT setval(pg_get_serial_sequence('field_configs', 'id'),
		              COALESCE((SELECT MAX(id) FROM field_configs), 0) + 1, false)`)
	if err != nil {
		return fmt.Errorf("sync field id sequence: %w", err)
	}
	return nil
}
