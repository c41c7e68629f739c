package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rpattn/recordport/internal/db"
	"github.com/rpattn/recordport/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type schemaRepository struct {
	conn *db.Connection
}

// NewSchemaRepository creates a Postgres backed schema repository.
func NewSchemaRepository(conn *db.Connection) SchemaRepository {
	return &schemaRepository{conn: conn}
}

func (r *schemaRepository) Create(ctx context.Context, schema domain.RecordSchema) (domain.RecordSchema, error) {
	fieldsJSON, err := schema.GetFieldsAsJSONB()
	if err != nil {
		return domain.RecordSchema{}, fmt.Errorf("failed to marshal schema fields: %w", err)
	}
	constraintsJSON, err := json.Marshal(schema.UniqueConstraints)
	if err != nil {
		return domain.RecordSchema{}, fmt.Errorf("failed to marshal unique constraints: %w", err)
	}

	_, err = r.conn.Pool.Exec(
		ctx,
		`INSERT INTO record_schemas (id, organization_id, name, description, fields, unique_together, unique_constraints, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		schema.ID,
		schema.OrganizationID,
		schema.Name,
		schema.Description,
		fieldsJSON,
		schema.UniqueTogether,
		constraintsJSON,
		schema.CreatedAt,
		schema.UpdatedAt,
	)
	if err != nil {
		return domain.RecordSchema{}, fmt.Errorf("failed to create schema: %w", err)
	}
	return schema, nil
}

func (r *schemaRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.RecordSchema, error) {
	row := r.conn.Pool.QueryRow(
		ctx,
		`SELECT id, organization_id, name, description, fields, unique_together, unique_constraints, created_at, updated_at
		 FROM record_schemas
		 WHERE id = $1`,
		id,
	)
	return scanSchema(row)
}

func (r *schemaRepository) GetByName(ctx context.Context, organizationID uuid.UUID, name string) (domain.RecordSchema, error) {
	row := r.conn.Pool.QueryRow(
		ctx,
		`SELECT id, organization_id, name, description, fields, unique_together, unique_constraints, created_at, updated_at
		 FROM record_schemas
		 WHERE organization_id = $1 AND name = $2`,
		organizationID,
		name,
	)
	return scanSchema(row)
}

func (r *schemaRepository) Exists(ctx context.Context, organizationID uuid.UUID, name string) (bool, error) {
	var exists bool
	err := r.conn.Pool.QueryRow(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM record_schemas WHERE organization_id = $1 AND name = $2)`,
		organizationID,
		name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check schema existence: %w", err)
	}
	return exists, nil
}

func (r *schemaRepository) List(ctx context.Context, organizationID uuid.UUID) ([]domain.RecordSchema, error) {
	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT id, organization_id, name, description, fields, unique_together, unique_constraints, created_at, updated_at
		 FROM record_schemas
		 WHERE organization_id = $1
		 ORDER BY name`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}
	defer rows.Close()

	schemas := []domain.RecordSchema{}
	for rows.Next() {
		schema, scanErr := scanSchema(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		schemas = append(schemas, schema)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate schemas: %w", rowsErr)
	}
	return schemas, nil
}

func scanSchema(row pgx.Row) (domain.RecordSchema, error) {
	var (
		schema          domain.RecordSchema
		fieldsJSON      []byte
		constraintsJSON []byte
		createdAt       pgtype.Timestamptz
		updatedAt       pgtype.Timestamptz
	)
	if err := row.Scan(
		&schema.ID,
		&schema.OrganizationID,
		&schema.Name,
		&schema.Description,
		&fieldsJSON,
		&schema.UniqueTogether,
		&constraintsJSON,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RecordSchema{}, ErrNotFound
		}
		return domain.RecordSchema{}, fmt.Errorf("failed to scan schema: %w", err)
	}

	fields, err := domain.FromJSONBFields(fieldsJSON)
	if err != nil {
		return domain.RecordSchema{}, fmt.Errorf("failed to decode schema fields: %w", err)
	}
	schema.Fields = fields

	if len(constraintsJSON) > 0 {
		if err := json.Unmarshal(constraintsJSON, &schema.UniqueConstraints); err != nil {
			return domain.RecordSchema{}, fmt.Errorf("failed to decode unique constraints: %w", err)
		}
	}
	if createdAt.Valid {
		schema.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		schema.UpdatedAt = updatedAt.Time
	}
	return schema, nil
}
