package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/recordport/internal/db"
	"github.com/rpattn/recordport/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// recordStore implements RecordStore on Postgres. Records live in one table
// with their field values in a JSONB column; key lookups and export filters
// use JSONB containment.
type recordStore struct {
	conn *db.Connection
}

// NewRecordStore creates a Postgres backed record store.
func NewRecordStore(conn *db.Connection) RecordStore {
	return &recordStore{conn: conn}
}

func (r *recordStore) FindByKey(ctx context.Context, organizationID, schemaID uuid.UUID, keyFields []string, keyValues []any) (domain.Record, error) {
	if len(keyFields) == 0 || len(keyFields) != len(keyValues) {
		return domain.Record{}, fmt.Errorf("key fields and values must be non-empty and of equal length")
	}

	key := make(map[string]any, len(keyFields))
	for i, field := range keyFields {
		key[field] = keyValues[i]
	}
	keyJSON, err := json.Marshal(key)
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to marshal key: %w", err)
	}

	row := r.conn.Pool.QueryRow(
		ctx,
		`SELECT id, organization_id, schema_id, schema_name, fields, created_at, updated_at
		 FROM records
		 WHERE organization_id = $1
		   AND schema_id = $2
		   AND fields @> $3
		 LIMIT 1`,
		organizationID,
		schemaID,
		keyJSON,
	)

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Record{}, ErrNotFound
		}
		return domain.Record{}, fmt.Errorf("failed to find record by key: %w", err)
	}
	return record, nil
}

func (r *recordStore) List(ctx context.Context, organizationID uuid.UUID, schemaName string, filter map[string]any, limit, offset int) ([]domain.Record, int, error) {
	if limit <= 0 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}

	filterJSON := []byte("{}")
	if len(filter) > 0 {
		encoded, err := json.Marshal(filter)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal filter: %w", err)
		}
		filterJSON = encoded
	}

	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT id, organization_id, schema_id, schema_name, fields, created_at, updated_at,
		        COUNT(*) OVER() AS total_count
		 FROM records
		 WHERE organization_id = $1
		   AND schema_name = $2
		   AND fields @> $3
		 ORDER BY created_at, id
		 LIMIT $4 OFFSET $5`,
		organizationID,
		schemaName,
		filterJSON,
		limit,
		offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := []domain.Record{}
	total := 0
	for rows.Next() {
		var (
			record     domain.Record
			fieldsJSON []byte
			createdAt  pgtype.Timestamptz
			updatedAt  pgtype.Timestamptz
			totalCount int64
		)
		if scanErr := rows.Scan(
			&record.ID,
			&record.OrganizationID,
			&record.SchemaID,
			&record.SchemaName,
			&fieldsJSON,
			&createdAt,
			&updatedAt,
			&totalCount,
		); scanErr != nil {
			return nil, 0, fmt.Errorf("failed to scan record: %w", scanErr)
		}

		fields, convErr := domain.FromJSONBFieldValues(fieldsJSON)
		if convErr != nil {
			return nil, 0, fmt.Errorf("failed to decode record fields: %w", convErr)
		}
		record.Fields = fields
		if createdAt.Valid {
			record.CreatedAt = createdAt.Time
		}
		if updatedAt.Valid {
			record.UpdatedAt = updatedAt.Time
		}

		total = int(totalCount)
		records = append(records, record)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, fmt.Errorf("failed to iterate records: %w", rowsErr)
	}

	return records, total, nil
}

func (r *recordStore) InTx(ctx context.Context, fn func(RecordBatch) error) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&recordBatch{tx: tx})
	})
}

// recordBatch implements RecordBatch against one open transaction.
type recordBatch struct {
	tx pgx.Tx
}

func (b *recordBatch) BulkInsert(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(records))
	for i := range records {
		fieldsJSON, err := records[i].GetFieldsAsJSONB()
		if err != nil {
			return fmt.Errorf("failed to marshal record fields: %w", err)
		}
		rows = append(rows, []any{
			records[i].ID,
			records[i].OrganizationID,
			records[i].SchemaID,
			records[i].SchemaName,
			fieldsJSON,
			records[i].CreatedAt,
			records[i].UpdatedAt,
		})
	}

	copied, err := b.tx.CopyFrom(
		ctx,
		pgx.Identifier{"records"},
		[]string{"id", "organization_id", "schema_id", "schema_name", "fields", "created_at", "updated_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to bulk insert records: %w", err)
	}
	if copied != int64(len(records)) {
		return fmt.Errorf("bulk insert copied %d of %d records", copied, len(records))
	}
	return nil
}

func (b *recordBatch) BulkUpdate(ctx context.Context, records []domain.Record, fields []string) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	now := time.Now()
	for i := range records {
		patch := make(map[string]any, len(fields))
		for _, field := range fields {
			if value, ok := records[i].Fields[field]; ok {
				patch[field] = value
			}
		}
		patchJSON, err := json.Marshal(patch)
		if err != nil {
			return fmt.Errorf("failed to marshal update patch: %w", err)
		}
		batch.Queue(
			`UPDATE records
			 SET fields = fields || $2, updated_at = $3
			 WHERE id = $1`,
			records[i].ID,
			patchJSON,
			now,
		)
	}

	results := b.tx.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to bulk update records: %w", err)
		}
	}
	return nil
}

func scanRecord(row pgx.Row) (domain.Record, error) {
	var (
		record     domain.Record
		fieldsJSON []byte
		createdAt  pgtype.Timestamptz
		updatedAt  pgtype.Timestamptz
	)
	if err := row.Scan(
		&record.ID,
		&record.OrganizationID,
		&record.SchemaID,
		&record.SchemaName,
		&fieldsJSON,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Record{}, err
	}

	fields, err := domain.FromJSONBFieldValues(fieldsJSON)
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to decode record fields: %w", err)
	}
	record.Fields = fields
	if createdAt.Valid {
		record.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		record.UpdatedAt = updatedAt.Time
	}
	return record, nil
}
