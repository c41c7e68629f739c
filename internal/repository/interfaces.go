package repository

import (
	"context"
	"errors"

	"github.com/rpattn/recordport/internal/domain"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup matches no stored row.
var ErrNotFound = errors.New("not found")

// OrganizationRepository defines the interface for organization operations
type OrganizationRepository interface {
	Create(ctx context.Context, org domain.Organization) (domain.Organization, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Organization, error)
	GetByName(ctx context.Context, name string) (domain.Organization, error)
	List(ctx context.Context) ([]domain.Organization, error)
}

// SchemaRepository defines the interface for record schema operations
type SchemaRepository interface {
	Create(ctx context.Context, schema domain.RecordSchema) (domain.RecordSchema, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.RecordSchema, error)
	GetByName(ctx context.Context, organizationID uuid.UUID, name string) (domain.RecordSchema, error)
	Exists(ctx context.Context, organizationID uuid.UUID, name string) (bool, error)
	List(ctx context.Context, organizationID uuid.UUID) ([]domain.RecordSchema, error)
}

// RecordStore is the persistent store the import and export pipelines run
// against. FindByKey returns ErrNotFound when no record matches the key.
type RecordStore interface {
	FindByKey(ctx context.Context, organizationID, schemaID uuid.UUID, keyFields []string, keyValues []any) (domain.Record, error)
	List(ctx context.Context, organizationID uuid.UUID, schemaName string, filter map[string]any, limit, offset int) ([]domain.Record, int, error)
	// InTx runs fn inside one transaction; the batch writer it receives is
	// only valid for the duration of the call. Any error from fn rolls the
	// transaction back.
	InTx(ctx context.Context, fn func(RecordBatch) error) error
}

// RecordBatch exposes the bulk write primitives available inside one
// transaction.
type RecordBatch interface {
	BulkInsert(ctx context.Context, records []domain.Record) error
	// BulkUpdate rewrites only the named fields of each record's stored
	// document.
	BulkUpdate(ctx context.Context, records []domain.Record, fields []string) error
}

// ImportLogRepository stores import row errors for observability.
type ImportLogRepository interface {
	Record(ctx context.Context, entry domain.ImportLogEntry) error
	List(ctx context.Context, organizationID uuid.UUID, schemaName string, fileName string, limit int, offset int) ([]domain.ImportLogEntry, error)
}
