package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/recordport/internal/domain"
	"github.com/rpattn/recordport/internal/repository"
)

const defaultPageSize = 5000

// Request describes one export stream.
type Request struct {
	OrganizationID uuid.UUID
	SchemaName     string
	// IncludeFields/ExcludeFields filter the exported columns the same way
	// import field filters work. Empty include admits every field.
	IncludeFields []string
	ExcludeFields []string
	// OmitHeader suppresses the header row.
	OmitHeader bool
	// Filters restricts the exported records to those whose stored document
	// contains the given field values.
	Filters map[string]any
}

// Service streams stored records out as CSV. Exports are synchronous; rows
// are paged out of the store and written as they arrive, so memory use is
// bounded regardless of record count.
type Service struct {
	schemas  repository.SchemaRepository
	store    repository.RecordStore
	pageSize int
}

// NewService wires an export service.
func NewService(schemas repository.SchemaRepository, store repository.RecordStore) *Service {
	return &Service{schemas: schemas, store: store, pageSize: defaultPageSize}
}

// Write streams the matching records to w and returns the number of data rows
// written.
func (s *Service) Write(ctx context.Context, w io.Writer, req Request) (int, error) {
	schema, err := s.schemas.GetByName(ctx, req.OrganizationID, req.SchemaName)
	if err != nil {
		return 0, fmt.Errorf("resolve schema: %w", err)
	}

	columns := exportColumns(schema, req.IncludeFields, req.ExcludeFields)
	if len(columns) == 0 {
		return 0, errors.New("no exportable fields after applying field filters")
	}

	csvWriter := csv.NewWriter(w)
	if !req.OmitHeader {
		if err := csvWriter.Write(columns); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
	}

	row := make([]string, len(columns))
	rowsWritten := 0
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			return rowsWritten, err
		}

		records, _, err := s.store.List(ctx, req.OrganizationID, req.SchemaName, req.Filters, s.pageSize, offset)
		if err != nil {
			return rowsWritten, fmt.Errorf("list records: %w", err)
		}
		if len(records) == 0 {
			break
		}

		for _, record := range records {
			for i, column := range columns {
				row[i] = formatValue(record.Fields[column])
			}
			if err := csvWriter.Write(row); err != nil {
				return rowsWritten, fmt.Errorf("write row: %w", err)
			}
			rowsWritten++
		}

		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			return rowsWritten, fmt.Errorf("flush rows: %w", err)
		}

		if len(records) < s.pageSize {
			break
		}
		offset += len(records)
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return rowsWritten, fmt.Errorf("flush output: %w", err)
	}
	return rowsWritten, nil
}

// exportColumns applies the include/exclude filters to the schema's fields,
// preserving declaration order.
func exportColumns(schema domain.RecordSchema, include, exclude []string) []string {
	includeSet := toSet(include)
	excludeSet := toSet(exclude)

	columns := make([]string, 0, len(schema.Fields))
	for _, field := range schema.Fields {
		if len(includeSet) > 0 {
			if _, ok := includeSet[field.Name]; !ok {
				continue
			}
		}
		if _, ok := excludeSet[field.Name]; ok {
			continue
		}
		columns = append(columns, field.Name)
	}
	return columns
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// ExportFileName derives a safe attachment name from the schema name.
func ExportFileName(schemaName string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, strings.TrimSpace(schemaName))
	sanitized = strings.Trim(sanitized, "-")
	if sanitized == "" {
		sanitized = "export"
	}
	return sanitized + ".csv"
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case json.Number:
		return v.String()
	case float32, float64, int, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%v", v)
	case []byte:
		return string(v)
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
