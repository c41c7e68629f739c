package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/rpattn/recordport/internal/domain"
)

func writeSourceFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write source file: %v", err)
	}
	return path
}

const peopleCSV = `email,name,age
a@example.com,Alice,30
b@example.com,Bob,40
c@example.com,Cara,50
d@example.com,Dan,60
e@example.com,Eve,70
`

func TestDriverRunCommitsChunks(t *testing.T) {
	orgID := uuid.New()
	schema := personSchema(orgID)
	store := &stubRecordStore{}
	logs := &stubLogRepo{}
	driver := NewDriver(store, logs, Hooks{})

	path := writeSourceFile(t, "people.csv", peopleCSV)
	report, err := driver.Run(context.Background(), RunRequest{
		Schema:       schema,
		SourcePath:   path,
		FileName:     "people.csv",
		RemoveSource: true,
		Options:      Options{ChunkSize: 2},
	})
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if report.TotalRows != 5 || report.Inserted != 5 || report.Updated != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.ChunksCommitted != 3 {
		t.Fatalf("expected 3 chunks (2,2,1), got %d", report.ChunksCommitted)
	}
	if len(store.records) != 5 {
		t.Fatalf("expected 5 stored records, got %d", len(store.records))
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("source file should be removed after the run")
	}
}

func TestDriverRunSecondPassUpdates(t *testing.T) {
	orgID := uuid.New()
	schema := personSchema(orgID)
	store := &stubRecordStore{}
	driver := NewDriver(store, nil, Hooks{})

	run := func() domain.ImportReport {
		path := writeSourceFile(t, "people.csv", peopleCSV)
		report, err := driver.Run(context.Background(), RunRequest{
			Schema:       schema,
			SourcePath:   path,
			FileName:     "people.csv",
			RemoveSource: true,
			Options:      Options{ChunkSize: 10},
		})
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
		return report
	}

	first := run()
	if first.Inserted != 5 || first.Updated != 0 {
		t.Fatalf("unexpected first report: %+v", first)
	}

	second := run()
	if second.Inserted != 0 || second.Updated != 5 {
		t.Fatalf("re-import should update every row, got %+v", second)
	}
	if len(store.records) != 5 {
		t.Fatalf("re-import must not duplicate records, got %d", len(store.records))
	}
}

func TestDriverRunFatalStoreErrorLeavesEarlierChunks(t *testing.T) {
	orgID := uuid.New()
	schema := personSchema(orgID)
	store := &stubRecordStore{
		failOnTx: 2,
		txErr:    errors.New("connection reset"),
	}
	driver := NewDriver(store, nil, Hooks{})

	path := writeSourceFile(t, "people.csv", peopleCSV)
	report, err := driver.Run(context.Background(), RunRequest{
		Schema:       schema,
		SourcePath:   path,
		FileName:     "people.csv",
		RemoveSource: true,
		Options:      Options{ChunkSize: 2},
	})
	if err == nil {
		t.Fatalf("expected fatal store error")
	}

	// Chunk 1 stays committed, chunk 2 failed, chunk 3 never ran.
	if report.ChunksCommitted != 1 || report.Inserted != 2 {
		t.Fatalf("expected partial report for one committed chunk, got %+v", report)
	}
	if store.txCalls != 2 {
		t.Fatalf("later chunks must not be attempted, got %d tx calls", store.txCalls)
	}
	if len(store.records) != 2 {
		t.Fatalf("expected 2 committed records, got %d", len(store.records))
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("source file should be removed even on failure")
	}
}

func TestDriverRunRecordsRowErrors(t *testing.T) {
	orgID := uuid.New()
	schema := personSchema(orgID)
	store := &stubRecordStore{}
	logs := &stubLogRepo{}
	driver := NewDriver(store, logs, Hooks{})

	content := `email,name,age
a@example.com,Alice,30
b@example.com,,40
`
	path := writeSourceFile(t, "people.csv", content)
	report, err := driver.Run(context.Background(), RunRequest{
		Schema:       schema,
		SourcePath:   path,
		FileName:     "people.csv",
		RemoveSource: true,
	})
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if report.Inserted != 1 || len(report.Errors) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Errors[0].RowNumber != 3 {
		t.Fatalf("expected error on physical row 3, got %d", report.Errors[0].RowNumber)
	}
	if len(logs.entries) != 1 || logs.entries[0].FileName != "people.csv" {
		t.Fatalf("expected one persisted log entry, got %+v", logs.entries)
	}
	if logs.entries[0].RowNumber == nil || *logs.entries[0].RowNumber != 3 {
		t.Fatalf("log entry should carry the row number")
	}
}

func TestDriverRunUnsupportedFormat(t *testing.T) {
	orgID := uuid.New()
	schema := personSchema(orgID)
	driver := NewDriver(&stubRecordStore{}, nil, Hooks{})

	path := writeSourceFile(t, "people.txt", "not a table")
	_, err := driver.Run(context.Background(), RunRequest{
		Schema:       schema,
		SourcePath:   path,
		FileName:     "people.txt",
		RemoveSource: true,
	})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("source file should be removed on early failure too")
	}
}
