package importer

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

func TestChunkedReaderCSV(t *testing.T) {
	content := "email,name\na@example.com,Alice\nb@example.com,Bob\nc@example.com,Cara\n"
	path := writeSourceFile(t, "people.csv", content)

	reader, err := NewChunkedReader(path, "people.csv", "")
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer reader.Close()

	if got := reader.Headers(); len(got) != 2 || got[0] != "email" || got[1] != "name" {
		t.Fatalf("unexpected headers: %v", got)
	}

	first, err := reader.Next(2)
	if err != nil {
		t.Fatalf("first chunk: %v", err)
	}
	if len(first) != 2 || first[0].RowNumber != 2 || first[1].RowNumber != 3 {
		t.Fatalf("unexpected first chunk: %+v", first)
	}
	if first[0].Values["email"] != "a@example.com" {
		t.Fatalf("unexpected row values: %+v", first[0].Values)
	}

	second, err := reader.Next(2)
	if err != nil {
		t.Fatalf("second chunk: %v", err)
	}
	if len(second) != 1 || second[0].Values["name"] != "Cara" {
		t.Fatalf("unexpected final partial chunk: %+v", second)
	}

	if _, err := reader.Next(2); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after final chunk, got %v", err)
	}
}

func TestChunkedReaderStripsBOMAndSkipsEmptyRows(t *testing.T) {
	content := "\xEF\xBB\xBFemail,name\n\na@example.com,Alice\n,,\nb@example.com,Bob\n"
	path := writeSourceFile(t, "people.csv", content)

	reader, err := NewChunkedReader(path, "people.csv", "")
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer reader.Close()

	if got := reader.Headers()[0]; got != "email" {
		t.Fatalf("BOM not stripped from header, got %q", got)
	}

	rows, err := reader.Next(10)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected empty rows skipped, got %d rows", len(rows))
	}
	// Fully blank lines are swallowed by the csv parser; the all-empty ",,"
	// row is read, counted, and then skipped.
	if rows[0].RowNumber != 2 || rows[1].RowNumber != 4 {
		t.Fatalf("unexpected row numbers: %d, %d", rows[0].RowNumber, rows[1].RowNumber)
	}
}

func TestChunkedReaderRaggedRowsPadded(t *testing.T) {
	content := "email,name,age\na@example.com,Alice\nb@example.com,Bob,40,extra\n"
	path := writeSourceFile(t, "people.csv", content)

	reader, err := NewChunkedReader(path, "people.csv", "")
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer reader.Close()

	rows, err := reader.Next(10)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if rows[0].Values["age"] != "" {
		t.Fatalf("short row should read missing cells as empty, got %q", rows[0].Values["age"])
	}
	if rows[1].Values["age"] != "40" {
		t.Fatalf("long row should keep its named cells, got %q", rows[1].Values["age"])
	}
}

func TestChunkedReaderShiftJIS(t *testing.T) {
	utf8Content := "名前,拠点\n田中,東京\n"
	encoded, _, err := transform.String(japanese.ShiftJIS.NewEncoder(), utf8Content)
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	path := writeSourceFile(t, "people.csv", encoded)

	reader, err := NewChunkedReader(path, "people.csv", "shift_jis")
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer reader.Close()

	if got := reader.Headers()[0]; got != "名前" {
		t.Fatalf("expected decoded header, got %q", got)
	}
	rows, err := reader.Next(10)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if rows[0].Values["拠点"] != "東京" {
		t.Fatalf("expected decoded cell, got %+v", rows[0].Values)
	}
}

func TestChunkedReaderUnknownEncoding(t *testing.T) {
	path := writeSourceFile(t, "people.csv", "email\na@example.com\n")
	if _, err := NewChunkedReader(path, "people.csv", "klingon"); err == nil {
		t.Fatalf("expected unknown encoding error")
	}
}

func TestChunkedReaderXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"email", "name"},
		{"a@example.com", "Alice"},
		{"b@example.com", "Bob"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "people.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save xlsx: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close xlsx: %v", err)
	}

	reader, err := NewChunkedReader(path, "people.xlsx", "")
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer reader.Close()

	if got := reader.Headers(); len(got) != 2 || got[0] != "email" {
		t.Fatalf("unexpected headers: %v", got)
	}
	records, err := reader.Next(10)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(records) != 2 || records[0].Values["name"] != "Alice" {
		t.Fatalf("unexpected rows: %+v", records)
	}
}

func TestNewChunkedReaderUnsupportedFormat(t *testing.T) {
	path := writeSourceFile(t, "people.txt", "hello")
	if _, err := NewChunkedReader(path, "people.txt", ""); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestNewChunkedReaderMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.csv")
	if _, err := NewChunkedReader(path, "missing.csv", ""); err == nil {
		t.Fatalf("expected open error")
	}
	if _, err := os.Stat(path); err == nil {
		t.Fatalf("reader must not create the file")
	}
}
