package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rpattn/recordport/internal/domain"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// ErrUnsupportedFormat is returned when the source file extension is not one
// of the supported table formats.
var ErrUnsupportedFormat = errors.New("unsupported file format")

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// ChunkedReader streams rows out of a tabular source file one chunk at a
// time, so an import never has to hold the whole file in memory. Row numbers
// are physical file positions (the header row is row 1).
type ChunkedReader struct {
	headers []string
	nextRow func() ([]string, error)
	closeFn func() error
	rowNum  int
}

// NewChunkedReader opens the file at path and prepares it for chunked
// reading. fileName decides the format by extension; encoding names the
// source character set for CSV files (empty means UTF-8).
func NewChunkedReader(path, fileName, encoding string) (*ChunkedReader, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return newCSVReader(path, encoding)
	case ".xlsx":
		return newExcelReader(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func newCSVReader(path, encoding string) (*ChunkedReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}

	var source io.Reader = file
	if encoding != "" && !strings.EqualFold(encoding, "utf-8") && !strings.EqualFold(encoding, "utf8") {
		enc, err := htmlindex.Get(encoding)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("unknown encoding %q: %w", encoding, err)
		}
		source = transform.NewReader(file, enc.NewDecoder())
	}

	buffered := bufio.NewReader(source)
	if prefix, err := buffered.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = buffered.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(buffered)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	reader := &ChunkedReader{
		nextRow: csvReader.Read,
		closeFn: file.Close,
	}
	if err := reader.readHeader(); err != nil {
		_ = file.Close()
		return nil, err
	}
	return reader, nil
}

func newExcelReader(path string) (*ChunkedReader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		_ = f.Close()
		return nil, errors.New("excel file has no sheets")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	reader := &ChunkedReader{
		nextRow: func() ([]string, error) {
			if !rows.Next() {
				if err := rows.Error(); err != nil {
					return nil, err
				}
				return nil, io.EOF
			}
			return rows.Columns()
		},
		closeFn: func() error {
			_ = rows.Close()
			return f.Close()
		},
	}
	if err := reader.readHeader(); err != nil {
		_ = rows.Close()
		_ = f.Close()
		return nil, err
	}
	return reader, nil
}

// readHeader advances to the first non-empty row and takes it as the header.
func (r *ChunkedReader) readHeader() error {
	for {
		row, err := r.nextRow()
		if errors.Is(err, io.EOF) {
			return errors.New("no rows found in file")
		}
		if err != nil {
			return fmt.Errorf("failed to read header row: %w", err)
		}
		r.rowNum++
		if rowIsEmpty(row) {
			continue
		}
		headers := make([]string, len(row))
		for i, value := range row {
			headers[i] = strings.TrimSpace(value)
		}
		r.headers = headers
		return nil
	}
}

// Headers returns the trimmed header names in file order.
func (r *ChunkedReader) Headers() []string {
	return r.headers
}

// Next reads up to limit data rows. Empty rows are skipped without counting
// toward the chunk. It returns io.EOF once the file is exhausted; a final
// partial chunk comes back with a nil error.
func (r *ChunkedReader) Next(limit int) ([]domain.RawRecord, error) {
	records := make([]domain.RawRecord, 0, limit)
	for len(records) < limit {
		row, err := r.nextRow()
		if errors.Is(err, io.EOF) {
			if len(records) == 0 {
				return nil, io.EOF
			}
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", r.rowNum+1, err)
		}
		r.rowNum++
		if rowIsEmpty(row) {
			continue
		}

		values := make(map[string]string, len(r.headers))
		for i, header := range r.headers {
			if header == "" {
				continue
			}
			if i < len(row) {
				values[header] = row[i]
			} else {
				values[header] = ""
			}
		}
		records = append(records, domain.RawRecord{RowNumber: r.rowNum, Values: values})
	}
	return records, nil
}

// Close releases the underlying file handles.
func (r *ChunkedReader) Close() error {
	if r.closeFn == nil {
		return nil
	}
	return r.closeFn()
}

func rowIsEmpty(row []string) bool {
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}
