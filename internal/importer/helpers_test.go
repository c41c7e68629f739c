package importer

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/rpattn/recordport/internal/domain"
	"github.com/rpattn/recordport/internal/repository"
)

// stubRecordStore keeps records in memory and mirrors the store's key lookup
// semantics closely enough for pipeline tests. Each InTx call is staged and
// only applied when fn succeeds, like a real transaction.
type stubRecordStore struct {
	records []domain.Record

	findErr error
	txErr   error
	// failOnTx makes the n-th InTx call (1-based) fail before fn runs.
	failOnTx int
	txCalls  int

	inserted [][]domain.Record
	updated  [][]domain.Record
}

func (s *stubRecordStore) FindByKey(_ context.Context, organizationID, schemaID uuid.UUID, keyFields []string, keyValues []any) (domain.Record, error) {
	if s.findErr != nil {
		return domain.Record{}, s.findErr
	}
	for _, record := range s.records {
		if record.OrganizationID != organizationID || record.SchemaID != schemaID {
			continue
		}
		match := true
		for i, field := range keyFields {
			if !valuesEqual(record.Fields[field], keyValues[i]) {
				match = false
				break
			}
		}
		if match {
			return record, nil
		}
	}
	return domain.Record{}, repository.ErrNotFound
}

func (s *stubRecordStore) List(_ context.Context, organizationID uuid.UUID, schemaName string, filter map[string]any, limit, offset int) ([]domain.Record, int, error) {
	matched := []domain.Record{}
	for _, record := range s.records {
		if record.OrganizationID != organizationID || record.SchemaName != schemaName {
			continue
		}
		ok := true
		for field, want := range filter {
			if !valuesEqual(record.Fields[field], want) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, record)
		}
	}
	total := len(matched)
	if offset >= len(matched) {
		return []domain.Record{}, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (s *stubRecordStore) InTx(_ context.Context, fn func(repository.RecordBatch) error) error {
	s.txCalls++
	if s.failOnTx > 0 && s.txCalls == s.failOnTx {
		return s.txErr
	}

	batch := &stubBatch{}
	if err := fn(batch); err != nil {
		return err
	}

	s.records = append(s.records, batch.inserts...)
	for _, update := range batch.updates {
		for i := range s.records {
			if s.records[i].ID == update.ID {
				s.records[i] = s.records[i].WithFields(pick(update.Fields, batch.updateFields))
			}
		}
	}
	if len(batch.inserts) > 0 {
		s.inserted = append(s.inserted, batch.inserts)
	}
	if len(batch.updates) > 0 {
		s.updated = append(s.updated, batch.updates)
	}
	return nil
}

type stubBatch struct {
	inserts      []domain.Record
	updates      []domain.Record
	updateFields []string
}

func (b *stubBatch) BulkInsert(_ context.Context, records []domain.Record) error {
	b.inserts = append(b.inserts, records...)
	return nil
}

func (b *stubBatch) BulkUpdate(_ context.Context, records []domain.Record, fields []string) error {
	b.updates = append(b.updates, records...)
	b.updateFields = fields
	return nil
}

type stubLogRepo struct {
	entries []domain.ImportLogEntry
}

func (s *stubLogRepo) Record(_ context.Context, entry domain.ImportLogEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubLogRepo) List(_ context.Context, _ uuid.UUID, _ string, _ string, _ int, _ int) ([]domain.ImportLogEntry, error) {
	return s.entries, nil
}

func pick(fields map[string]any, names []string) map[string]any {
	out := make(map[string]any, len(names))
	for _, name := range names {
		if value, ok := fields[name]; ok {
			out[name] = value
		}
	}
	return out
}

// valuesEqual compares via JSON so int64(30) from coercion matches float64(30)
// decoded from stored JSONB.
func valuesEqual(a, b any) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aj) == string(bj)
}

func personSchema(orgID uuid.UUID) domain.RecordSchema {
	schema := domain.NewRecordSchema(orgID, "Person", "people", []domain.FieldDefinition{
		{Name: "email", Type: domain.FieldTypeString, Required: true},
		{Name: "name", Type: domain.FieldTypeString, Required: true},
		{Name: "age", Type: domain.FieldTypeInteger},
		{Name: "active", Type: domain.FieldTypeBoolean},
	})
	return schema.WithUniqueTogether("email")
}
