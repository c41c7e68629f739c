package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/recordport/internal/domain"
	"github.com/rpattn/recordport/internal/repository"
)

// errorCollector accumulates row errors across a whole run. The cap bounds
// how many detailed errors are kept; rows past the cap are still counted and
// still excluded from the import.
type errorCollector struct {
	cap       int
	errors    []*domain.RowError
	total     int
	truncated bool
}

func newErrorCollector(cap int) *errorCollector {
	return &errorCollector{cap: cap}
}

func (c *errorCollector) Add(rowErr *domain.RowError) {
	c.total++
	if len(c.errors) >= c.cap {
		c.truncated = true
		return
	}
	c.errors = append(c.errors, rowErr)
}

// ChunkPlan is what the reconciler resolved one chunk of rows into.
type ChunkPlan struct {
	Inserts []domain.Record
	Updates []domain.Record
	Skipped int
}

// Reconciler classifies validated rows into inserts, updates, skips, and
// errors. One reconciler serves one import run; chunk state is reset between
// chunks, error state persists across the run.
type Reconciler struct {
	schema    domain.RecordSchema
	desc      Descriptor
	validator *RowValidator
	store     repository.RecordStore
	opts      Options
	hooks     Hooks

	dedup *deduper
	errs  *errorCollector
}

// NewReconciler builds the reconciler for one run. Options are assumed to
// already have their defaults applied.
func NewReconciler(schema domain.RecordSchema, desc Descriptor, store repository.RecordStore, opts Options, hooks Hooks) (*Reconciler, error) {
	validator, err := NewRowValidator(schema, desc, store)
	if err != nil {
		return nil, err
	}
	return &Reconciler{
		schema:    schema,
		desc:      desc,
		validator: validator,
		store:     store,
		opts:      opts,
		hooks:     hooks,
		dedup:     newDeduper(desc.UniqueKey, opts.DedupPriority),
		errs:      newErrorCollector(opts.MaxErrorRows),
	}, nil
}

// ReconcileChunk resolves one chunk of raw rows into a commit plan. A non-nil
// error is infrastructural and aborts the run; validation failures never
// surface here, they land in the error collector.
func (r *Reconciler) ReconcileChunk(ctx context.Context, rows []domain.RawRecord) (ChunkPlan, error) {
	r.dedup.reset()
	var plan ChunkPlan

	for _, raw := range rows {
		skipped, err := r.reconcileRow(ctx, raw)
		if err != nil {
			return ChunkPlan{}, err
		}
		plan.Skipped += skipped
	}

	for _, c := range r.dedup.Candidates() {
		if c.IsUpdate() {
			plan.Updates = append(plan.Updates, c.Record)
		} else {
			plan.Inserts = append(plan.Inserts, c.Record)
		}
	}
	return plan, nil
}

func (r *Reconciler) reconcileRow(ctx context.Context, raw domain.RawRecord) (skipped int, err error) {
	fields, rowErr, err := r.validator.Validate(ctx, raw)
	if err != nil {
		return 0, fmt.Errorf("row %d: %w", raw.RowNumber, err)
	}

	if rowErr == nil {
		record := domain.NewRecord(r.schema.OrganizationID, r.schema.ID, r.schema.Name, fields)
		if r.hooks.InsertDefaults != nil {
			record = record.WithFields(r.hooks.InsertDefaults(ctx))
		}
		if !r.dedup.Append(Candidate{Record: record, RowNumber: raw.RowNumber}) {
			skipped++
		}
		return skipped, nil
	}

	if !rowErr.UniqueOnly() {
		r.errs.Add(rowErr)
		return 0, nil
	}

	// Every failure on this row is a uniqueness violation, so it resolves to
	// an already stored record rather than a rejection.
	if r.opts.SkipExisting {
		return 1, nil
	}

	key := rowErr.ViolatedKey()
	values, complete := collectKeyValues(fields, key)
	if !complete {
		r.errs.Add(rowErr)
		return 0, nil
	}

	existing, err := r.store.FindByKey(ctx, r.schema.OrganizationID, r.schema.ID, key, values)
	if errors.Is(err, repository.ErrNotFound) {
		// The conflicting record vanished between validation and resolution.
		notFound := domain.NewRowError(raw)
		notFound.AddNonFieldError(domain.FieldError{
			Code:      domain.ErrCodeNotFound,
			Message:   "conflicting record could not be resolved",
			KeyFields: key,
		})
		r.errs.Add(notFound)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("row %d: resolving existing record: %w", raw.RowNumber, err)
	}

	updated := existing.WithFields(fields)
	if r.hooks.BeforeUpdate != nil {
		r.hooks.BeforeUpdate(ctx, &updated)
	}
	if !r.dedup.Append(Candidate{Record: updated, ExistingID: existing.ID, RowNumber: raw.RowNumber}) {
		skipped++
	}
	return skipped, nil
}

// Errors returns the row errors collected so far, whether the list was
// truncated by the cap, and the total number of rejected rows.
func (r *Reconciler) Errors() (errs []*domain.RowError, truncated bool, total int) {
	return r.errs.errors, r.errs.truncated, r.errs.total
}
