package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rpattn/recordport/internal/domain"
	"github.com/rpattn/recordport/internal/repository"
)

// Driver runs complete import runs against the record store.
type Driver struct {
	store   repository.RecordStore
	logRepo repository.ImportLogRepository
	hooks   Hooks
}

// NewDriver wires an import driver. logRepo may be nil; row errors are then
// only reported in the run report.
func NewDriver(store repository.RecordStore, logRepo repository.ImportLogRepository, hooks Hooks) *Driver {
	return &Driver{store: store, logRepo: logRepo, hooks: hooks}
}

// RunRequest describes one import run.
type RunRequest struct {
	Schema     domain.RecordSchema
	SourcePath string
	// FileName is the original upload name; its extension selects the format.
	FileName string
	// RemoveSource deletes the source file when the run finishes, on every
	// exit path.
	RemoveSource bool
	Options      Options
}

// Run executes the import. Chunks are committed one transaction at a time, so
// a failure partway through leaves earlier chunks committed; the returned
// report reflects exactly what was committed. Validation failures never fail
// the run, they are collected into the report.
func (d *Driver) Run(ctx context.Context, req RunRequest) (domain.ImportReport, error) {
	if req.RemoveSource {
		defer func() {
			if err := os.Remove(req.SourcePath); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Printf("[import] failed to remove source file %s: %v", req.SourcePath, err)
			}
		}()
	}

	var report domain.ImportReport
	opts := req.Options.withDefaults()
	desc := ResolveDescriptor(req.Schema, opts)
	if len(desc.Fields) == 0 {
		return report, errors.New("no importable fields after applying field filters")
	}

	reconciler, err := NewReconciler(req.Schema, desc, d.store, opts, d.hooks)
	if err != nil {
		return report, err
	}

	reader, err := NewChunkedReader(req.SourcePath, req.FileName, opts.Encoding)
	if err != nil {
		return report, err
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil {
			log.Printf("[import] failed to close source reader: %v", cerr)
		}
	}()

	log.Printf("[import] starting run: schema=%s file=%s chunk_size=%d", req.Schema.Name, req.FileName, opts.ChunkSize)

	runErr := d.runChunks(ctx, reader, reconciler, desc, opts, &report)

	report.Errors, report.ErrorsTruncated, _ = reconciler.Errors()
	d.recordErrors(ctx, req, report.Errors)

	log.Printf("[import] run finished: schema=%s inserted=%d updated=%d skipped=%d errors=%d chunks=%d",
		req.Schema.Name, report.Inserted, report.Updated, report.Skipped, len(report.Errors), report.ChunksCommitted)

	return report, runErr
}

func (d *Driver) runChunks(ctx context.Context, reader *ChunkedReader, reconciler *Reconciler, desc Descriptor, opts Options, report *domain.ImportReport) error {
	updateFields := desc.UpdateFields()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rows, err := reader.Next(opts.ChunkSize)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		report.TotalRows += len(rows)

		plan, err := reconciler.ReconcileChunk(ctx, rows)
		if err != nil {
			return err
		}
		report.Skipped += plan.Skipped

		if len(plan.Inserts) == 0 && len(plan.Updates) == 0 {
			continue
		}

		err = d.store.InTx(ctx, func(batch repository.RecordBatch) error {
			if len(plan.Inserts) > 0 {
				if err := batch.BulkInsert(ctx, plan.Inserts); err != nil {
					return fmt.Errorf("bulk insert failed: %w", err)
				}
			}
			if len(plan.Updates) > 0 {
				if err := batch.BulkUpdate(ctx, plan.Updates, updateFields); err != nil {
					return fmt.Errorf("bulk update failed: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		report.Inserted += len(plan.Inserts)
		report.Updated += len(plan.Updates)
		report.ChunksCommitted++
	}
}

// recordErrors persists collected row errors for later inspection. Failures
// here never fail the run.
func (d *Driver) recordErrors(ctx context.Context, req RunRequest, rowErrs []*domain.RowError) {
	if d.logRepo == nil {
		return
	}
	for _, rowErr := range rowErrs {
		rowNum := rowErr.RowNumber
		entry := domain.ImportLogEntry{
			ID:             uuid.New(),
			OrganizationID: req.Schema.OrganizationID,
			SchemaName:     req.Schema.Name,
			FileName:       req.FileName,
			RowNumber:      &rowNum,
			ErrorMessage:   rowErr.Error(),
			CreatedAt:      time.Now(),
		}
		if err := d.logRepo.Record(ctx, entry); err != nil {
			log.Printf("[import] failed to record import log entry: %v", err)
			return
		}
	}
}
