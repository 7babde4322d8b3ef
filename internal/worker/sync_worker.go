package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"receitas/internal/amqp"
	"receitas/internal/core"
	applog "receitas/internal/log"
	"receitas/internal/sheets"
	"receitas/internal/storage"

	"golang.org/x/sync/errgroup"
)

// maxParallelExports bounds concurrent Sheets calls during a batch replay
const maxParallelExports = 4

// SyncStore is the storage side of the worker
type SyncStore interface {
	Get(ctx context.Context, id int64) (*core.Income, error)
	PendingSync(ctx context.Context, limit int) ([]storage.PendingSyncIncome, error)
	MarkSynced(ctx context.Context, id, version int64) error
	MarkSyncError(ctx context.Context, id, version int64) error
	Purge(ctx context.Context, id int64) error
}

// SyncWorker pushes incomes from storage to Google Sheets
type SyncWorker struct {
	store     SyncStore
	exporter  sheets.IncomeExporter
	batchSize int
	logger    *applog.Logger
	inFlight  *idLocks
}

func NewSyncWorker(store SyncStore, exporter sheets.IncomeExporter, batchSize int, logger *applog.Logger) *SyncWorker {
	if batchSize < 1 {
		batchSize = 1
	}
	return &SyncWorker{
		store:     store,
		exporter:  exporter,
		batchSize: batchSize,
		logger:    logger.WithComponent(applog.ComponentWorker),
		inFlight:  newIDLocks(),
	}
}

// HandleMessage processes a single income message from AMQP. Returning an
// error makes the consumer requeue the delivery.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg *amqp.IncomeMessage) error {
	w.logger.InfoContext(ctx, "Processing income message",
		"type", msg.Type,
		applog.FieldIncomeID, msg.ID)

	switch msg.Type {
	case amqp.TypeSync:
		return w.handleSync(ctx, msg.ID)
	case amqp.TypeDelete:
		return w.handleDelete(ctx, msg.ID)
	default:
		// IncomeMessageFromJSON already rejects these; drop rather than requeue forever
		w.logger.WarnContext(ctx, "Ignoring message with unknown type", "type", msg.Type, applog.FieldIncomeID, msg.ID)
		return nil
	}
}

func (w *SyncWorker) handleSync(ctx context.Context, id int64) error {
	unlock := w.inFlight.lock(id)
	defer unlock()

	in, err := w.store.Get(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.WarnContext(ctx, "Income no longer exists, skipping sync", applog.FieldIncomeID, id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get income from storage: %w", err)
	}
	return w.syncIncome(ctx, in)
}

func (w *SyncWorker) handleDelete(ctx context.Context, id int64) error {
	unlock := w.inFlight.lock(id)
	defer unlock()
	return w.deleteIncome(ctx, id)
}

func (w *SyncWorker) deleteIncome(ctx context.Context, id int64) error {
	if err := w.exporter.DeleteIncome(ctx, id); err != nil {
		w.logger.ErrorContext(ctx, "Failed to delete income from Google Sheets",
			applog.FieldIncomeID, id,
			applog.FieldError, err)
		return fmt.Errorf("delete income from sheets: %w", err)
	}
	if err := w.store.Purge(ctx, id); err != nil {
		// the tombstone stays and the next replay clears the sheet again
		w.logger.ErrorContext(ctx, "Failed to purge deleted income", applog.FieldIncomeID, id, applog.FieldError, err)
	}
	w.logger.InfoContext(ctx, "Deleted income from Google Sheets", applog.FieldIncomeID, id)
	return nil
}

// ProcessPending exports up to batchSize incomes still marked pending and
// clears the sheet rows of tombstoned ones. It is the fallback for lost AMQP
// messages and returns how many rows were handled.
func (w *SyncWorker) ProcessPending(ctx context.Context) (int, error) {
	pending, err := w.store.PendingSync(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending incomes: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending incomes", applog.FieldCount, len(pending))

	var synced atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelExports)

	for _, p := range pending {
		p := p
		g.Go(func() error {
			if w.replay(gctx, p) {
				synced.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(synced.Load()), err
	}

	w.logger.InfoContext(ctx, "Pending sync completed",
		"total", len(pending),
		"synced", synced.Load())
	return int(synced.Load()), ctx.Err()
}

// replay handles one pending entry and reports whether it reached the sheet
func (w *SyncWorker) replay(ctx context.Context, p storage.PendingSyncIncome) bool {
	unlock := w.inFlight.lock(p.ID)
	defer unlock()

	if p.Status == storage.SyncPendingDelete {
		return w.deleteIncome(ctx, p.ID) == nil
	}

	in, err := w.store.Get(ctx, p.ID)
	if errors.Is(err, core.ErrNotFound) {
		return false
	}
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to get income", applog.FieldIncomeID, p.ID, applog.FieldError, err)
		w.markError(ctx, p.ID, p.Version)
		return false
	}
	if err := w.syncIncome(ctx, in); err != nil {
		w.logger.ErrorContext(ctx, "Failed to sync income", applog.FieldIncomeID, p.ID, applog.FieldError, err)
		return false
	}
	return true
}

func (w *SyncWorker) syncIncome(ctx context.Context, in *core.Income) error {
	ref, err := w.exporter.UpsertIncome(ctx, *in)
	if err != nil {
		w.markError(ctx, in.ID, in.Version)
		return fmt.Errorf("upsert to sheets: %w", err)
	}

	err = w.store.MarkSynced(ctx, in.ID, in.Version)
	switch {
	case errors.Is(err, storage.ErrStaleVersion):
		// edited while exporting; the row stays pending and the newer version follows
		w.logger.InfoContext(ctx, "Income changed during sync, left pending",
			applog.FieldIncomeID, in.ID, "version", in.Version)
	case err != nil:
		// the row is in the sheet; a later replay only rewrites it in place
		w.logger.ErrorContext(ctx, "Failed to mark as synced", applog.FieldIncomeID, in.ID, applog.FieldError, err)
	}

	w.logger.InfoContext(ctx, "Successfully synced income",
		applog.FieldIncomeID, in.ID,
		applog.FieldIncomeName, in.Name,
		applog.FieldSheetsRef, ref)
	return nil
}

func (w *SyncWorker) markError(ctx context.Context, id, version int64) {
	err := w.store.MarkSyncError(ctx, id, version)
	if errors.Is(err, storage.ErrStaleVersion) {
		return
	}
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to mark sync error", applog.FieldIncomeID, id, applog.FieldError, err)
		return
	}
	w.logger.WarnContext(ctx, "Income marked with sync error", applog.FieldIncomeID, id)
}
