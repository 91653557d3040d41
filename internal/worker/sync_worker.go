package worker

import (
	"context"
	"fmt"
	"log/slog"

	"cestas/internal/amqp"
	ports "cestas/internal/sheets"
	"cestas/internal/storage"
)

type syncStore interface {
	GetDelivery(ctx context.Context, id int64) (ports.DeliveryExport, error)
	GetPendingSyncDeliveries(ctx context.Context, limit int) ([]storage.PendingSyncDelivery, error)
	ClaimForExport(ctx context.Context, id int64) (bool, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64) error
}

// SyncWorker mirrors deliveries from SQLite to the external spreadsheet
type SyncWorker struct {
	storage   syncStore
	exporter  ports.DeliveryExporter
	batchSize int
}

func NewSyncWorker(storage syncStore, exporter ports.DeliveryExporter, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{
		storage:   storage,
		exporter:  exporter,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single delivery sync message from AMQP.
// A returned error makes the consumer requeue the message. Deliveries that
// are already synced, or claimed by the pending sweep, are acknowledged
// without exporting.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.DeliverySyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"id", msg.ID,
		"version", msg.Version)

	delivery, err := w.storage.GetDelivery(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("get delivery from storage: %w", err)
	}
	if delivery.Synced {
		slog.InfoContext(ctx, "Delivery already synced, skipping", "id", msg.ID)
		return nil
	}

	claimed, err := w.storage.ClaimForExport(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("claim delivery: %w", err)
	}
	if !claimed {
		slog.InfoContext(ctx, "Delivery claimed elsewhere, skipping", "id", msg.ID)
		return nil
	}

	if err := w.exportDelivery(ctx, delivery); err != nil {
		return fmt.Errorf("sync delivery to sheets: %w", err)
	}
	return nil
}

// ProcessPendingDeliveries exports deliveries that haven't been synced yet.
// This is a backup mechanism in case AMQP messages are lost.
func (w *SyncWorker) ProcessPendingDeliveries(ctx context.Context) error {
	pending, err := w.storage.GetPendingSyncDeliveries(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending deliveries: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending deliveries", "count", len(pending))

	synced, failed, skipped := 0, 0, 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		claimed, err := w.storage.ClaimForExport(ctx, p.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to claim delivery", "id", p.ID, "error", err)
			failed++
			continue
		}
		if !claimed {
			skipped++
			continue
		}

		delivery, err := w.storage.GetDelivery(ctx, p.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to get delivery", "id", p.ID, "error", err)
			if err := w.storage.MarkSyncError(ctx, p.ID); err != nil {
				slog.ErrorContext(ctx, "Failed to mark sync error", "id", p.ID, "error", err)
			}
			failed++
			continue
		}

		if err := w.exportDelivery(ctx, delivery); err != nil {
			slog.ErrorContext(ctx, "Failed to sync delivery", "id", p.ID, "error", err)
			failed++
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Pending delivery sweep completed",
		"total", len(pending),
		"synced", synced,
		"skipped", skipped,
		"errors", failed)

	return nil
}

func (w *SyncWorker) exportDelivery(ctx context.Context, d ports.DeliveryExport) error {
	ref, err := w.exporter.ExportDelivery(ctx, d)
	if err != nil {
		if markErr := w.storage.MarkSyncError(ctx, d.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", d.ID, "error", markErr)
		}
		return fmt.Errorf("append to sheets: %w", err)
	}

	// The row is already in the spreadsheet; a failed status update only
	// means the sweep may export it again.
	if err := w.storage.MarkSynced(ctx, d.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", d.ID, "error", err)
	}

	slog.InfoContext(ctx, "Successfully synced delivery",
		"id", d.ID,
		"sheets_ref", ref,
		"institution", d.InstitutionName,
		"baskets", d.Baskets)

	return nil
}
