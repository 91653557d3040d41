package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cestas/internal/core"
)

type deliveryStore interface {
	CreateDelivery(ctx context.Context, d core.Delivery) (core.Delivery, int64, error)
	Close() error
}

type syncPublisher interface {
	PublishDeliverySync(ctx context.Context, id, version int64) error
	Close() error
}

// DeliveryService orchestrates delivery writes across SQLite and AMQP
type DeliveryService struct {
	storage   deliveryStore
	publisher syncPublisher
}

// NewDeliveryService wires a store and an optional publisher. A nil
// publisher disables spreadsheet sync messages.
func NewDeliveryService(storage deliveryStore, publisher syncPublisher) *DeliveryService {
	return &DeliveryService{
		storage:   storage,
		publisher: publisher,
	}
}

// RecordDelivery saves a delivery locally and publishes a sync message.
func (s *DeliveryService) RecordDelivery(ctx context.Context, d core.Delivery) (core.Delivery, error) {
	if err := d.Validate(); err != nil {
		return core.Delivery{}, err
	}
	if s.storage == nil {
		return core.Delivery{}, errors.New("delivery storage not configured")
	}

	saved, version, err := s.storage.CreateDelivery(ctx, d)
	if err != nil {
		return core.Delivery{}, fmt.Errorf("save delivery: %w", err)
	}

	// The row is already stored; the worker's sweep picks it up if this fails.
	if err := s.publishSyncMessage(ctx, saved.ID, version); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"id", saved.ID, "error", err)
	}

	return saved, nil
}

func (s *DeliveryService) publishSyncMessage(ctx context.Context, id, version int64) error {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping sync message", "id", id)
		return nil
	}
	return s.publisher.PublishDeliverySync(ctx, id, version)
}

// Close closes both storage and AMQP connections
func (s *DeliveryService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close delivery service: %w", errors.Join(errs...))
	}

	return nil
}
