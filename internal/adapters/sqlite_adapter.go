package adapters

import (
	"context"
	"time"

	"cestas/internal/core"
	"cestas/internal/services"
	"cestas/internal/sheets"
	"cestas/internal/storage"
)

// SQLiteAdapter exposes SQLiteRepository through the sheets.* ports, routing
// delivery writes through DeliveryService so each one emits a sync event.
type SQLiteAdapter struct {
	storage *storage.SQLiteRepository
	service *services.DeliveryService
}

var (
	_ sheets.DeliverySource    = (*SQLiteAdapter)(nil)
	_ sheets.InstitutionRoster = (*SQLiteAdapter)(nil)
	_ sheets.InstitutionStore  = (*SQLiteAdapter)(nil)
	_ sheets.FamilyStore       = (*SQLiteAdapter)(nil)
	_ sheets.DeliveryWriter    = (*SQLiteAdapter)(nil)
	_ sheets.SummaryReader     = (*SQLiteAdapter)(nil)
	_ sheets.SupplierStore     = (*SQLiteAdapter)(nil)
)

func NewSQLiteAdapter(storage *storage.SQLiteRepository, service *services.DeliveryService) *SQLiteAdapter {
	return &SQLiteAdapter{
		storage: storage,
		service: service,
	}
}

// RecordDelivery implements sheets.DeliveryWriter
func (a *SQLiteAdapter) RecordDelivery(ctx context.Context, d core.Delivery) (core.Delivery, error) {
	return a.service.RecordDelivery(ctx, d)
}

// ListDeliveriesSince implements sheets.DeliverySource
func (a *SQLiteAdapter) ListDeliveriesSince(ctx context.Context, since time.Time) ([]core.DeliveryRecord, error) {
	return a.storage.ListDeliveriesSince(ctx, since)
}

// ListInstitutionNames implements sheets.InstitutionRoster
func (a *SQLiteAdapter) ListInstitutionNames(ctx context.Context) ([]string, error) {
	return a.storage.ListInstitutionNames(ctx)
}

// CreateInstitution implements sheets.InstitutionStore
func (a *SQLiteAdapter) CreateInstitution(ctx context.Context, i core.Institution) (core.Institution, error) {
	return a.storage.CreateInstitution(ctx, i)
}

// ListInstitutions implements sheets.InstitutionStore
func (a *SQLiteAdapter) ListInstitutions(ctx context.Context) ([]core.Institution, error) {
	return a.storage.ListInstitutions(ctx)
}

// CreateFamily implements sheets.FamilyStore
func (a *SQLiteAdapter) CreateFamily(ctx context.Context, f core.Family) (core.Family, error) {
	return a.storage.CreateFamily(ctx, f)
}

// ListFamilies implements sheets.FamilyStore
func (a *SQLiteAdapter) ListFamilies(ctx context.Context, institutionID int64) ([]core.Family, error) {
	return a.storage.ListFamilies(ctx, institutionID)
}

// Summary implements sheets.SummaryReader
func (a *SQLiteAdapter) Summary(ctx context.Context, monthStart time.Time) (core.DashboardSummary, error) {
	return a.storage.Summary(ctx, monthStart)
}

// CreateSupplier implements sheets.SupplierStore
func (a *SQLiteAdapter) CreateSupplier(ctx context.Context, s core.Supplier) (core.Supplier, error) {
	return a.storage.CreateSupplier(ctx, s)
}

// ListSuppliers implements sheets.SupplierStore
func (a *SQLiteAdapter) ListSuppliers(ctx context.Context) ([]core.Supplier, error) {
	return a.storage.ListSuppliers(ctx)
}

// RecordStockEntry implements sheets.SupplierStore
func (a *SQLiteAdapter) RecordStockEntry(ctx context.Context, e core.StockEntry) (core.StockEntry, error) {
	return a.storage.RecordStockEntry(ctx, e)
}

// ListStockEntries implements sheets.SupplierStore
func (a *SQLiteAdapter) ListStockEntries(ctx context.Context, supplierID int64) ([]core.StockEntry, error) {
	return a.storage.ListStockEntries(ctx, supplierID)
}

// Ping reports whether the database is reachable.
func (a *SQLiteAdapter) Ping(ctx context.Context) error {
	return a.storage.Ping(ctx)
}
