package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cestas/internal/core"
	"cestas/internal/sheets"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// claimLease bounds how long an export claim blocks other workers.
const claimLease = 5 * time.Minute

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

// Ensure interface conformance
var (
	_ sheets.DeliverySource    = (*SQLiteRepository)(nil)
	_ sheets.InstitutionRoster = (*SQLiteRepository)(nil)
	_ sheets.InstitutionStore  = (*SQLiteRepository)(nil)
	_ sheets.FamilyStore       = (*SQLiteRepository)(nil)
	_ sheets.SummaryReader     = (*SQLiteRepository)(nil)
	_ sheets.SupplierStore     = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// dsn enables foreign keys and a busy timeout on every pooled connection.
// The server and the sync worker share the file.
func dsn(dbPath string) string {
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, core.ErrNotFound)
	}
	return fmt.Errorf("get %s %d: %w", what, id, err)
}

func toInstitution(i Institution) core.Institution {
	created, _ := parseTime(i.CreatedAt)
	return core.Institution{ID: i.ID, Name: i.Name, CreatedAt: created}
}

func toFamily(f Family) core.Family {
	created, _ := parseTime(f.CreatedAt)
	return core.Family{
		ID:            f.ID,
		Name:          f.Name,
		InstitutionID: f.InstitutionID,
		Members:       int(f.Members),
		CreatedAt:     created,
	}
}

// CreateInstitution implements sheets.InstitutionStore
func (r *SQLiteRepository) CreateInstitution(ctx context.Context, i core.Institution) (core.Institution, error) {
	if err := i.Validate(); err != nil {
		return core.Institution{}, err
	}
	name := strings.TrimSpace(i.Name)
	row, err := r.queries.CreateInstitution(ctx, name)
	if isUniqueViolation(err) {
		return core.Institution{}, fmt.Errorf("institution %q: %w", name, core.ErrDuplicate)
	}
	if err != nil {
		return core.Institution{}, fmt.Errorf("create institution: %w", err)
	}

	slog.InfoContext(ctx, "Institution saved to SQLite", "id", row.ID, "name", row.Name)
	return toInstitution(row), nil
}

func (r *SQLiteRepository) GetInstitution(ctx context.Context, id int64) (core.Institution, error) {
	row, err := r.queries.GetInstitution(ctx, id)
	if err != nil {
		return core.Institution{}, notFound(err, "institution", id)
	}
	return toInstitution(row), nil
}

// ListInstitutions implements sheets.InstitutionStore
func (r *SQLiteRepository) ListInstitutions(ctx context.Context) ([]core.Institution, error) {
	rows, err := r.queries.ListInstitutions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list institutions: %w", err)
	}
	out := make([]core.Institution, len(rows))
	for i, row := range rows {
		out[i] = toInstitution(row)
	}
	return out, nil
}

// ListInstitutionNames implements sheets.InstitutionRoster
func (r *SQLiteRepository) ListInstitutionNames(ctx context.Context) ([]string, error) {
	names, err := r.queries.ListInstitutionNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list institution names: %w", err)
	}
	return names, nil
}

// CreateFamily implements sheets.FamilyStore
func (r *SQLiteRepository) CreateFamily(ctx context.Context, f core.Family) (core.Family, error) {
	if err := f.Validate(); err != nil {
		return core.Family{}, err
	}
	if _, err := r.GetInstitution(ctx, f.InstitutionID); err != nil {
		return core.Family{}, err
	}
	row, err := r.queries.CreateFamily(ctx, CreateFamilyParams{
		Name:          strings.TrimSpace(f.Name),
		InstitutionID: f.InstitutionID,
		Members:       int64(f.Members),
	})
	if err != nil {
		return core.Family{}, fmt.Errorf("create family: %w", err)
	}

	slog.InfoContext(ctx, "Family saved to SQLite", "id", row.ID, "institution_id", row.InstitutionID)
	return toFamily(row), nil
}

// ListFamilies implements sheets.FamilyStore
func (r *SQLiteRepository) ListFamilies(ctx context.Context, institutionID int64) ([]core.Family, error) {
	rows, err := r.queries.ListFamiliesByInstitution(ctx, institutionID)
	if err != nil {
		return nil, fmt.Errorf("list families for institution %d: %w", institutionID, err)
	}
	out := make([]core.Family, len(rows))
	for i, row := range rows {
		out[i] = toFamily(row)
	}
	return out, nil
}

// CreateDelivery stores a delivery and returns it with its ID and the
// version used for sync messages.
func (r *SQLiteRepository) CreateDelivery(ctx context.Context, d core.Delivery) (core.Delivery, int64, error) {
	if err := d.Validate(); err != nil {
		return core.Delivery{}, 0, err
	}
	if _, err := r.GetInstitution(ctx, d.InstitutionID); err != nil {
		return core.Delivery{}, 0, err
	}

	var family sql.NullInt64
	if d.FamilyID > 0 {
		fam, err := r.queries.GetFamily(ctx, d.FamilyID)
		if err != nil {
			return core.Delivery{}, 0, notFound(err, "family", d.FamilyID)
		}
		if fam.InstitutionID != d.InstitutionID {
			return core.Delivery{}, 0, fmt.Errorf("family %d is registered with institution %d: %w",
				fam.ID, fam.InstitutionID, core.ErrInvalidFamily)
		}
		family = sql.NullInt64{Int64: d.FamilyID, Valid: true}
	}
	row, err := r.queries.CreateDelivery(ctx, CreateDeliveryParams{
		FamilyID:      family,
		InstitutionID: d.InstitutionID,
		DeliveredAt:   formatTime(d.DeliveredAt),
		Baskets:       int64(d.Baskets),
	})
	if err != nil {
		return core.Delivery{}, 0, fmt.Errorf("create delivery: %w", err)
	}

	d.ID = row.ID
	d.DeliveredAt = d.DeliveredAt.UTC().Truncate(time.Second)

	slog.InfoContext(ctx, "Delivery saved to SQLite",
		"id", row.ID,
		"institution_id", d.InstitutionID,
		"family_id", d.FamilyID,
		"baskets", d.Baskets)

	return d, row.Version, nil
}

// GetDelivery returns a delivery flattened for export.
func (r *SQLiteRepository) GetDelivery(ctx context.Context, id int64) (sheets.DeliveryExport, error) {
	row, err := r.queries.GetDelivery(ctx, id)
	if err != nil {
		return sheets.DeliveryExport{}, notFound(err, "delivery", id)
	}
	return toExport(row)
}

func toExport(row Delivery) (sheets.DeliveryExport, error) {
	at, err := parseTime(row.DeliveredAt)
	if err != nil {
		return sheets.DeliveryExport{}, fmt.Errorf("parse delivered_at for delivery %d: %w", row.ID, err)
	}
	return sheets.DeliveryExport{
		ID:              row.ID,
		DeliveredAt:     at,
		InstitutionName: row.InstitutionName.String,
		FamilyName:      row.FamilyName.String,
		Baskets:         int(row.Baskets),
		Synced:          row.SyncStatus == "synced",
	}, nil
}

// ListDeliveriesSince implements sheets.DeliverySource. Deliveries whose
// institution no longer resolves come back with a nil name.
func (r *SQLiteRepository) ListDeliveriesSince(ctx context.Context, since time.Time) ([]core.DeliveryRecord, error) {
	rows, err := r.queries.ListDeliveriesSince(ctx, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("list deliveries since %s: %w", since.Format(time.RFC3339), err)
	}

	records := make([]core.DeliveryRecord, 0, len(rows))
	for _, row := range rows {
		at, err := parseTime(row.DeliveredAt)
		if err != nil {
			return nil, fmt.Errorf("parse delivered_at for delivery %d: %w", row.ID, err)
		}
		rec := core.DeliveryRecord{DeliveredAt: at}
		if row.InstitutionName.Valid {
			name := row.InstitutionName.String
			rec.InstitutionName = &name
			rec.InstitutionID = row.InstitutionID.Int64
		}
		records = append(records, rec)
	}
	return records, nil
}

// PendingSyncDelivery is the minimal data needed to enqueue a sync message.
type PendingSyncDelivery struct {
	ID      int64
	Version int64
}

// GetPendingSyncDeliveries returns deliveries not yet mirrored to the spreadsheet.
func (r *SQLiteRepository) GetPendingSyncDeliveries(ctx context.Context, limit int) ([]PendingSyncDelivery, error) {
	rows, err := r.queries.GetPendingSyncDeliveries(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending sync deliveries: %w", err)
	}
	out := make([]PendingSyncDelivery, len(rows))
	for i, row := range rows {
		out[i] = PendingSyncDelivery{ID: row.ID, Version: row.Version}
	}
	return out, nil
}

// ClaimForExport reserves a delivery for one exporter. It reports false when
// the delivery is already synced or another worker holds a live claim.
// MarkSynced and MarkSyncError release the claim.
func (r *SQLiteRepository) ClaimForExport(ctx context.Context, id int64) (bool, error) {
	now := time.Now()
	n, err := r.queries.ClaimDeliveryForExport(ctx, id, formatTime(now), formatTime(now.Add(-claimLease)))
	if err != nil {
		return false, fmt.Errorf("claim delivery %d for export: %w", id, err)
	}
	return n == 1, nil
}

// MarkSynced marks a delivery as successfully mirrored
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	if err := r.queries.MarkDeliverySynced(ctx, id, formatTime(time.Now())); err != nil {
		return fmt.Errorf("mark delivery synced: %w", err)
	}

	slog.InfoContext(ctx, "Delivery marked as synced", "id", id)
	return nil
}

// MarkSyncError marks a delivery as having sync errors
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	if err := r.queries.MarkDeliverySyncError(ctx, id); err != nil {
		return fmt.Errorf("mark delivery sync error: %w", err)
	}

	slog.WarnContext(ctx, "Delivery marked with sync error", "id", id)
	return nil
}

// Summary implements sheets.SummaryReader
func (r *SQLiteRepository) Summary(ctx context.Context, monthStart time.Time) (core.DashboardSummary, error) {
	monthEnd := monthStart.AddDate(0, 1, 0)
	row, err := r.queries.Summary(ctx, formatTime(monthStart), formatTime(monthEnd))
	if err != nil {
		return core.DashboardSummary{}, fmt.Errorf("dashboard summary: %w", err)
	}
	return core.DashboardSummary{
		Institutions:        row.Institutions,
		Families:            row.Families,
		Suppliers:           row.Suppliers,
		DeliveriesThisMonth: row.Deliveries,
		BasketsThisMonth:    row.Baskets,
		BasketsInStock:      row.InStock,
	}, nil
}

func toSupplier(s Supplier) core.Supplier {
	created, _ := parseTime(s.CreatedAt)
	return core.Supplier{ID: s.ID, Name: s.Name, CreatedAt: created}
}

func toStockEntry(e StockEntry) core.StockEntry {
	at, _ := parseTime(e.ReceivedAt)
	return core.StockEntry{ID: e.ID, SupplierID: e.SupplierID, Baskets: int(e.Baskets), ReceivedAt: at}
}

// CreateSupplier implements sheets.SupplierStore
func (r *SQLiteRepository) CreateSupplier(ctx context.Context, s core.Supplier) (core.Supplier, error) {
	if err := s.Validate(); err != nil {
		return core.Supplier{}, err
	}
	name := strings.TrimSpace(s.Name)
	row, err := r.queries.CreateSupplier(ctx, name)
	if isUniqueViolation(err) {
		return core.Supplier{}, fmt.Errorf("supplier %q: %w", name, core.ErrDuplicate)
	}
	if err != nil {
		return core.Supplier{}, fmt.Errorf("create supplier: %w", err)
	}

	slog.InfoContext(ctx, "Supplier saved to SQLite", "id", row.ID, "name", row.Name)
	return toSupplier(row), nil
}

// ListSuppliers implements sheets.SupplierStore
func (r *SQLiteRepository) ListSuppliers(ctx context.Context) ([]core.Supplier, error) {
	rows, err := r.queries.ListSuppliers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	out := make([]core.Supplier, len(rows))
	for i, row := range rows {
		out[i] = toSupplier(row)
	}
	return out, nil
}

// RecordStockEntry implements sheets.SupplierStore
func (r *SQLiteRepository) RecordStockEntry(ctx context.Context, e core.StockEntry) (core.StockEntry, error) {
	if err := e.Validate(); err != nil {
		return core.StockEntry{}, err
	}
	if _, err := r.queries.GetSupplier(ctx, e.SupplierID); err != nil {
		return core.StockEntry{}, notFound(err, "supplier", e.SupplierID)
	}
	row, err := r.queries.CreateStockEntry(ctx, CreateStockEntryParams{
		SupplierID: e.SupplierID,
		Baskets:    int64(e.Baskets),
		ReceivedAt: formatTime(e.ReceivedAt),
	})
	if err != nil {
		return core.StockEntry{}, fmt.Errorf("create stock entry: %w", err)
	}

	slog.InfoContext(ctx, "Stock entry saved to SQLite",
		"id", row.ID,
		"supplier_id", row.SupplierID,
		"baskets", row.Baskets)
	return toStockEntry(row), nil
}

// ListStockEntries implements sheets.SupplierStore. Entries come back
// newest first.
func (r *SQLiteRepository) ListStockEntries(ctx context.Context, supplierID int64) ([]core.StockEntry, error) {
	if _, err := r.queries.GetSupplier(ctx, supplierID); err != nil {
		return nil, notFound(err, "supplier", supplierID)
	}
	rows, err := r.queries.ListStockEntriesBySupplier(ctx, supplierID)
	if err != nil {
		return nil, fmt.Errorf("list stock entries for supplier %d: %w", supplierID, err)
	}
	out := make([]core.StockEntry, len(rows))
	for i, row := range rows {
		out[i] = toStockEntry(row)
	}
	return out, nil
}
