package storage

import (
	"context"
	"database/sql"
	"time"
)

// timeLayout is the on-disk format for every timestamp column. Fixed-width
// UTC text keeps lexical and chronological order identical.
const timeLayout = "2006-01-02T15:04:05Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Institution struct {
	ID        int64
	Name      string
	CreatedAt string
}

type Family struct {
	ID            int64
	Name          string
	InstitutionID int64
	Members       int64
	CreatedAt     string
}

type Supplier struct {
	ID        int64
	Name      string
	CreatedAt string
}

type StockEntry struct {
	ID         int64
	SupplierID int64
	Baskets    int64
	ReceivedAt string
}

type Delivery struct {
	ID              int64
	FamilyID        sql.NullInt64
	InstitutionID   sql.NullInt64
	DeliveredAt     string
	Baskets         int64
	Version         int64
	SyncStatus      string
	InstitutionName sql.NullString
	FamilyName      sql.NullString
}

const createInstitution = `INSERT INTO institutions (name) VALUES (?)
RETURNING id, name, created_at`

func (q *Queries) CreateInstitution(ctx context.Context, name string) (Institution, error) {
	var i Institution
	err := q.db.QueryRowContext(ctx, createInstitution, name).Scan(&i.ID, &i.Name, &i.CreatedAt)
	return i, err
}

const getInstitution = `SELECT id, name, created_at FROM institutions WHERE id = ?`

func (q *Queries) GetInstitution(ctx context.Context, id int64) (Institution, error) {
	var i Institution
	err := q.db.QueryRowContext(ctx, getInstitution, id).Scan(&i.ID, &i.Name, &i.CreatedAt)
	return i, err
}

const listInstitutions = `SELECT id, name, created_at FROM institutions ORDER BY name ASC`

func (q *Queries) ListInstitutions(ctx context.Context) ([]Institution, error) {
	rows, err := q.db.QueryContext(ctx, listInstitutions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Institution
	for rows.Next() {
		var i Institution
		if err := rows.Scan(&i.ID, &i.Name, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listInstitutionNames = `SELECT name FROM institutions ORDER BY name ASC`

func (q *Queries) ListInstitutionNames(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listInstitutionNames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

const createFamily = `INSERT INTO families (name, institution_id, members) VALUES (?, ?, ?)
RETURNING id, name, institution_id, members, created_at`

type CreateFamilyParams struct {
	Name          string
	InstitutionID int64
	Members       int64
}

func (q *Queries) CreateFamily(ctx context.Context, arg CreateFamilyParams) (Family, error) {
	var f Family
	err := q.db.QueryRowContext(ctx, createFamily, arg.Name, arg.InstitutionID, arg.Members).
		Scan(&f.ID, &f.Name, &f.InstitutionID, &f.Members, &f.CreatedAt)
	return f, err
}

const getFamily = `SELECT id, name, institution_id, members, created_at FROM families WHERE id = ?`

func (q *Queries) GetFamily(ctx context.Context, id int64) (Family, error) {
	var f Family
	err := q.db.QueryRowContext(ctx, getFamily, id).
		Scan(&f.ID, &f.Name, &f.InstitutionID, &f.Members, &f.CreatedAt)
	return f, err
}

const listFamiliesByInstitution = `SELECT id, name, institution_id, members, created_at
FROM families WHERE institution_id = ? ORDER BY name ASC`

func (q *Queries) ListFamiliesByInstitution(ctx context.Context, institutionID int64) ([]Family, error) {
	rows, err := q.db.QueryContext(ctx, listFamiliesByInstitution, institutionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Family
	for rows.Next() {
		var f Family
		if err := rows.Scan(&f.ID, &f.Name, &f.InstitutionID, &f.Members, &f.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

const createDelivery = `INSERT INTO deliveries (family_id, institution_id, delivered_at, baskets)
VALUES (?, ?, ?, ?)
RETURNING id, version`

type CreateDeliveryParams struct {
	FamilyID      sql.NullInt64
	InstitutionID int64
	DeliveredAt   string
	Baskets       int64
}

type CreateDeliveryRow struct {
	ID      int64
	Version int64
}

func (q *Queries) CreateDelivery(ctx context.Context, arg CreateDeliveryParams) (CreateDeliveryRow, error) {
	var r CreateDeliveryRow
	err := q.db.QueryRowContext(ctx, createDelivery, arg.FamilyID, arg.InstitutionID, arg.DeliveredAt, arg.Baskets).
		Scan(&r.ID, &r.Version)
	return r, err
}

const deliveryColumns = `d.id, d.family_id, d.institution_id, d.delivered_at, d.baskets, d.version, d.sync_status,
       i.name, f.name
FROM deliveries d
LEFT JOIN institutions i ON i.id = d.institution_id
LEFT JOIN families f ON f.id = d.family_id`

func scanDelivery(scan func(dest ...any) error) (Delivery, error) {
	var d Delivery
	err := scan(&d.ID, &d.FamilyID, &d.InstitutionID, &d.DeliveredAt, &d.Baskets, &d.Version, &d.SyncStatus,
		&d.InstitutionName, &d.FamilyName)
	return d, err
}

const getDelivery = `SELECT ` + deliveryColumns + `
WHERE d.id = ?`

func (q *Queries) GetDelivery(ctx context.Context, id int64) (Delivery, error) {
	return scanDelivery(q.db.QueryRowContext(ctx, getDelivery, id).Scan)
}

const listDeliveriesSince = `SELECT ` + deliveryColumns + `
WHERE d.delivered_at >= ?
ORDER BY d.delivered_at ASC`

func (q *Queries) ListDeliveriesSince(ctx context.Context, since string) ([]Delivery, error) {
	return q.listDeliveries(ctx, listDeliveriesSince, since)
}

const getPendingSyncDeliveries = `SELECT ` + deliveryColumns + `
WHERE d.sync_status = 'pending'
ORDER BY d.id ASC
LIMIT ?`

func (q *Queries) GetPendingSyncDeliveries(ctx context.Context, limit int64) ([]Delivery, error) {
	return q.listDeliveries(ctx, getPendingSyncDeliveries, limit)
}

func (q *Queries) listDeliveries(ctx context.Context, query string, args ...any) ([]Delivery, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

// A claim older than staleBefore is treated as abandoned by a crashed worker.
const claimDeliveryForExport = `UPDATE deliveries SET claimed_at = ?
WHERE id = ? AND sync_status <> 'synced' AND (claimed_at IS NULL OR claimed_at < ?)`

func (q *Queries) ClaimDeliveryForExport(ctx context.Context, id int64, at, staleBefore string) (int64, error) {
	res, err := q.db.ExecContext(ctx, claimDeliveryForExport, at, id, staleBefore)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markDeliverySynced = `UPDATE deliveries SET sync_status = 'synced', synced_at = ?, claimed_at = NULL WHERE id = ?`

func (q *Queries) MarkDeliverySynced(ctx context.Context, id int64, at string) error {
	_, err := q.db.ExecContext(ctx, markDeliverySynced, at, id)
	return err
}

const markDeliverySyncError = `UPDATE deliveries SET sync_status = 'error', claimed_at = NULL WHERE id = ?`

func (q *Queries) MarkDeliverySyncError(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, markDeliverySyncError, id)
	return err
}

const createSupplier = `INSERT INTO suppliers (name) VALUES (?)
RETURNING id, name, created_at`

func (q *Queries) CreateSupplier(ctx context.Context, name string) (Supplier, error) {
	var sup Supplier
	err := q.db.QueryRowContext(ctx, createSupplier, name).Scan(&sup.ID, &sup.Name, &sup.CreatedAt)
	return sup, err
}

const getSupplier = `SELECT id, name, created_at FROM suppliers WHERE id = ?`

func (q *Queries) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	var sup Supplier
	err := q.db.QueryRowContext(ctx, getSupplier, id).Scan(&sup.ID, &sup.Name, &sup.CreatedAt)
	return sup, err
}

const listSuppliers = `SELECT id, name, created_at FROM suppliers ORDER BY name ASC`

func (q *Queries) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	rows, err := q.db.QueryContext(ctx, listSuppliers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Supplier
	for rows.Next() {
		var sup Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, sup)
	}
	return items, rows.Err()
}

const createStockEntry = `INSERT INTO stock_entries (supplier_id, baskets, received_at) VALUES (?, ?, ?)
RETURNING id, supplier_id, baskets, received_at`

type CreateStockEntryParams struct {
	SupplierID int64
	Baskets    int64
	ReceivedAt string
}

func (q *Queries) CreateStockEntry(ctx context.Context, arg CreateStockEntryParams) (StockEntry, error) {
	var e StockEntry
	err := q.db.QueryRowContext(ctx, createStockEntry, arg.SupplierID, arg.Baskets, arg.ReceivedAt).
		Scan(&e.ID, &e.SupplierID, &e.Baskets, &e.ReceivedAt)
	return e, err
}

const listStockEntriesBySupplier = `SELECT id, supplier_id, baskets, received_at
FROM stock_entries WHERE supplier_id = ? ORDER BY received_at DESC, id DESC`

func (q *Queries) ListStockEntriesBySupplier(ctx context.Context, supplierID int64) ([]StockEntry, error) {
	rows, err := q.db.QueryContext(ctx, listStockEntriesBySupplier, supplierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StockEntry
	for rows.Next() {
		var e StockEntry
		if err := rows.Scan(&e.ID, &e.SupplierID, &e.Baskets, &e.ReceivedAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

const summary = `SELECT
    (SELECT COUNT(*) FROM institutions),
    (SELECT COUNT(*) FROM families),
    (SELECT COUNT(*) FROM suppliers),
    (SELECT COUNT(*) FROM deliveries WHERE delivered_at >= ? AND delivered_at < ?),
    (SELECT COALESCE(SUM(baskets), 0) FROM deliveries WHERE delivered_at >= ? AND delivered_at < ?),
    (SELECT COALESCE(SUM(baskets), 0) FROM stock_entries) -
    (SELECT COALESCE(SUM(baskets), 0) FROM deliveries)`

type SummaryRow struct {
	Institutions int64
	Families     int64
	Suppliers    int64
	Deliveries   int64
	Baskets      int64
	InStock      int64
}

func (q *Queries) Summary(ctx context.Context, from, until string) (SummaryRow, error) {
	var s SummaryRow
	err := q.db.QueryRowContext(ctx, summary, from, until, from, until).
		Scan(&s.Institutions, &s.Families, &s.Suppliers, &s.Deliveries, &s.Baskets, &s.InStock)
	return s, err
}
