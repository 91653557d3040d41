package sheets

import (
	"context"
	"time"

	"cestas/internal/core"
)

// Ports for outbound adapters.
type (
	// DeliverySource returns delivery records dated on or after since.
	DeliverySource interface {
		ListDeliveriesSince(ctx context.Context, since time.Time) ([]core.DeliveryRecord, error)
	}

	// InstitutionRoster returns every institution name in ascending order.
	InstitutionRoster interface {
		ListInstitutionNames(ctx context.Context) ([]string, error)
	}

	InstitutionStore interface {
		CreateInstitution(ctx context.Context, i core.Institution) (core.Institution, error)
		ListInstitutions(ctx context.Context) ([]core.Institution, error)
	}

	FamilyStore interface {
		CreateFamily(ctx context.Context, f core.Family) (core.Family, error)
		ListFamilies(ctx context.Context, institutionID int64) ([]core.Family, error)
	}

	// SupplierStore registers suppliers and the baskets they hand over.
	SupplierStore interface {
		CreateSupplier(ctx context.Context, s core.Supplier) (core.Supplier, error)
		ListSuppliers(ctx context.Context) ([]core.Supplier, error)
		RecordStockEntry(ctx context.Context, e core.StockEntry) (core.StockEntry, error)
		ListStockEntries(ctx context.Context, supplierID int64) ([]core.StockEntry, error)
	}

	DeliveryWriter interface {
		RecordDelivery(ctx context.Context, d core.Delivery) (core.Delivery, error)
	}

	// SummaryReader provides the dashboard header counters.
	SummaryReader interface {
		// Summary counts deliveries made in the calendar month that
		// begins at monthStart.
		Summary(ctx context.Context, monthStart time.Time) (core.DashboardSummary, error)
	}

	// DeliveryExport is a delivery flattened for spreadsheet export.
	DeliveryExport struct {
		ID              int64
		DeliveredAt     time.Time
		InstitutionName string
		FamilyName      string
		Baskets         int
		Synced          bool
	}

	// DeliveryExporter mirrors deliveries to an external spreadsheet.
	DeliveryExporter interface {
		ExportDelivery(ctx context.Context, d DeliveryExport) (rowRef string, err error)
	}
)
