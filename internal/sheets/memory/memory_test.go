package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cestas/internal/core"
	"cestas/internal/report"
)

func TestMemoryStoreInstitutionsAndFamilies(t *testing.T) {
	ctx := context.Background()
	s := New([]string{"Cáritas", "Abrigo", "Cáritas", " "})

	names, err := s.ListInstitutionNames(ctx)
	if err != nil || len(names) != 2 || names[0] != "Abrigo" || names[1] != "Cáritas" {
		t.Fatalf("unexpected roster: %v err=%v", names, err)
	}

	if _, err := s.CreateInstitution(ctx, core.Institution{Name: " Abrigo"}); !errors.Is(err, core.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	fam, err := s.CreateFamily(ctx, core.Family{Name: "Costa", InstitutionID: 1, Members: 3})
	if err != nil || fam.ID != 1 {
		t.Fatalf("CreateFamily = %+v, %v", fam, err)
	}
	if _, err := s.CreateFamily(ctx, core.Family{Name: "X", InstitutionID: 9, Members: 1}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	fams, _ := s.ListFamilies(ctx, 1)
	if len(fams) != 1 {
		t.Fatalf("ListFamilies = %+v", fams)
	}
}

func TestMemoryStoreFeedsReport(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.May, 20, 12, 0, 0, 0, time.UTC)
	s := New([]string{"Institution A", "Institution B"})

	for _, d := range []core.Delivery{
		{InstitutionID: 1, DeliveredAt: now, Baskets: 1},
		{InstitutionID: 1, DeliveredAt: now.AddDate(0, 0, -1), Baskets: 1},
		{InstitutionID: 2, DeliveredAt: now, Baskets: 2},
		{InstitutionID: 2, DeliveredAt: now.AddDate(0, -7, 0), Baskets: 1},
	} {
		if _, err := s.RecordDelivery(ctx, d); err != nil {
			t.Fatalf("RecordDelivery: %v", err)
		}
	}

	rep, err := report.NewReporter(s, s, report.WithClock(func() time.Time { return now })).DeliveriesByInstitution(ctx)
	if err != nil {
		t.Fatalf("DeliveriesByInstitution: %v", err)
	}
	last := rep.ChartData[len(rep.ChartData)-1]
	if last.Name != "mai" || last.Count("Institution A") != 2 || last.Count("Institution B") != 1 {
		t.Fatalf("unexpected current month row: %+v", last)
	}
	if len(rep.Institutions) != 2 {
		t.Fatalf("roster = %+v", rep.Institutions)
	}

	sum, _ := s.Summary(ctx, core.MonthOf(now).Start(time.UTC))
	if sum.DeliveriesThisMonth != 3 || sum.BasketsThisMonth != 4 || sum.Institutions != 2 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestRecordDeliveryChecksFamily(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.May, 20, 12, 0, 0, 0, time.UTC)
	s := New([]string{"A", "B"})
	fam, err := s.CreateFamily(ctx, core.Family{Name: "Costa", InstitutionID: 2, Members: 3})
	if err != nil {
		t.Fatalf("CreateFamily: %v", err)
	}

	tests := []struct {
		name     string
		delivery core.Delivery
		want     error
	}{
		{"family of the institution", core.Delivery{InstitutionID: 2, FamilyID: fam.ID, DeliveredAt: now, Baskets: 1}, nil},
		{"no family", core.Delivery{InstitutionID: 1, DeliveredAt: now, Baskets: 1}, nil},
		{"unknown family", core.Delivery{InstitutionID: 1, FamilyID: 99, DeliveredAt: now, Baskets: 1}, core.ErrNotFound},
		{"family of another institution", core.Delivery{InstitutionID: 1, FamilyID: fam.ID, DeliveredAt: now, Baskets: 1}, core.ErrInvalidFamily},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.RecordDelivery(ctx, tt.delivery)
			if !errors.Is(err, tt.want) {
				t.Fatalf("RecordDelivery() error = %v, want %v", err, tt.want)
			}
		})
	}

	sum, _ := s.Summary(ctx, core.MonthOf(now).Start(time.UTC))
	if sum.DeliveriesThisMonth != 2 {
		t.Errorf("rejected deliveries were stored: %+v", sum)
	}
}

func TestSuppliersAndStock(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.May, 20, 12, 0, 0, 0, time.UTC)
	s := New([]string{"A"})

	sup, err := s.CreateSupplier(ctx, core.Supplier{Name: " Banco de Alimentos "})
	if err != nil || sup.ID != 1 || sup.Name != "Banco de Alimentos" {
		t.Fatalf("CreateSupplier = %+v, %v", sup, err)
	}
	if _, err := s.CreateSupplier(ctx, core.Supplier{Name: "Banco de Alimentos"}); !errors.Is(err, core.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := s.CreateSupplier(ctx, core.Supplier{Name: "Atacadão"}); err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}

	for _, e := range []core.StockEntry{
		{SupplierID: sup.ID, Baskets: 30, ReceivedAt: now.AddDate(0, -1, 0)},
		{SupplierID: sup.ID, Baskets: 20, ReceivedAt: now},
	} {
		if _, err := s.RecordStockEntry(ctx, e); err != nil {
			t.Fatalf("RecordStockEntry: %v", err)
		}
	}
	if _, err := s.RecordStockEntry(ctx, core.StockEntry{SupplierID: 9, Baskets: 1, ReceivedAt: now}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	entries, err := s.ListStockEntries(ctx, sup.ID)
	if err != nil || len(entries) != 2 || entries[0].Baskets != 20 {
		t.Fatalf("ListStockEntries = %+v, %v", entries, err)
	}
	list, _ := s.ListSuppliers(ctx)
	if len(list) != 2 || list[0].Name != "Atacadão" {
		t.Fatalf("ListSuppliers = %+v", list)
	}

	for _, d := range []core.Delivery{
		{InstitutionID: 1, DeliveredAt: now, Baskets: 4},
		{InstitutionID: 1, DeliveredAt: now.AddDate(0, -2, 0), Baskets: 6},
	} {
		if _, err := s.RecordDelivery(ctx, d); err != nil {
			t.Fatalf("RecordDelivery: %v", err)
		}
	}
	sum, _ := s.Summary(ctx, core.MonthOf(now).Start(time.UTC))
	if sum.Suppliers != 2 || sum.BasketsInStock != 40 {
		t.Fatalf("summary = %+v, want 2 suppliers and 40 baskets in stock", sum)
	}
}

func TestSummaryExcludesLaterMonths(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.May, 20, 12, 0, 0, 0, time.UTC)
	s := New([]string{"A"})
	for _, d := range []core.Delivery{
		{InstitutionID: 1, DeliveredAt: now, Baskets: 2},
		{InstitutionID: 1, DeliveredAt: time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC), Baskets: 5},
	} {
		if _, err := s.RecordDelivery(ctx, d); err != nil {
			t.Fatalf("RecordDelivery: %v", err)
		}
	}
	sum, _ := s.Summary(ctx, core.MonthOf(now).Start(time.UTC))
	if sum.DeliveriesThisMonth != 1 || sum.BasketsThisMonth != 2 {
		t.Fatalf("summary = %+v, want only the May delivery", sum)
	}
}

func TestNewFromFilesSeedsAndDedupe(t *testing.T) {
	dir := t.TempDir()
	s := NewFromFiles(dir)
	names, _ := s.ListInstitutionNames(context.Background())
	if len(names) != 0 {
		t.Fatalf("expected empty roster when seed file missing, got %v", names)
	}

	if err := os.WriteFile(filepath.Join(dir, "seed_institutions.txt"), []byte("# header\nB\nA\nB\n\n"), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	s = NewFromFiles(dir)
	names, _ = s.ListInstitutionNames(context.Background())
	if len(names) != 2 || names[0] != "A" || names[1] != "B" {
		t.Fatalf("unexpected names: %v", names)
	}
}
