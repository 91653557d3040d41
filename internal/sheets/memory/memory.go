package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"cestas/internal/core"
	ports "cestas/internal/sheets"
)

// Store keeps the whole data set in memory. It backs the "memory" data
// backend and doubles as a fake in tests.
type Store struct {
	mu           sync.Mutex
	institutions []core.Institution
	families     []core.Family
	deliveries   []core.Delivery
	suppliers    []core.Supplier
	stock        []core.StockEntry
	now          func() time.Time
}

var (
	_ ports.DeliverySource    = (*Store)(nil)
	_ ports.InstitutionRoster = (*Store)(nil)
	_ ports.InstitutionStore  = (*Store)(nil)
	_ ports.FamilyStore       = (*Store)(nil)
	_ ports.DeliveryWriter    = (*Store)(nil)
	_ ports.SupplierStore     = (*Store)(nil)
	_ ports.SummaryReader     = (*Store)(nil)
)

func New(institutions []string) *Store {
	s := &Store{now: time.Now}
	for _, name := range dedupe(institutions) {
		s.institutions = append(s.institutions, core.Institution{
			ID:        int64(len(s.institutions) + 1),
			Name:      name,
			CreatedAt: s.now(),
		})
	}
	return s
}

// NewFromFiles seeds institutions from base/seed_institutions.txt, one per line.
func NewFromFiles(base string) *Store {
	names := readLines(filepath.Join(base, "seed_institutions.txt"))
	return New(names)
}

func (s *Store) institutionByID(id int64) (core.Institution, bool) {
	for _, i := range s.institutions {
		if i.ID == id {
			return i, true
		}
	}
	return core.Institution{}, false
}

func (s *Store) familyByID(id int64) (core.Family, bool) {
	for _, f := range s.families {
		if f.ID == id {
			return f, true
		}
	}
	return core.Family{}, false
}

func (s *Store) supplierByID(id int64) (core.Supplier, bool) {
	for _, sup := range s.suppliers {
		if sup.ID == id {
			return sup, true
		}
	}
	return core.Supplier{}, false
}

// CreateInstitution implements sheets.InstitutionStore
func (s *Store) CreateInstitution(_ context.Context, i core.Institution) (core.Institution, error) {
	if err := i.Validate(); err != nil {
		return core.Institution{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name := strings.TrimSpace(i.Name)
	for _, existing := range s.institutions {
		if existing.Name == name {
			return core.Institution{}, fmt.Errorf("institution %q: %w", name, core.ErrDuplicate)
		}
	}
	i.ID = int64(len(s.institutions) + 1)
	i.Name = name
	i.CreatedAt = s.now()
	s.institutions = append(s.institutions, i)
	return i, nil
}

// ListInstitutions implements sheets.InstitutionStore
func (s *Store) ListInstitutions(_ context.Context) ([]core.Institution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]core.Institution(nil), s.institutions...)
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

// ListInstitutionNames implements sheets.InstitutionRoster
func (s *Store) ListInstitutionNames(ctx context.Context) ([]string, error) {
	list, _ := s.ListInstitutions(ctx)
	names := make([]string, len(list))
	for i, inst := range list {
		names[i] = inst.Name
	}
	return names, nil
}

// CreateFamily implements sheets.FamilyStore
func (s *Store) CreateFamily(_ context.Context, f core.Family) (core.Family, error) {
	if err := f.Validate(); err != nil {
		return core.Family{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.institutionByID(f.InstitutionID); !ok {
		return core.Family{}, fmt.Errorf("institution %d: %w", f.InstitutionID, core.ErrNotFound)
	}
	f.ID = int64(len(s.families) + 1)
	f.Name = strings.TrimSpace(f.Name)
	f.CreatedAt = s.now()
	s.families = append(s.families, f)
	return f, nil
}

// ListFamilies implements sheets.FamilyStore
func (s *Store) ListFamilies(_ context.Context, institutionID int64) ([]core.Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Family
	for _, f := range s.families {
		if f.InstitutionID == institutionID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

// RecordDelivery implements sheets.DeliveryWriter
func (s *Store) RecordDelivery(_ context.Context, d core.Delivery) (core.Delivery, error) {
	if err := d.Validate(); err != nil {
		return core.Delivery{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.institutionByID(d.InstitutionID); !ok {
		return core.Delivery{}, fmt.Errorf("institution %d: %w", d.InstitutionID, core.ErrNotFound)
	}
	if d.FamilyID > 0 {
		fam, ok := s.familyByID(d.FamilyID)
		if !ok {
			return core.Delivery{}, fmt.Errorf("family %d: %w", d.FamilyID, core.ErrNotFound)
		}
		if fam.InstitutionID != d.InstitutionID {
			return core.Delivery{}, fmt.Errorf("family %d is registered with institution %d: %w",
				fam.ID, fam.InstitutionID, core.ErrInvalidFamily)
		}
	}
	d.ID = int64(len(s.deliveries) + 1)
	s.deliveries = append(s.deliveries, d)
	return d, nil
}

// ListDeliveriesSince implements sheets.DeliverySource
func (s *Store) ListDeliveriesSince(_ context.Context, since time.Time) ([]core.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.DeliveryRecord
	for _, d := range s.deliveries {
		if d.DeliveredAt.Before(since) {
			continue
		}
		rec := core.DeliveryRecord{DeliveredAt: d.DeliveredAt}
		if inst, ok := s.institutionByID(d.InstitutionID); ok {
			name := inst.Name
			rec.InstitutionID = inst.ID
			rec.InstitutionName = &name
		}
		out = append(out, rec)
	}
	return out, nil
}

// Summary implements sheets.SummaryReader
func (s *Store) Summary(_ context.Context, monthStart time.Time) (core.DashboardSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	monthEnd := monthStart.AddDate(0, 1, 0)
	sum := core.DashboardSummary{
		Institutions: int64(len(s.institutions)),
		Families:     int64(len(s.families)),
		Suppliers:    int64(len(s.suppliers)),
	}
	for _, e := range s.stock {
		sum.BasketsInStock += int64(e.Baskets)
	}
	for _, d := range s.deliveries {
		sum.BasketsInStock -= int64(d.Baskets)
		if d.DeliveredAt.Before(monthStart) || !d.DeliveredAt.Before(monthEnd) {
			continue
		}
		sum.DeliveriesThisMonth++
		sum.BasketsThisMonth += int64(d.Baskets)
	}
	return sum, nil
}

// CreateSupplier implements sheets.SupplierStore
func (s *Store) CreateSupplier(_ context.Context, sup core.Supplier) (core.Supplier, error) {
	if err := sup.Validate(); err != nil {
		return core.Supplier{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name := strings.TrimSpace(sup.Name)
	for _, existing := range s.suppliers {
		if existing.Name == name {
			return core.Supplier{}, fmt.Errorf("supplier %q: %w", name, core.ErrDuplicate)
		}
	}
	sup.ID = int64(len(s.suppliers) + 1)
	sup.Name = name
	sup.CreatedAt = s.now()
	s.suppliers = append(s.suppliers, sup)
	return sup, nil
}

// ListSuppliers implements sheets.SupplierStore
func (s *Store) ListSuppliers(_ context.Context) ([]core.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]core.Supplier(nil), s.suppliers...)
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

// RecordStockEntry implements sheets.SupplierStore
func (s *Store) RecordStockEntry(_ context.Context, e core.StockEntry) (core.StockEntry, error) {
	if err := e.Validate(); err != nil {
		return core.StockEntry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.supplierByID(e.SupplierID); !ok {
		return core.StockEntry{}, fmt.Errorf("supplier %d: %w", e.SupplierID, core.ErrNotFound)
	}
	e.ID = int64(len(s.stock) + 1)
	s.stock = append(s.stock, e)
	return e, nil
}

// ListStockEntries implements sheets.SupplierStore. Entries come back
// newest first.
func (s *Store) ListStockEntries(_ context.Context, supplierID int64) ([]core.StockEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.supplierByID(supplierID); !ok {
		return nil, fmt.Errorf("supplier %d: %w", supplierID, core.ErrNotFound)
	}
	var out []core.StockEntry
	for _, e := range s.stock {
		if e.SupplierID == supplierID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].ReceivedAt.After(out[b].ReceivedAt) })
	return out, nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
