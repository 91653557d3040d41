package core

import (
	"bytes"
	"encoding/json"
)

// InstitutionCount is the number of deliveries attributed to one institution.
type InstitutionCount struct {
	InstitutionID int64
	Name          string
	Count         int
}

// ChartRow is one month of the delivery time series.
// Counts is sparse: institutions without deliveries in the month are absent.
type ChartRow struct {
	Name   string
	Counts []InstitutionCount
}

// Count returns the deliveries for the named institution, or 0 when absent.
func (r ChartRow) Count(name string) int {
	total := 0
	for _, c := range r.Counts {
		if c.Name == name {
			total += c.Count
		}
	}
	return total
}

// Total sums every institution count in the row.
func (r ChartRow) Total() int {
	total := 0
	for _, c := range r.Counts {
		total += c.Count
	}
	return total
}

// MarshalJSON encodes the row as a flat object keyed by institution name,
// the shape charting libraries expect: {"name": "jan", "Inst A": 2}.
// Institutions sharing a display name are summed under that name.
func (r ChartRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"name":`)
	name, err := json.Marshal(r.Name)
	if err != nil {
		return nil, err
	}
	buf.Write(name)

	seen := make(map[string]bool, len(r.Counts))
	for _, c := range r.Counts {
		if c.Name == "name" || seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		key, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.Count(c.Name))
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DashboardSummary is a compact snapshot for the dashboard header.
// BasketsInStock is every basket received minus every basket delivered; it
// goes negative when deliveries were recorded without matching stock entries.
type DashboardSummary struct {
	Institutions        int64 `json:"institutions"`
	Families            int64 `json:"families"`
	Suppliers           int64 `json:"suppliers"`
	DeliveriesThisMonth int64 `json:"deliveriesThisMonth"`
	BasketsThisMonth    int64 `json:"basketsThisMonth"`
	BasketsInStock      int64 `json:"basketsInStock"`
}
