// Package report builds the delivery time series shown on the dashboard chart.
package report

import (
	"sort"
	"time"

	"cestas/internal/core"
)

// WindowMonths is the number of calendar months covered by a report.
const WindowMonths = 6

// WindowStart returns midnight on the first day of the month five months
// before now, in now's location.
func WindowStart(now time.Time) time.Time {
	return core.MonthOf(now).AddMonths(-(WindowMonths - 1)).Start(now.Location())
}

type bucket map[int64]*core.InstitutionCount

// Aggregate turns delivery records into exactly WindowMonths chart rows,
// oldest month first, ending with now's month. Records outside the window
// or without an institution reference are ignored. Rows are sparse: only
// institutions with at least one delivery in that month appear.
func Aggregate(now time.Time, records []core.DeliveryRecord, labels MonthLabeler) []core.ChartRow {
	if labels == nil {
		labels = DefaultLabeler()
	}

	current := core.MonthOf(now)
	first := current.AddMonths(-(WindowMonths - 1))
	buckets := make(map[core.MonthKey]bucket, WindowMonths)

	for _, rec := range records {
		if !rec.HasInstitution() {
			continue
		}
		key := core.MonthOf(rec.DeliveredAt.In(now.Location()))
		if key.Before(first) || current.Before(key) {
			continue
		}
		b, ok := buckets[key]
		if !ok {
			b = make(bucket)
			buckets[key] = b
		}
		c, ok := b[rec.InstitutionID]
		if !ok {
			c = &core.InstitutionCount{InstitutionID: rec.InstitutionID, Name: *rec.InstitutionName}
			b[rec.InstitutionID] = c
		}
		c.Count++
	}

	rows := make([]core.ChartRow, 0, WindowMonths)
	for i := WindowMonths - 1; i >= 0; i-- {
		key := current.AddMonths(-i)
		rows = append(rows, core.ChartRow{
			Name:   labels.Label(key),
			Counts: buckets[key].sorted(),
		})
	}
	return rows
}

func (b bucket) sorted() []core.InstitutionCount {
	if len(b) == 0 {
		return nil
	}
	out := make([]core.InstitutionCount, 0, len(b))
	for _, c := range b {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].InstitutionID < out[j].InstitutionID
	})
	return out
}
