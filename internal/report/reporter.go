package report

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"cestas/internal/core"
	applog "cestas/internal/log"
	"cestas/internal/sheets"
)

// Report is the payload bound to the dashboard chart.
type Report struct {
	ChartData    []core.ChartRow       `json:"chartData"`
	Institutions []core.InstitutionRef `json:"institutions"`
}

// Reporter builds delivery-by-institution reports from two independent
// read-only queries. It holds no per-request state.
type Reporter struct {
	deliveries sheets.DeliverySource
	roster     sheets.InstitutionRoster
	now        func() time.Time
	labels     MonthLabeler
	logger     *applog.Logger
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithClock overrides the time source used to anchor the window.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLabeler sets the month label table.
func WithLabeler(l MonthLabeler) Option {
	return func(r *Reporter) {
		if l != nil {
			r.labels = l
		}
	}
}

// WithLogger sets the logger for retrieval failures and build diagnostics.
func WithLogger(l *applog.Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewReporter builds a Reporter over the given delivery source and roster.
// Without options it uses the wall clock and pt-BR month labels.
func NewReporter(deliveries sheets.DeliverySource, roster sheets.InstitutionRoster, opts ...Option) *Reporter {
	r := &Reporter{
		deliveries: deliveries,
		roster:     roster,
		now:        time.Now,
		labels:     DefaultLabeler(),
		logger:     applog.Default(applog.ComponentReport),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DeliveriesByInstitution fetches deliveries for the trailing six-month
// window and the institution roster concurrently, then aggregates. If
// either query fails the whole report fails with a *RetrievalFailure.
func (r *Reporter) DeliveriesByInstitution(ctx context.Context) (*Report, error) {
	now := r.now()
	since := WindowStart(now)

	var (
		records []core.DeliveryRecord
		names   []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := r.deliveries.ListDeliveriesSince(gctx, since)
		if err != nil {
			return &RetrievalFailure{Source: SourceDeliveries, Err: err}
		}
		records = recs
		return nil
	})
	g.Go(func() error {
		ns, err := r.roster.ListInstitutionNames(gctx)
		if err != nil {
			return &RetrievalFailure{Source: SourceInstitutions, Err: err}
		}
		names = ns
		return nil
	})

	if err := g.Wait(); err != nil {
		r.logger.ErrorContext(ctx, "Delivery report retrieval failed",
			applog.FieldError, err,
			applog.FieldWindowStart, since)
		return nil, err
	}

	institutions := make([]core.InstitutionRef, 0, len(names))
	for _, n := range names {
		institutions = append(institutions, core.InstitutionRef{Name: n})
	}

	rep := &Report{
		ChartData:    Aggregate(now, records, r.labels),
		Institutions: institutions,
	}

	r.logger.DebugContext(ctx, "Delivery report built",
		applog.FieldWindowStart, since,
		applog.FieldRecords, len(records))

	return rep, nil
}
