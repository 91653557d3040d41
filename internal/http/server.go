package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"cestas/internal/cache"
	"cestas/internal/core"
	applog "cestas/internal/log"
	"cestas/internal/middleware/ratelimit"
	"cestas/internal/middleware/security"
	"cestas/internal/middleware/trace"
	"cestas/internal/report"
	"cestas/internal/sheets"
)

const (
	summaryCacheSize       = 16
	summaryCacheTTL        = time.Minute
	summaryCleanupInterval = 5 * time.Minute
)

// ReportBuilder produces the deliveries-by-institution chart payload.
type ReportBuilder interface {
	DeliveriesByInstitution(ctx context.Context) (*report.Report, error)
}

// Deps are the collaborators the API is served from. Ready is optional.
type Deps struct {
	Reports      ReportBuilder
	Institutions sheets.InstitutionStore
	Families     sheets.FamilyStore
	Deliveries   sheets.DeliveryWriter
	Summary      sheets.SummaryReader
	Suppliers    sheets.SupplierStore
	Ready        func(ctx context.Context) error

	Logger    *applog.Logger
	Now       func() time.Time
	Location  *time.Location
	RateLimit ratelimit.Config
}

type Server struct {
	http.Server

	deps     Deps
	logger   *applog.Logger
	access   *applog.StructuredLogger
	detector *security.Detector
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware

	summaryCache *cache.LRUCache[core.DashboardSummary]
	caches       *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = applog.Default(applog.ComponentHTTP)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}

	s := &Server{
		deps:         deps,
		logger:       deps.Logger,
		access:       applog.NewStructuredLogger(deps.Logger),
		detector:     security.NewDetector(),
		limiter:      ratelimit.NewLimiter(deps.RateLimit),
		summaryCache: cache.NewLRUCache[core.DashboardSummary](summaryCacheSize, summaryCacheTTL),
		caches:       cache.NewManager(),
	}
	s.tracer = trace.NewMiddleware(deps.Logger, s.detector.ExtractClientIP)
	s.caches.Register(s.summaryCache)
	s.caches.StartCleanup(summaryCleanupInterval)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/reports/deliveries-by-institution", s.handleDeliveriesByInstitution)
	mux.HandleFunc("GET /api/dashboard/summary", s.handleSummary)
	mux.HandleFunc("GET /api/institutions", s.handleListInstitutions)
	mux.HandleFunc("POST /api/institutions", s.handleCreateInstitution)
	mux.HandleFunc("GET /api/institutions/{id}/families", s.handleListFamilies)
	mux.HandleFunc("POST /api/families", s.handleCreateFamily)
	mux.HandleFunc("POST /api/deliveries", s.handleCreateDelivery)
	mux.HandleFunc("GET /api/suppliers", s.handleListSuppliers)
	mux.HandleFunc("POST /api/suppliers", s.handleCreateSupplier)
	mux.HandleFunc("GET /api/suppliers/{id}/stock", s.handleListStock)
	mux.HandleFunc("POST /api/suppliers/{id}/stock", s.handleRecordStock)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(s.detector.ExtractClientIP, ratelimit.IsMutating,
		func(w http.ResponseWriter, r *http.Request) { TooManyRequestsError().Write(w) })

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.tracer.Middleware(s.detector.Middleware(headers.Middleware(limit(mux)))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// invalidateSummary drops cached dashboard counters after a write.
func (s *Server) invalidateSummary() {
	s.summaryCache.Clear()
}
