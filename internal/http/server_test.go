package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"cestas/internal/core"
	applog "cestas/internal/log"
	"cestas/internal/middleware/ratelimit"
	"cestas/internal/middleware/trace"
	"cestas/internal/report"
	"cestas/internal/sheets/memory"
)

var testNow = time.Date(2026, time.May, 20, 12, 0, 0, 0, time.UTC)

type failingReports struct{}

func (failingReports) DeliveriesByInstitution(ctx context.Context) (*report.Report, error) {
	return nil, &report.RetrievalFailure{Source: report.SourceInstitutions, Err: errors.New("connection refused")}
}

type countingSummary struct {
	calls int
	sum   core.DashboardSummary
}

func (c *countingSummary) Summary(ctx context.Context, monthStart time.Time) (core.DashboardSummary, error) {
	c.calls++
	return c.sum, nil
}

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{
		Component: applog.ComponentHTTP,
		Handler:   slog.NewTextHandler(io.Discard, nil),
	})
}

func newTestServer(t *testing.T, store *memory.Store, mutate func(*Deps)) *Server {
	t.Helper()
	deps := Deps{
		Reports: report.NewReporter(store, store,
			report.WithClock(func() time.Time { return testNow }),
			report.WithLogger(quietLogger())),
		Institutions: store,
		Families:     store,
		Deliveries:   store,
		Summary:      store,
		Suppliers:    store,
		Logger:       quietLogger(),
		Now:          func() time.Time { return testNow },
		Location:     time.UTC,
	}
	if mutate != nil {
		mutate(&deps)
	}
	s := NewServer(":0", deps)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler.ServeHTTP(w, req)
	return w
}

func TestDeliveriesByInstitutionReport(t *testing.T) {
	store := memory.New([]string{"Institution A", "Institution B"})
	ctx := context.Background()
	for _, d := range []core.Delivery{
		{InstitutionID: 1, DeliveredAt: testNow, Baskets: 1},
		{InstitutionID: 1, DeliveredAt: testNow.AddDate(0, 0, -3), Baskets: 1},
		{InstitutionID: 2, DeliveredAt: testNow, Baskets: 1},
		{InstitutionID: 2, DeliveredAt: time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC), Baskets: 1},
		{InstitutionID: 2, DeliveredAt: time.Date(2025, time.October, 2, 9, 0, 0, 0, time.UTC), Baskets: 1},
	} {
		if _, err := store.RecordDelivery(ctx, d); err != nil {
			t.Fatalf("RecordDelivery: %v", err)
		}
	}
	s := newTestServer(t, store, nil)

	w := do(s, http.MethodGet, "/api/reports/deliveries-by-institution", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	want := `{"chartData":[` +
		`{"name":"dez"},{"name":"jan"},{"name":"fev"},` +
		`{"name":"mar","Institution B":1},{"name":"abr"},` +
		`{"name":"mai","Institution A":2,"Institution B":1}],` +
		`"institutions":[{"name":"Institution A"},{"name":"Institution B"}]}` + "\n"
	if diff := cmp.Diff(want, w.Body.String()); diff != "" {
		t.Errorf("report body mismatch (-want +got):\n%s", diff)
	}
	if w.Header().Get(trace.HeaderRequestID) == "" {
		t.Errorf("expected request ID header")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("expected security headers on API responses")
	}
}

func TestDeliveriesByInstitutionRetrievalFailure(t *testing.T) {
	s := newTestServer(t, memory.New(nil), func(d *Deps) { d.Reports = failingReports{} })

	w := do(s, http.MethodGet, "/api/reports/deliveries-by-institution", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if got := w.Body.String(); got != "{\"error\":\"unable to load report\"}\n" {
		t.Errorf("body = %q", got)
	}
}

func TestInstitutionAndFamilyEndpoints(t *testing.T) {
	s := newTestServer(t, memory.New(nil), nil)

	w := do(s, http.MethodPost, "/api/institutions", `{"name":"  Cáritas "}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create institution status = %d, body = %s", w.Code, w.Body.String())
	}
	var inst institutionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &inst); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if inst.ID != 1 || inst.Name != "Cáritas" {
		t.Errorf("institution = %+v", inst)
	}

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
	}{
		{"empty name", http.MethodPost, "/api/institutions", `{"name":"   "}`, http.StatusUnprocessableEntity},
		{"duplicate name", http.MethodPost, "/api/institutions", `{"name":"Cáritas"}`, http.StatusConflict},
		{"unknown field", http.MethodPost, "/api/institutions", `{"nome":"x"}`, http.StatusBadRequest},
		{"broken json", http.MethodPost, "/api/institutions", `{"name":`, http.StatusBadRequest},
		{"family ok", http.MethodPost, "/api/families", `{"name":"Souza","institutionId":1,"members":4}`, http.StatusCreated},
		{"family no members", http.MethodPost, "/api/families", `{"name":"Lima","institutionId":1,"members":0}`, http.StatusUnprocessableEntity},
		{"family unknown institution", http.MethodPost, "/api/families", `{"name":"Lima","institutionId":9,"members":2}`, http.StatusNotFound},
		{"list families", http.MethodGet, "/api/institutions/1/families", "", http.StatusOK},
		{"list families bad id", http.MethodGet, "/api/institutions/abc/families", "", http.StatusBadRequest},
		{"wrong method", http.MethodDelete, "/api/institutions", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(s, tt.method, tt.target, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}

	w = do(s, http.MethodGet, "/api/institutions/1/families", "")
	var fams []familyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &fams); err != nil {
		t.Fatalf("decode families: %v", err)
	}
	if len(fams) != 1 || fams[0].Name != "Souza" || fams[0].Members != 4 {
		t.Errorf("families = %+v", fams)
	}

	w = do(s, http.MethodGet, "/api/institutions", "")
	var list []institutionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode institutions: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("institutions = %+v", list)
	}
}

func TestCreateDelivery(t *testing.T) {
	store := memory.New([]string{"Cáritas", "Abrigo"})
	if _, err := store.CreateFamily(context.Background(), core.Family{Name: "Souza", InstitutionID: 2, Members: 4}); err != nil {
		t.Fatalf("CreateFamily: %v", err)
	}
	s := newTestServer(t, store, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantDate   time.Time
	}{
		{"date only", `{"institutionId":1,"deliveredAt":"2026-05-02","baskets":2}`, http.StatusCreated, time.Date(2026, time.May, 2, 0, 0, 0, 0, time.UTC)},
		{"rfc3339", `{"institutionId":1,"deliveredAt":"2026-05-02T10:30:00Z","baskets":1}`, http.StatusCreated, time.Date(2026, time.May, 2, 10, 30, 0, 0, time.UTC)},
		{"defaults to now", `{"institutionId":1,"baskets":1}`, http.StatusCreated, testNow},
		{"bad date", `{"institutionId":1,"deliveredAt":"02/05/2026","baskets":1}`, http.StatusUnprocessableEntity, time.Time{}},
		{"no baskets", `{"institutionId":1,"baskets":0}`, http.StatusUnprocessableEntity, time.Time{}},
		{"no institution", `{"baskets":1}`, http.StatusUnprocessableEntity, time.Time{}},
		{"unknown institution", `{"institutionId":7,"baskets":1}`, http.StatusNotFound, time.Time{}},
		{"family of the institution", `{"institutionId":2,"familyId":1,"deliveredAt":"2026-05-03","baskets":1}`, http.StatusCreated, time.Date(2026, time.May, 3, 0, 0, 0, 0, time.UTC)},
		{"unknown family", `{"institutionId":1,"familyId":42,"baskets":1}`, http.StatusNotFound, time.Time{}},
		{"family of another institution", `{"institutionId":1,"familyId":1,"baskets":1}`, http.StatusUnprocessableEntity, time.Time{}},
		{"trailing data", `{"institutionId":1,"baskets":1} {}`, http.StatusBadRequest, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(s, http.MethodPost, "/api/deliveries", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusCreated {
				return
			}
			var got deliveryResponse
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !got.DeliveredAt.Equal(tt.wantDate) {
				t.Errorf("deliveredAt = %v, want %v", got.DeliveredAt, tt.wantDate)
			}
		})
	}
}

func TestSummaryIsCachedUntilWrite(t *testing.T) {
	store := memory.New([]string{"Cáritas"})
	counter := &countingSummary{sum: core.DashboardSummary{Institutions: 1}}
	s := newTestServer(t, store, func(d *Deps) { d.Summary = counter })

	for i := 0; i < 3; i++ {
		w := do(s, http.MethodGet, "/api/dashboard/summary", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
	}
	if counter.calls != 1 {
		t.Fatalf("summary calls = %d, want 1", counter.calls)
	}

	if w := do(s, http.MethodPost, "/api/deliveries", `{"institutionId":1,"baskets":1}`); w.Code != http.StatusCreated {
		t.Fatalf("create delivery status = %d", w.Code)
	}
	w := do(s, http.MethodGet, "/api/dashboard/summary", "")
	if counter.calls != 2 {
		t.Fatalf("summary calls after write = %d, want 2", counter.calls)
	}
	want := `{"institutions":1,"families":0,"suppliers":0,"deliveriesThisMonth":0,"basketsThisMonth":0,"basketsInStock":0}` + "\n"
	if diff := cmp.Diff(want, w.Body.String()); diff != "" {
		t.Errorf("summary body mismatch (-want +got):\n%s", diff)
	}
}

func TestSupplierEndpoints(t *testing.T) {
	store := memory.New([]string{"Cáritas"})
	s := newTestServer(t, store, nil)

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"create supplier", http.MethodPost, "/api/suppliers", `{"name":" Banco de Alimentos "}`, http.StatusCreated, ""},
		{"duplicate supplier", http.MethodPost, "/api/suppliers", `{"name":"Banco de Alimentos"}`, http.StatusConflict, ""},
		{"blank supplier", http.MethodPost, "/api/suppliers", `{"name":""}`, http.StatusUnprocessableEntity, ""},
		{"stock in", http.MethodPost, "/api/suppliers/1/stock", `{"baskets":30,"receivedAt":"2026-05-02"}`, http.StatusCreated,
			`{"id":1,"supplierId":1,"baskets":30,"receivedAt":"2026-05-02T00:00:00Z"}` + "\n"},
		{"stock defaults to now", http.MethodPost, "/api/suppliers/1/stock", `{"baskets":5}`, http.StatusCreated,
			`{"id":2,"supplierId":1,"baskets":5,"receivedAt":"2026-05-20T12:00:00Z"}` + "\n"},
		{"stock without baskets", http.MethodPost, "/api/suppliers/1/stock", `{"baskets":0}`, http.StatusUnprocessableEntity, ""},
		{"stock bad date", http.MethodPost, "/api/suppliers/1/stock", `{"baskets":1,"receivedAt":"ontem"}`, http.StatusUnprocessableEntity, ""},
		{"stock unknown supplier", http.MethodPost, "/api/suppliers/9/stock", `{"baskets":1}`, http.StatusNotFound, ""},
		{"stock bad id", http.MethodPost, "/api/suppliers/x/stock", `{"baskets":1}`, http.StatusBadRequest, ""},
		{"list stock", http.MethodGet, "/api/suppliers/1/stock", "", http.StatusOK,
			`[{"id":2,"supplierId":1,"baskets":5,"receivedAt":"2026-05-20T12:00:00Z"},` +
				`{"id":1,"supplierId":1,"baskets":30,"receivedAt":"2026-05-02T00:00:00Z"}]` + "\n"},
		{"list stock unknown supplier", http.MethodGet, "/api/suppliers/9/stock", "", http.StatusNotFound, ""},
		{"deliver from stock", http.MethodPost, "/api/deliveries", `{"institutionId":1,"baskets":4}`, http.StatusCreated, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(s, tt.method, tt.target, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantBody != "" {
				if diff := cmp.Diff(tt.wantBody, w.Body.String()); diff != "" {
					t.Errorf("body mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}

	w := do(s, http.MethodGet, "/api/suppliers", "")
	var list []supplierResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode suppliers: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Banco de Alimentos" {
		t.Errorf("suppliers = %+v", list)
	}

	w = do(s, http.MethodGet, "/api/dashboard/summary", "")
	var sum core.DashboardSummary
	if err := json.Unmarshal(w.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if sum.Suppliers != 1 || sum.BasketsInStock != 31 {
		t.Errorf("summary = %+v, want 1 supplier and 31 baskets in stock", sum)
	}
}

func TestRateLimitAppliesToMutatingRequests(t *testing.T) {
	s := newTestServer(t, memory.New(nil), func(d *Deps) {
		d.RateLimit = ratelimit.Config{RequestsPerMinute: 2}
	})

	for i, name := range []string{"A", "B"} {
		if w := do(s, http.MethodPost, "/api/institutions", `{"name":"`+name+`"}`); w.Code != http.StatusCreated {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	w := do(s, http.MethodPost, "/api/institutions", `{"name":"C"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Body.String() != "{\"error\":\"rate limit exceeded\"}\n" {
		t.Errorf("body = %q", w.Body.String())
	}

	if w := do(s, http.MethodGet, "/api/institutions", ""); w.Code != http.StatusOK {
		t.Errorf("GET should not be rate limited, got %d", w.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	ready := errors.New("database locked")
	s := newTestServer(t, memory.New(nil), func(d *Deps) {
		d.Ready = func(context.Context) error { return ready }
	})

	if w := do(s, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", w.Code, w.Body.String())
	}
	if w := do(s, http.MethodGet, "/readyz", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz = %d, want 503", w.Code)
	}
	ready = nil
	if w := do(s, http.MethodGet, "/readyz", ""); w.Code != http.StatusOK {
		t.Errorf("readyz = %d, want 200", w.Code)
	}
}

func TestSuspiciousRequestBlocked(t *testing.T) {
	s := newTestServer(t, memory.New(nil), nil)
	w := do(s, http.MethodGet, "/api/institutions?q=../../etc/passwd", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
