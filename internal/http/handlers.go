package http

import (
	"net/http"

	"cestas/internal/core"
	applog "cestas/internal/log"
	"cestas/internal/report"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleDeliveriesByInstitution(w http.ResponseWriter, r *http.Request) {
	rep, err := s.deps.Reports.DeliveriesByInstitution(r.Context())
	if err != nil {
		s.fail(w, r, "Failed to build deliveries report", applog.OpReport, err)
		return
	}
	NewJSONResponse(rep).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	monthStart := core.MonthOf(s.deps.Now().In(s.deps.Location)).Start(s.deps.Location)
	key := monthStart.Format("2006-01")

	if sum, ok := s.summaryCache.Get(key); ok {
		NewJSONResponse(sum).Write(w)
		return
	}

	sum, err := s.deps.Summary.Summary(r.Context(), monthStart)
	if err != nil {
		s.fail(w, r, "Failed to load dashboard summary", applog.OpRead, err)
		return
	}
	s.summaryCache.Set(key, sum)
	NewJSONResponse(sum).Write(w)
}

func (s *Server) handleListInstitutions(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Institutions.ListInstitutions(r.Context())
	if err != nil {
		s.fail(w, r, "Failed to list institutions", applog.OpList, err)
		return
	}
	out := make([]institutionResponse, 0, len(list))
	for _, inst := range list {
		out = append(out, toInstitutionResponse(inst))
	}
	NewJSONResponse(out).Write(w)
}

func (s *Server) handleCreateInstitution(w http.ResponseWriter, r *http.Request) {
	var req institutionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(errMalformedBody.Error()).Write(w)
		return
	}

	inst, err := s.deps.Institutions.CreateInstitution(r.Context(), core.Institution{Name: sanitizeInput(req.Name)})
	if err != nil {
		s.fail(w, r, "Failed to create institution", applog.OpCreate, err)
		return
	}
	s.invalidateSummary()
	NewJSONResponse(toInstitutionResponse(inst)).Status(http.StatusCreated).Write(w)
}

func (s *Server) handleListFamilies(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	fams, err := s.deps.Families.ListFamilies(r.Context(), id)
	if err != nil {
		s.fail(w, r, "Failed to list families", applog.OpList, err)
		return
	}
	out := make([]familyResponse, 0, len(fams))
	for _, f := range fams {
		out = append(out, toFamilyResponse(f))
	}
	NewJSONResponse(out).Write(w)
}

func (s *Server) handleCreateFamily(w http.ResponseWriter, r *http.Request) {
	var req familyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(errMalformedBody.Error()).Write(w)
		return
	}

	fam, err := s.deps.Families.CreateFamily(r.Context(), core.Family{
		Name:          sanitizeInput(req.Name),
		InstitutionID: req.InstitutionID,
		Members:       req.Members,
	})
	if err != nil {
		s.fail(w, r, "Failed to create family", applog.OpCreate, err)
		return
	}
	s.invalidateSummary()
	NewJSONResponse(toFamilyResponse(fam)).Status(http.StatusCreated).Write(w)
}

func (s *Server) handleCreateDelivery(w http.ResponseWriter, r *http.Request) {
	var req deliveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(errMalformedBody.Error()).Write(w)
		return
	}

	deliveredAt, err := parseDate(req.DeliveredAt, s.deps.Now(), s.deps.Location)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	d, err := s.deps.Deliveries.RecordDelivery(r.Context(), core.Delivery{
		InstitutionID: req.InstitutionID,
		FamilyID:      req.FamilyID,
		DeliveredAt:   deliveredAt,
		Baskets:       req.Baskets,
	})
	if err != nil {
		s.fail(w, r, "Failed to record delivery", applog.OpCreate, err)
		return
	}
	s.invalidateSummary()
	s.access.LogDeliveryRecorded(r.Context(), d.ID, d.InstitutionID, d.FamilyID, d.Baskets)
	NewJSONResponse(toDeliveryResponse(d)).Status(http.StatusCreated).Write(w)
}

func (s *Server) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Suppliers.ListSuppliers(r.Context())
	if err != nil {
		s.fail(w, r, "Failed to list suppliers", applog.OpList, err)
		return
	}
	out := make([]supplierResponse, 0, len(list))
	for _, sup := range list {
		out = append(out, toSupplierResponse(sup))
	}
	NewJSONResponse(out).Write(w)
}

func (s *Server) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(errMalformedBody.Error()).Write(w)
		return
	}

	sup, err := s.deps.Suppliers.CreateSupplier(r.Context(), core.Supplier{Name: sanitizeInput(req.Name)})
	if err != nil {
		s.fail(w, r, "Failed to create supplier", applog.OpCreate, err)
		return
	}
	s.invalidateSummary()
	NewJSONResponse(toSupplierResponse(sup)).Status(http.StatusCreated).Write(w)
}

func (s *Server) handleListStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	entries, err := s.deps.Suppliers.ListStockEntries(r.Context(), id)
	if err != nil {
		s.fail(w, r, "Failed to list stock entries", applog.OpList, err)
		return
	}
	out := make([]stockResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toStockResponse(e))
	}
	NewJSONResponse(out).Write(w)
}

func (s *Server) handleRecordStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var req stockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(errMalformedBody.Error()).Write(w)
		return
	}

	receivedAt, err := parseDate(req.ReceivedAt, s.deps.Now(), s.deps.Location)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	entry, err := s.deps.Suppliers.RecordStockEntry(r.Context(), core.StockEntry{
		SupplierID: id,
		Baskets:    req.Baskets,
		ReceivedAt: receivedAt,
	})
	if err != nil {
		s.fail(w, r, "Failed to record stock entry", applog.OpCreate, err)
		return
	}
	s.invalidateSummary()
	NewJSONResponse(toStockResponse(entry)).Status(http.StatusCreated).Write(w)
}

// fail logs err with the request-scoped logger and writes the mapped response.
// Client errors are logged at warn level.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg, op string, err error) {
	resp := ErrorFor(err)
	logger := applog.FromContext(r.Context())
	switch {
	case resp.statusCode >= http.StatusInternalServerError:
		errType := applog.ErrorTypeInternal
		if report.IsRetrievalFailure(err) {
			errType = applog.ErrorTypeRetrieval
		}
		logger.ErrorContext(r.Context(), msg,
			applog.FieldError, err,
			applog.FieldOperation, op,
			applog.FieldErrorType, errType)
	default:
		logger.WarnContext(r.Context(), msg,
			applog.FieldError, err,
			applog.FieldOperation, op)
	}
	resp.Write(w)
}
