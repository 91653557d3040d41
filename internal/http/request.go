package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"cestas/internal/core"
)

const maxBodyBytes = 1 << 16

var errMalformedBody = errors.New("malformed request body")

// Request and response payloads.
type (
	institutionRequest struct {
		Name string `json:"name"`
	}

	institutionResponse struct {
		ID        int64     `json:"id"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"createdAt"`
	}

	familyRequest struct {
		Name          string `json:"name"`
		InstitutionID int64  `json:"institutionId"`
		Members       int    `json:"members"`
	}

	familyResponse struct {
		ID            int64     `json:"id"`
		Name          string    `json:"name"`
		InstitutionID int64     `json:"institutionId"`
		Members       int       `json:"members"`
		CreatedAt     time.Time `json:"createdAt"`
	}

	deliveryRequest struct {
		InstitutionID int64  `json:"institutionId"`
		FamilyID      int64  `json:"familyId"`
		DeliveredAt   string `json:"deliveredAt"`
		Baskets       int    `json:"baskets"`
	}

	supplierRequest struct {
		Name string `json:"name"`
	}

	supplierResponse struct {
		ID        int64     `json:"id"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"createdAt"`
	}

	stockRequest struct {
		Baskets    int    `json:"baskets"`
		ReceivedAt string `json:"receivedAt"`
	}

	stockResponse struct {
		ID         int64     `json:"id"`
		SupplierID int64     `json:"supplierId"`
		Baskets    int       `json:"baskets"`
		ReceivedAt time.Time `json:"receivedAt"`
	}

	deliveryResponse struct {
		ID            int64     `json:"id"`
		InstitutionID int64     `json:"institutionId"`
		FamilyID      int64     `json:"familyId,omitempty"`
		DeliveredAt   time.Time `json:"deliveredAt"`
		Baskets       int       `json:"baskets"`
	}
)

func toInstitutionResponse(i core.Institution) institutionResponse {
	return institutionResponse{ID: i.ID, Name: i.Name, CreatedAt: i.CreatedAt}
}

func toFamilyResponse(f core.Family) familyResponse {
	return familyResponse{
		ID:            f.ID,
		Name:          f.Name,
		InstitutionID: f.InstitutionID,
		Members:       f.Members,
		CreatedAt:     f.CreatedAt,
	}
}

func toDeliveryResponse(d core.Delivery) deliveryResponse {
	return deliveryResponse{
		ID:            d.ID,
		InstitutionID: d.InstitutionID,
		FamilyID:      d.FamilyID,
		DeliveredAt:   d.DeliveredAt,
		Baskets:       d.Baskets,
	}
}

func toSupplierResponse(s core.Supplier) supplierResponse {
	return supplierResponse{ID: s.ID, Name: s.Name, CreatedAt: s.CreatedAt}
}

func toStockResponse(e core.StockEntry) stockResponse {
	return stockResponse{ID: e.ID, SupplierID: e.SupplierID, Baskets: e.Baskets, ReceivedAt: e.ReceivedAt}
}

// decodeJSON reads a single JSON object into dst. Unknown fields, trailing
// data and bodies over maxBodyBytes are rejected as malformed.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", errMalformedBody)
	}
	return nil
}

// sanitizeInput trims surrounding space and drops control characters.
func sanitizeInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// parseDate accepts YYYY-MM-DD (interpreted in loc) or RFC 3339.
// An empty value means now.
func parseDate(v string, now time.Time, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return now, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", v, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, core.ErrInvalidDate
	}
	return t, nil
}

// pathID parses a positive integer path value.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}
