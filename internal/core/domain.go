package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

type (
	// Institution is a partner organization through which baskets are distributed.
	Institution struct {
		ID        int64
		Name      string
		CreatedAt time.Time
	}

	// Family is a household registered with an institution.
	Family struct {
		ID            int64
		Name          string
		InstitutionID int64
		Members       int
		CreatedAt     time.Time
	}

	// Delivery is one hand-off of baskets to a family.
	Delivery struct {
		ID            int64
		FamilyID      int64
		InstitutionID int64
		DeliveredAt   time.Time
		Baskets       int
	}

	// Supplier donates or sells baskets to the program.
	Supplier struct {
		ID        int64
		Name      string
		CreatedAt time.Time
	}

	// StockEntry is a batch of baskets received from a supplier. Deliveries
	// draw the stock down.
	StockEntry struct {
		ID         int64
		SupplierID int64
		Baskets    int
		ReceivedAt time.Time
	}

	// DeliveryRecord is the reporting view of a delivery: a date and an
	// optional institution reference.
	DeliveryRecord struct {
		DeliveredAt     time.Time
		InstitutionID   int64
		InstitutionName *string
	}

	// InstitutionRef is a roster entry used for chart legends.
	InstitutionRef struct {
		Name string `json:"name"`
	}
)

const maxNameLength = 120

var (
	ErrEmptyName          = errors.New("empty name")
	ErrNameTooLong        = errors.New("name too long (max 120 characters)")
	ErrInvalidMembers     = errors.New("family must have at least one member")
	ErrInvalidBaskets     = errors.New("delivery must have at least one basket")
	ErrInvalidStock       = errors.New("stock entry must have at least one basket")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidInstitution = errors.New("invalid institution")
	ErrInvalidFamily      = errors.New("invalid family")
	ErrInvalidSupplier    = errors.New("invalid supplier")
	ErrNotFound           = errors.New("not found")
	ErrDuplicate          = errors.New("already exists")
)

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return ErrNameTooLong
	}
	return nil
}

func (i Institution) Validate() error {
	return validateName(i.Name)
}

func (f Family) Validate() error {
	if err := validateName(f.Name); err != nil {
		return err
	}
	if f.InstitutionID <= 0 {
		return ErrInvalidInstitution
	}
	if f.Members < 1 {
		return ErrInvalidMembers
	}
	return nil
}

func (d Delivery) Validate() error {
	if d.DeliveredAt.IsZero() {
		return ErrInvalidDate
	}
	if d.InstitutionID <= 0 {
		return ErrInvalidInstitution
	}
	if d.FamilyID < 0 {
		return ErrInvalidFamily
	}
	if d.Baskets < 1 {
		return ErrInvalidBaskets
	}
	return nil
}

func (s Supplier) Validate() error {
	return validateName(s.Name)
}

func (e StockEntry) Validate() error {
	if e.ReceivedAt.IsZero() {
		return ErrInvalidDate
	}
	if e.SupplierID <= 0 {
		return ErrInvalidSupplier
	}
	if e.Baskets < 1 {
		return ErrInvalidStock
	}
	return nil
}

// HasInstitution reports whether the record carries a usable institution reference.
func (r DeliveryRecord) HasInstitution() bool {
	return r.InstitutionName != nil && r.InstitutionID > 0
}
