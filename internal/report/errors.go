package report

import (
	"errors"
	"fmt"
)

// Sources named in a RetrievalFailure.
const (
	SourceDeliveries   = "deliveries"
	SourceInstitutions = "institutions"
)

// RetrievalFailure reports that one of the backing queries failed. The
// report is never built from partial data when this is returned.
type RetrievalFailure struct {
	Source string
	Err    error
}

func (e *RetrievalFailure) Error() string {
	return fmt.Sprintf("retrieve %s: %v", e.Source, e.Err)
}

func (e *RetrievalFailure) Unwrap() error {
	return e.Err
}

// IsRetrievalFailure reports whether err wraps a RetrievalFailure.
func IsRetrievalFailure(err error) bool {
	var rf *RetrievalFailure
	return errors.As(err, &rf)
}
