// Package cobranzas implements the collections analytics engine:
// overdue classification, risk resolution, the derived aggregate views
// and the mutation coordinator that keeps them consistent.
package cobranzas

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the two abortive error kinds. Callers match with
// errors.Is; the richer context travels in the wrapping error string.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
)

// validationf wraps ErrValidation with a formatted reason.
func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// notFoundf wraps ErrNotFound with a formatted reason.
func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// RowDiagnostic identifies a ledger row excluded from an aggregation.
type RowDiagnostic struct {
	InstallmentID int64  `json:"installment_id"`
	LoanID        int64  `json:"loan_id"`
	Reason        string `json:"reason"`
}

// PartialDataError reports ledger rows that were malformed and skipped
// during aggregation. It never aborts the aggregation; it rides along
// with the result so the presentation layer can warn.
type PartialDataError struct {
	Skipped []RowDiagnostic
}

func (e *PartialDataError) Error() string {
	ids := make([]string, len(e.Skipped))
	for i, d := range e.Skipped {
		ids[i] = fmt.Sprintf("%d", d.InstallmentID)
	}
	return fmt.Sprintf("%d ledger rows skipped: [%s]", len(e.Skipped), strings.Join(ids, " "))
}
