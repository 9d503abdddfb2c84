package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Installment represents one scheduled payment obligation of a loan,
// as projected from the external ledger.
type Installment struct {
	ID               int64           `json:"id"`
	LoanID           int64           `json:"loan_id"`
	BorrowerIDNumber string          `json:"borrower_id_number"`
	BorrowerName     string          `json:"borrower_name"`
	DueDate          time.Time       `json:"due_date"`
	AmountDue        decimal.Decimal `json:"amount_due"`
	AmountPaid       decimal.Decimal `json:"amount_paid"`
	// Analyst holds the plain analyst name, ProposerUser the system-user
	// email. At most one is set; Assignee() resolves whichever applies.
	Analyst      string `json:"analista,omitempty"`
	ProposerUser string `json:"usuario_proponente,omitempty"`
}

// Assignee returns the identifier shown as "the analyst" for this
// installment's loan, or the empty string when nobody is assigned.
func (i Installment) Assignee() string {
	if i.ProposerUser != "" {
		return i.ProposerUser
	}
	return i.Analyst
}

// Outstanding is the unpaid remainder, never negative. Overpaid ledger
// rows (amount_paid > amount_due) contribute zero.
func (i Installment) Outstanding() decimal.Decimal {
	rest := i.AmountDue.Sub(i.AmountPaid)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}
