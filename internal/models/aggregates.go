package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnassignedKey groups installments whose loan has no analyst or system
// user assigned. Such rows are never dropped from the analyst rollup.
const UnassignedKey = "sin asignar"

// ClientSummary is the per-borrower collections view.
type ClientSummary struct {
	BorrowerIDNumber string          `json:"borrower_id_number"`
	BorrowerName     string          `json:"borrower_name"`
	Assignee         string          `json:"assignee"`
	OverdueCount     int             `json:"overdue_count"`
	Outstanding      decimal.Decimal `json:"outstanding"`
	FirstOverdue     time.Time       `json:"first_overdue"`
	Risk             *EffectiveRisk  `json:"risk,omitempty"` // nil when no assessment exists
}

// AnalystRollup is the per-analyst collections view.
type AnalystRollup struct {
	Analyst      string          `json:"analyst"`
	ClientCount  int             `json:"client_count"`
	Installments int             `json:"installments"`
	Outstanding  decimal.Decimal `json:"outstanding"`
}

// PeriodRollup groups overdue installments by calendar month of due date.
type PeriodRollup struct {
	Period        string          `json:"period"` // YYYY-MM
	Installments  int             `json:"installments"`
	Amount        decimal.Decimal `json:"amount"`
	BorrowerCount int             `json:"borrower_count"`
}

// BucketRollup groups overdue installments by days-overdue range.
type BucketRollup struct {
	Bucket       string          `json:"bucket"`
	Installments int             `json:"installments"`
	Amount       decimal.Decimal `json:"amount"`
	Percentage   float64         `json:"percentage"` // share of resumen total, 0 when total is 0
}

// Resumen holds the scalar top-line totals.
type Resumen struct {
	OverdueInstallments int             `json:"overdue_installments"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	BorrowerCount       int             `json:"borrower_count"`
}
