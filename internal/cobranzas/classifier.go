package cobranzas

import (
	"time"

	"github.com/rlagos/cobranzas-service/internal/models"
)

// OverdueStatus is the derived payment state of a single installment at
// a point in time. It is computed at read time and never persisted.
type OverdueStatus struct {
	DaysOverdue int
	Unpaid      bool
}

// InCollections reports whether the installment counts toward
// collections totals: unpaid and at least one day past due.
func (s OverdueStatus) InCollections() bool {
	return s.Unpaid && s.DaysOverdue > 0
}

// Classify computes the overdue status of an installment as of the given
// date. It is pure and total: a zero due date yields the defensive
// default (not overdue, not unpaid) so a bad ledger row under-counts
// instead of breaking a report. An installment is paid once amount_paid
// reaches amount_due; overpaid rows classify as paid.
func Classify(inst models.Installment, asOf time.Time) OverdueStatus {
	if inst.DueDate.IsZero() {
		return OverdueStatus{}
	}
	unpaid := inst.AmountPaid.LessThan(inst.AmountDue)
	days := daysBetween(inst.DueDate, asOf)
	if days < 0 {
		days = 0
	}
	return OverdueStatus{DaysOverdue: days, Unpaid: unpaid}
}

// daysBetween counts whole calendar days from a to b, ignoring the time
// of day on either side.
func daysBetween(a, b time.Time) int {
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// Bucket is one fixed days-overdue range of the aging report. Max < 0
// marks the open-ended last bucket.
type Bucket struct {
	Label string
	Min   int
	Max   int
}

// Buckets are the aging ranges, boundaries inclusive.
var Buckets = []Bucket{
	{Label: "1-7", Min: 1, Max: 7},
	{Label: "8-30", Min: 8, Max: 30},
	{Label: "31-60", Min: 31, Max: 60},
	{Label: "61+", Min: 61, Max: -1},
}

// BucketFor returns the aging bucket label for a days-overdue value, or
// "" when the installment is not overdue at all.
func BucketFor(days int) string {
	for _, b := range Buckets {
		if days >= b.Min && (b.Max < 0 || days <= b.Max) {
			return b.Label
		}
	}
	return ""
}
