package cobranzas

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/rlagos/cobranzas-service/internal/models"
)

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		due         time.Time
		amountDue   string
		amountPaid  string
		asOf        time.Time
		wantDays    int
		wantUnpaid  bool
		wantCounted bool
	}{
		{
			name:       "unpaid and past due",
			due:        date("2025-01-01"),
			amountDue:  "100",
			amountPaid: "0",
			asOf:       date("2025-01-20"),
			wantDays:   19, wantUnpaid: true, wantCounted: true,
		},
		{
			name:       "due in the future never counts",
			due:        date("2025-03-01"),
			amountDue:  "100",
			amountPaid: "0",
			asOf:       date("2025-01-20"),
			wantDays:   0, wantUnpaid: true, wantCounted: false,
		},
		{
			name:       "paid in full",
			due:        date("2025-01-01"),
			amountDue:  "100",
			amountPaid: "100",
			asOf:       date("2025-01-20"),
			wantDays:   19, wantUnpaid: false, wantCounted: false,
		},
		{
			name:       "partial payment stays unpaid",
			due:        date("2025-01-01"),
			amountDue:  "100",
			amountPaid: "40",
			asOf:       date("2025-01-20"),
			wantDays:   19, wantUnpaid: true, wantCounted: true,
		},
		{
			name:       "overpaid ledger adjustment classifies as paid",
			due:        date("2025-01-01"),
			amountDue:  "100",
			amountPaid: "130",
			asOf:       date("2025-01-20"),
			wantDays:   19, wantUnpaid: false, wantCounted: false,
		},
		{
			name:       "due today is not yet overdue",
			due:        date("2025-01-20"),
			amountDue:  "100",
			amountPaid: "0",
			asOf:       date("2025-01-20"),
			wantDays:   0, wantUnpaid: true, wantCounted: false,
		},
		{
			name:       "missing due date yields the defensive default",
			due:        time.Time{},
			amountDue:  "100",
			amountPaid: "0",
			asOf:       date("2025-01-20"),
			wantDays:   0, wantUnpaid: false, wantCounted: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := models.Installment{
				LoanID:     1,
				DueDate:    tt.due,
				AmountDue:  dec(tt.amountDue),
				AmountPaid: dec(tt.amountPaid),
			}
			got := Classify(inst, tt.asOf)
			assert.Equal(t, tt.wantDays, got.DaysOverdue)
			assert.Equal(t, tt.wantUnpaid, got.Unpaid)
			assert.Equal(t, tt.wantCounted, got.InCollections())
		})
	}
}

func TestClassifyIgnoresTimeOfDay(t *testing.T) {
	inst := models.Installment{
		DueDate:    time.Date(2025, 1, 1, 23, 30, 0, 0, time.UTC),
		AmountDue:  dec("50"),
		AmountPaid: dec("0"),
	}
	asOf := time.Date(2025, 1, 2, 0, 5, 0, 0, time.UTC)
	assert.Equal(t, 1, Classify(inst, asOf).DaysOverdue)
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		days int
		want string
	}{
		{0, ""},
		{1, "1-7"},
		{7, "1-7"},
		{8, "8-30"},
		{19, "8-30"},
		{30, "8-30"},
		{31, "31-60"},
		{60, "31-60"},
		{61, "61+"},
		{400, "61+"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BucketFor(tt.days), "days=%d", tt.days)
	}
}
