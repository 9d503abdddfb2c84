package cobranzas

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rlagos/cobranzas-service/internal/models"
)

// Result bundles the five derived views produced by one aggregation
// pass, plus the diagnostics for any skipped ledger rows. All views are
// recomputable from the ledger at any time; none holds state of its own.
type Result struct {
	Clients  []models.ClientSummary `json:"clients"`
	Analysts []models.AnalystRollup `json:"analysts"`
	Periods  []models.PeriodRollup  `json:"periods"`
	Buckets  []models.BucketRollup  `json:"buckets"`
	Resumen  models.Resumen         `json:"resumen"`
	// Partial is non-nil when malformed rows were excluded. It never
	// aborts the aggregation.
	Partial *PartialDataError `json:"partial,omitempty"`
}

// Aggregate builds all five views in a single pass over the ledger
// snapshot. Paid and not-yet-due installments are dropped from the
// totals; malformed rows (zero due date, negative amounts) are skipped
// into the diagnostics list. Rows come out in first-seen ledger order:
// the engine guarantees stable grouping keys but imposes no sort.
func Aggregate(installments []models.Installment, assessments map[int64]models.RiskAssessment, asOf time.Time, filters Filters) (Result, error) {
	if err := filters.Validate(); err != nil {
		return Result{}, err
	}

	var (
		clients  []models.ClientSummary
		analysts []models.AnalystRollup
		periods  []models.PeriodRollup

		clientIdx  = map[string]int{}
		analystIdx = map[string]int{}
		periodIdx  = map[string]int{}

		analystClients = map[string]map[string]bool{}
		periodClients  = map[string]map[string]bool{}
		allClients     = map[string]bool{}

		// per-borrower cache of resolved loan risks, so a borrower with
		// several overdue installments on one loan resolves it once
		riskByLoan = map[string]map[int64]models.EffectiveRisk{}

		bucketCount  = map[string]int{}
		bucketAmount = map[string]decimal.Decimal{}

		resumen models.Resumen
		total   decimal.Decimal
		skipped []RowDiagnostic
	)

	for _, inst := range installments {
		if inst.DueDate.IsZero() {
			skipped = append(skipped, RowDiagnostic{InstallmentID: inst.ID, LoanID: inst.LoanID, Reason: "missing due date"})
			continue
		}
		if inst.AmountDue.IsNegative() || inst.AmountPaid.IsNegative() {
			skipped = append(skipped, RowDiagnostic{InstallmentID: inst.ID, LoanID: inst.LoanID, Reason: "negative amount"})
			continue
		}

		status := Classify(inst, asOf)
		if !status.InCollections() {
			continue
		}
		if !filters.matchDays(status.DaysOverdue) {
			continue
		}

		assignee := inst.Assignee()
		if assignee == "" {
			assignee = models.UnassignedKey
		}
		if !filters.matchAnalyst(assignee) {
			continue
		}

		outstanding := inst.Outstanding()
		borrower := inst.BorrowerIDNumber

		// resumen
		resumen.OverdueInstallments++
		total = total.Add(outstanding)
		allClients[borrower] = true

		// per-client
		ci, seen := clientIdx[borrower]
		if !seen {
			ci = len(clients)
			clientIdx[borrower] = ci
			clients = append(clients, models.ClientSummary{
				BorrowerIDNumber: borrower,
				BorrowerName:     inst.BorrowerName,
				Assignee:         assignee,
				Outstanding:      decimal.Zero,
				FirstOverdue:     inst.DueDate,
			})
			riskByLoan[borrower] = map[int64]models.EffectiveRisk{}
		}
		row := &clients[ci]
		row.OverdueCount++
		row.Outstanding = row.Outstanding.Add(outstanding)
		if inst.DueDate.Before(row.FirstOverdue) {
			row.FirstOverdue = inst.DueDate
		}
		if a, ok := assessments[inst.LoanID]; ok {
			eff, cached := riskByLoan[borrower][inst.LoanID]
			if !cached {
				eff = EffectiveRisk(a)
				riskByLoan[borrower][inst.LoanID] = eff
			}
			// worst-case risk across the borrower's loans drives the summary
			if row.Risk == nil || eff.Probability > row.Risk.Probability {
				r := eff
				row.Risk = &r
			}
		}

		// per-analyst
		ai, seen := analystIdx[assignee]
		if !seen {
			ai = len(analysts)
			analystIdx[assignee] = ai
			analysts = append(analysts, models.AnalystRollup{Analyst: assignee, Outstanding: decimal.Zero})
			analystClients[assignee] = map[string]bool{}
		}
		analysts[ai].Installments++
		analysts[ai].Outstanding = analysts[ai].Outstanding.Add(outstanding)
		analystClients[assignee][borrower] = true

		// per-month
		period := inst.DueDate.Format("2006-01")
		pi, seen := periodIdx[period]
		if !seen {
			pi = len(periods)
			periodIdx[period] = pi
			periods = append(periods, models.PeriodRollup{Period: period, Amount: decimal.Zero})
			periodClients[period] = map[string]bool{}
		}
		periods[pi].Installments++
		periods[pi].Amount = periods[pi].Amount.Add(outstanding)
		periodClients[period][borrower] = true

		// per-bucket
		bucket := BucketFor(status.DaysOverdue)
		bucketCount[bucket]++
		if prev, ok := bucketAmount[bucket]; ok {
			bucketAmount[bucket] = prev.Add(outstanding)
		} else {
			bucketAmount[bucket] = outstanding
		}
	}

	for i := range analysts {
		analysts[i].ClientCount = len(analystClients[analysts[i].Analyst])
	}
	for i := range periods {
		periods[i].BorrowerCount = len(periodClients[periods[i].Period])
	}

	if filters.MinOverdueCount > 0 {
		kept := clients[:0]
		for _, c := range clients {
			if c.OverdueCount >= filters.MinOverdueCount {
				kept = append(kept, c)
			}
		}
		clients = kept
	}

	buckets := make([]models.BucketRollup, 0, len(Buckets))
	for _, b := range Buckets {
		amount, ok := bucketAmount[b.Label]
		if !ok {
			amount = decimal.Zero
		}
		pct := 0.0
		if total.IsPositive() {
			pct, _ = amount.Div(total).Mul(decimal.NewFromInt(100)).Float64()
		}
		buckets = append(buckets, models.BucketRollup{
			Bucket:       b.Label,
			Installments: bucketCount[b.Label],
			Amount:       amount,
			Percentage:   pct,
		})
	}

	resumen.TotalAmount = total
	resumen.BorrowerCount = len(allClients)

	res := Result{
		Clients:  clients,
		Analysts: analysts,
		Periods:  periods,
		Buckets:  buckets,
		Resumen:  resumen,
	}
	if len(skipped) > 0 {
		res.Partial = &PartialDataError{Skipped: skipped}
	}
	return res, nil
}
