package cobranzas

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rlagos/cobranzas-service/internal/models"
)

// LedgerWriter is the write path into the external installment ledger.
// Mutations are loan-scoped; write conflicts on the same loan are
// resolved by the ledger itself (last write wins).
type LedgerWriter interface {
	UpdateAssignee(ctx context.Context, loanID int64, ref models.AssigneeRef) error
	RedistributeBooked(ctx context.Context, loanID int64, newTotal decimal.Decimal) error
}

// RiskStore reads and writes per-loan risk assessments. GetAssessment
// returns (nil, nil) when the loan has no assessment record.
type RiskStore interface {
	GetAssessment(ctx context.Context, loanID int64) (*models.RiskAssessment, error)
	SaveAssessment(ctx context.Context, a models.RiskAssessment) error
}

// Coordinator applies point edits and drops exactly the cached views a
// given edit can affect. Invalidation happens after the storage write
// succeeds and before the call returns, so a read issued after a
// successful mutation never sees a stale view.
type Coordinator struct {
	ledger LedgerWriter
	risks  RiskStore
	cache  *ViewCache
	log    *logrus.Logger
}

// NewCoordinator initializes a mutation coordinator.
func NewCoordinator(ledger LedgerWriter, risks RiskStore, cache *ViewCache, log *logrus.Logger) *Coordinator {
	return &Coordinator{ledger: ledger, risks: risks, cache: cache, log: log}
}

// ReassignAnalyst moves a loan to a new assignee. An identifier with an
// "@" targets the system-user column, anything else the analyst name
// column; the ledger clears whichever of the two was set before.
// Period and bucket rollups do not group by analyst, so their cached
// entries stay put.
func (c *Coordinator) ReassignAnalyst(ctx context.Context, loanID int64, assignee string) (models.AssigneeRef, error) {
	ref, ok := models.ParseAssignee(assignee)
	if !ok {
		return models.AssigneeRef{}, validationf("assignee must not be blank")
	}

	if err := c.ledger.UpdateAssignee(ctx, loanID, ref); err != nil {
		return models.AssigneeRef{}, fmt.Errorf("failed to reassign loan %d: %w", loanID, err)
	}

	c.cache.Invalidate(ViewClientSummary, ViewAnalystRollup, ViewResumen)
	c.log.Infof("Loan %d reassigned to %q", loanID, ref.Value)
	return ref, nil
}

// SetRiskOverride places a manual tier+probability on top of a loan's
// computed score. The write is idempotent. A loan without an assessment
// record (the scoring job never saw it) yields NotFound. Risk shows up
// only in the per-client view, so only that view is dropped.
func (c *Coordinator) SetRiskOverride(ctx context.Context, loanID int64, tier models.RiskTier, probability float64) (*models.RiskAssessment, error) {
	if err := ValidateOverride(tier, probability); err != nil {
		return nil, err
	}

	current, err := c.risks.GetAssessment(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assessment for loan %d: %w", loanID, err)
	}
	if current == nil {
		return nil, notFoundf("loan %d has no risk assessment", loanID)
	}

	updated := ApplyOverride(*current, tier, probability)
	if err := c.risks.SaveAssessment(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to save override for loan %d: %w", loanID, err)
	}

	c.cache.Invalidate(ViewClientSummary)
	c.log.Infof("Risk override set on loan %d: %s/%.2f", loanID, tier, probability)
	return &updated, nil
}

// ClearRiskOverride removes the manual fields, reverting to the
// computed score. NotFound when the loan never had an assessment; the
// caller is expected to present that as "no risk data", not a failure.
func (c *Coordinator) ClearRiskOverride(ctx context.Context, loanID int64) (*models.RiskAssessment, error) {
	current, err := c.risks.GetAssessment(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assessment for loan %d: %w", loanID, err)
	}
	if current == nil {
		return nil, notFoundf("loan %d has no risk assessment", loanID)
	}

	updated := ClearOverride(*current)
	if err := c.risks.SaveAssessment(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to clear override for loan %d: %w", loanID, err)
	}

	c.cache.Invalidate(ViewClientSummary)
	c.log.Infof("Risk override cleared on loan %d", loanID)
	return &updated, nil
}

// AdjustBookedAmount redistributes a loan's recorded payment total
// across its installments when the ledger and an external reference
// disagree. Amounts feed every view, so all five are dropped.
func (c *Coordinator) AdjustBookedAmount(ctx context.Context, loanID int64, newTotal decimal.Decimal) error {
	if newTotal.IsNegative() {
		return validationf("booked total must not be negative")
	}

	if err := c.ledger.RedistributeBooked(ctx, loanID, newTotal); err != nil {
		return fmt.Errorf("failed to adjust booked amount for loan %d: %w", loanID, err)
	}

	c.cache.Invalidate(AllViews...)
	c.log.Infof("Booked amount for loan %d adjusted to %s", loanID, newTotal.StringFixed(2))
	return nil
}
