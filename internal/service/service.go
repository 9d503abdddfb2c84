package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/rlagos/cobranzas-service/internal/cobranzas"
	"github.com/rlagos/cobranzas-service/internal/config"
	"github.com/rlagos/cobranzas-service/internal/models"
)

// Store is the persistence surface the service needs: the installment
// ledger projection, the risk assessment records and the staff users.
type Store interface {
	FetchInstallments(ctx context.Context) ([]models.Installment, error)
	FetchInstallmentsByLoan(ctx context.Context, loanID int64) ([]models.Installment, error)
	FetchInstallmentsByBorrower(ctx context.Context, borrowerIDNumber string) ([]models.Installment, error)
	BorrowerForLoan(ctx context.Context, loanID int64) (string, error)
	FetchAssessments(ctx context.Context) (map[int64]models.RiskAssessment, error)

	cobranzas.LedgerWriter
	cobranzas.RiskStore

	CreateUser(ctx context.Context, user *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Notifier delivers the post-batch overdue summaries. Delivery failures
// never fail the batch.
type Notifier interface {
	SendOverdueSummary(to, analyst string, clientCount, installmentCount int, totalAmount decimal.Decimal, asOf time.Time) error
}

// BookedReference supplies the externally booked payment total used to
// reconcile a loan's ledger.
type BookedReference interface {
	GetBookedTotal(ctx context.Context, loanID int64) (decimal.Decimal, error)
}

// Service handles business logic
type Service struct {
	store    Store
	cache    *cobranzas.ViewCache
	coord    *cobranzas.Coordinator
	notifier Notifier
	bankRef  BookedReference
	log      *logrus.Logger
	config   *config.Config
	now      func() time.Time
}

// NewService initializes a new service. notifier and bankRef may be nil
// when the deployment has no SMTP relay or reference feed configured.
func NewService(store Store, notifier Notifier, bankRef BookedReference, log *logrus.Logger, cfg *config.Config) *Service {
	cache := cobranzas.NewViewCache()
	return &Service{
		store:    store,
		cache:    cache,
		coord:    cobranzas.NewCoordinator(store, store, cache, log),
		notifier: notifier,
		bankRef:  bankRef,
		log:      log,
		config:   cfg,
		now:      time.Now,
	}
}

// cachedView pairs a view's rows with the diagnostics of the pass that
// produced them.
type cachedView struct {
	value   any
	partial *cobranzas.PartialDataError
}

// compute runs one aggregation pass and refreshes all five views for
// the filter signature.
func (s *Service) compute(ctx context.Context, filters cobranzas.Filters) (cobranzas.Result, error) {
	installments, err := s.store.FetchInstallments(ctx)
	if err != nil {
		return cobranzas.Result{}, fmt.Errorf("failed to load ledger: %w", err)
	}
	assessments, err := s.store.FetchAssessments(ctx)
	if err != nil {
		return cobranzas.Result{}, fmt.Errorf("failed to load assessments: %w", err)
	}

	res, err := cobranzas.Aggregate(installments, assessments, s.now(), filters)
	if err != nil {
		return cobranzas.Result{}, err
	}

	sig := filters.Signature()
	s.cache.Put(cobranzas.ViewClientSummary, sig, cachedView{value: res.Clients, partial: res.Partial})
	s.cache.Put(cobranzas.ViewAnalystRollup, sig, cachedView{value: res.Analysts, partial: res.Partial})
	s.cache.Put(cobranzas.ViewPeriodRollup, sig, cachedView{value: res.Periods, partial: res.Partial})
	s.cache.Put(cobranzas.ViewBucketRollup, sig, cachedView{value: res.Buckets, partial: res.Partial})
	s.cache.Put(cobranzas.ViewResumen, sig, cachedView{value: res.Resumen, partial: res.Partial})
	return res, nil
}

// view serves one view from the cache, recomputing on a miss. A stale
// view is never served: invalidation removes the entry, so the read
// after a mutation lands here and recomputes.
func (s *Service) view(ctx context.Context, name cobranzas.ViewName, filters cobranzas.Filters) (cachedView, error) {
	if err := filters.Validate(); err != nil {
		return cachedView{}, err
	}
	if hit, ok := s.cache.Get(name, filters.Signature()); ok {
		return hit.(cachedView), nil
	}

	res, err := s.compute(ctx, filters)
	if err != nil {
		return cachedView{}, err
	}
	switch name {
	case cobranzas.ViewClientSummary:
		return cachedView{value: res.Clients, partial: res.Partial}, nil
	case cobranzas.ViewAnalystRollup:
		return cachedView{value: res.Analysts, partial: res.Partial}, nil
	case cobranzas.ViewPeriodRollup:
		return cachedView{value: res.Periods, partial: res.Partial}, nil
	case cobranzas.ViewBucketRollup:
		return cachedView{value: res.Buckets, partial: res.Partial}, nil
	default:
		return cachedView{value: res.Resumen, partial: res.Partial}, nil
	}
}

// GetClientSummary returns the per-borrower collections view.
func (s *Service) GetClientSummary(ctx context.Context, filters cobranzas.Filters) ([]models.ClientSummary, *cobranzas.PartialDataError, error) {
	v, err := s.view(ctx, cobranzas.ViewClientSummary, filters)
	if err != nil {
		return nil, nil, err
	}
	return v.value.([]models.ClientSummary), v.partial, nil
}

// GetAnalystRollup returns the per-analyst collections view.
func (s *Service) GetAnalystRollup(ctx context.Context, filters cobranzas.Filters) ([]models.AnalystRollup, *cobranzas.PartialDataError, error) {
	v, err := s.view(ctx, cobranzas.ViewAnalystRollup, filters)
	if err != nil {
		return nil, nil, err
	}
	return v.value.([]models.AnalystRollup), v.partial, nil
}

// GetPeriodRollup returns the per-calendar-month view.
func (s *Service) GetPeriodRollup(ctx context.Context, filters cobranzas.Filters) ([]models.PeriodRollup, *cobranzas.PartialDataError, error) {
	v, err := s.view(ctx, cobranzas.ViewPeriodRollup, filters)
	if err != nil {
		return nil, nil, err
	}
	return v.value.([]models.PeriodRollup), v.partial, nil
}

// GetBucketRollup returns the aging-of-receivables view.
func (s *Service) GetBucketRollup(ctx context.Context, filters cobranzas.Filters) ([]models.BucketRollup, *cobranzas.PartialDataError, error) {
	v, err := s.view(ctx, cobranzas.ViewBucketRollup, filters)
	if err != nil {
		return nil, nil, err
	}
	return v.value.([]models.BucketRollup), v.partial, nil
}

// GetResumen returns the scalar totals view.
func (s *Service) GetResumen(ctx context.Context, filters cobranzas.Filters) (models.Resumen, *cobranzas.PartialDataError, error) {
	v, err := s.view(ctx, cobranzas.ViewResumen, filters)
	if err != nil {
		return models.Resumen{}, nil, err
	}
	return v.value.(models.Resumen), v.partial, nil
}

// clientRow recomputes the summary row for one borrower from that
// borrower's installments alone, so a mutation response does not need a
// full ledger pass.
func (s *Service) clientRow(ctx context.Context, loanID int64) (*models.ClientSummary, error) {
	borrower, err := s.store.BorrowerForLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	installments, err := s.store.FetchInstallmentsByBorrower(ctx, borrower)
	if err != nil {
		return nil, err
	}
	assessments, err := s.store.FetchAssessments(ctx)
	if err != nil {
		return nil, err
	}
	res, err := cobranzas.Aggregate(installments, assessments, s.now(), cobranzas.Filters{})
	if err != nil {
		return nil, err
	}
	for i := range res.Clients {
		if res.Clients[i].BorrowerIDNumber == borrower {
			return &res.Clients[i], nil
		}
	}
	// every installment of the borrower is paid or not yet due
	return nil, nil
}

// ReassignResult carries the rows a presentation layer needs to refresh
// after an analyst reassignment.
type ReassignResult struct {
	Assignee models.AssigneeRef     `json:"assignee"`
	Client   *models.ClientSummary  `json:"client,omitempty"`
	Analysts []models.AnalystRollup `json:"analysts"`
}

// ReassignAnalyst moves a loan to a new analyst or system user and
// returns the refreshed client row plus the analyst rollup.
func (s *Service) ReassignAnalyst(ctx context.Context, loanID int64, assignee string) (*ReassignResult, error) {
	ref, err := s.coord.ReassignAnalyst(ctx, loanID, assignee)
	if err != nil {
		return nil, err
	}

	client, err := s.clientRow(ctx, loanID)
	if err != nil {
		return nil, err
	}
	analysts, _, err := s.GetAnalystRollup(ctx, cobranzas.Filters{})
	if err != nil {
		return nil, err
	}
	return &ReassignResult{Assignee: ref, Client: client, Analysts: analysts}, nil
}

// RiskOverrideResult carries a mutation's resolved assessment plus the
// refreshed client row.
type RiskOverrideResult struct {
	Assessment *models.RiskAssessment `json:"assessment"`
	Client     *models.ClientSummary  `json:"client,omitempty"`
}

// SetRiskOverride places a manual risk override on a loan.
func (s *Service) SetRiskOverride(ctx context.Context, loanID int64, tier models.RiskTier, probability float64) (*RiskOverrideResult, error) {
	assessment, err := s.coord.SetRiskOverride(ctx, loanID, tier, probability)
	if err != nil {
		return nil, err
	}
	client, err := s.clientRow(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return &RiskOverrideResult{Assessment: assessment, Client: client}, nil
}

// ClearRiskOverride reverts a loan to its computed risk.
func (s *Service) ClearRiskOverride(ctx context.Context, loanID int64) (*RiskOverrideResult, error) {
	assessment, err := s.coord.ClearRiskOverride(ctx, loanID)
	if err != nil {
		return nil, err
	}
	client, err := s.clientRow(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return &RiskOverrideResult{Assessment: assessment, Client: client}, nil
}

// AdjustBookedAmount redistributes a loan's recorded payment total and
// returns the refreshed client row.
func (s *Service) AdjustBookedAmount(ctx context.Context, loanID int64, newTotal decimal.Decimal) (*models.ClientSummary, error) {
	if err := s.coord.AdjustBookedAmount(ctx, loanID, newTotal); err != nil {
		return nil, err
	}
	return s.clientRow(ctx, loanID)
}

// ReconcileBookedAmount compares the ledger's recorded payments for a
// loan against the bank reference feed and redistributes when the two
// disagree. Returns whether an adjustment was made.
func (s *Service) ReconcileBookedAmount(ctx context.Context, loanID int64) (bool, decimal.Decimal, error) {
	if s.bankRef == nil {
		return false, decimal.Zero, fmt.Errorf("no bank reference feed configured")
	}
	reference, err := s.bankRef.GetBookedTotal(ctx, loanID)
	if err != nil {
		return false, decimal.Zero, fmt.Errorf("failed to fetch bank reference for loan %d: %w", loanID, err)
	}

	installments, err := s.store.FetchInstallmentsByLoan(ctx, loanID)
	if err != nil {
		return false, decimal.Zero, err
	}
	booked := decimal.Zero
	for _, inst := range installments {
		booked = booked.Add(inst.AmountPaid)
	}
	if booked.Equal(reference) {
		return false, reference, nil
	}

	s.log.Infof("Loan %d booked %s but reference reports %s, redistributing",
		loanID, booked.StringFixed(2), reference.StringFixed(2))
	if _, err := s.AdjustBookedAmount(ctx, loanID, reference); err != nil {
		return false, reference, err
	}
	return true, reference, nil
}

// BatchSummary reports one run of the periodic overdue batch.
type BatchSummary struct {
	RunID       uuid.UUID       `json:"run_id"`
	Processed   int             `json:"processed"`
	Skipped     int             `json:"skipped"`
	Overdue     int             `json:"overdue"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Notified    int             `json:"notified"`
}

// ProcessOverdueBatch runs classification and aggregation over the full
// ledger, warms the unfiltered views, and mails each system-user
// assignee their portfolio summary. Invoked periodically by an external
// trigger.
func (s *Service) ProcessOverdueBatch(ctx context.Context) (*BatchSummary, error) {
	installments, err := s.store.FetchInstallments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	res, err := s.compute(ctx, cobranzas.Filters{})
	if err != nil {
		return nil, err
	}

	summary := &BatchSummary{
		RunID:       uuid.New(),
		Processed:   len(installments),
		Overdue:     res.Resumen.OverdueInstallments,
		TotalAmount: res.Resumen.TotalAmount,
	}
	if res.Partial != nil {
		summary.Skipped = len(res.Partial.Skipped)
		summary.Processed -= summary.Skipped
		s.log.Warnf("Batch %s skipped %d malformed ledger rows", summary.RunID, summary.Skipped)
	}

	if s.notifier != nil {
		asOf := s.now()
		for _, rollup := range res.Analysts {
			// only system users carry a mailable address
			ref, ok := models.ParseAssignee(rollup.Analyst)
			if !ok || ref.Kind != models.AssigneeUser {
				continue
			}
			err := s.notifier.SendOverdueSummary(ref.Value, ref.Value,
				rollup.ClientCount, rollup.Installments, rollup.Outstanding, asOf)
			if err != nil {
				s.log.Errorf("Batch %s: notification to %s failed: %v", summary.RunID, ref.Value, err)
				continue
			}
			summary.Notified++
		}
	}

	s.log.Infof("Batch %s processed %d installments (%d overdue, %d skipped, %d notified)",
		summary.RunID, summary.Processed, summary.Overdue, summary.Skipped, summary.Notified)
	return summary, nil
}

// Register creates a new staff user with hashed password
func (s *Service) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.Infof("User registered: %s", user.Email)
	return user, nil
}

// Login authenticates a staff user and returns a JWT token
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   fmt.Sprintf("%d", user.ID),
		ExpiresAt: jwt.NewNumericDate(s.now().Add(24 * time.Hour)),
	})
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Infof("User logged in: %s", user.Email)
	return tokenString, nil
}
