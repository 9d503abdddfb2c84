package service

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlagos/cobranzas-service/internal/cobranzas"
	"github.com/rlagos/cobranzas-service/internal/config"
	"github.com/rlagos/cobranzas-service/internal/models"
)

type memStore struct {
	installments []models.Installment
	assessments  map[int64]models.RiskAssessment
	users        map[string]models.User
	fetchCalls   int
	nextUserID   int64
}

func newMemStore(installments []models.Installment) *memStore {
	return &memStore{
		installments: installments,
		assessments:  map[int64]models.RiskAssessment{},
		users:        map[string]models.User{},
	}
}

func (m *memStore) FetchInstallments(_ context.Context) ([]models.Installment, error) {
	m.fetchCalls++
	out := make([]models.Installment, len(m.installments))
	copy(out, m.installments)
	return out, nil
}

func (m *memStore) FetchInstallmentsByLoan(_ context.Context, loanID int64) ([]models.Installment, error) {
	var out []models.Installment
	for _, inst := range m.installments {
		if inst.LoanID == loanID {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (m *memStore) FetchInstallmentsByBorrower(_ context.Context, borrower string) ([]models.Installment, error) {
	var out []models.Installment
	for _, inst := range m.installments {
		if inst.BorrowerIDNumber == borrower {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (m *memStore) BorrowerForLoan(_ context.Context, loanID int64) (string, error) {
	for _, inst := range m.installments {
		if inst.LoanID == loanID {
			return inst.BorrowerIDNumber, nil
		}
	}
	return "", fmt.Errorf("loan %d not found", loanID)
}

func (m *memStore) FetchAssessments(_ context.Context) (map[int64]models.RiskAssessment, error) {
	out := map[int64]models.RiskAssessment{}
	for k, v := range m.assessments {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) UpdateAssignee(_ context.Context, loanID int64, ref models.AssigneeRef) error {
	for i := range m.installments {
		if m.installments[i].LoanID != loanID {
			continue
		}
		if ref.Kind == models.AssigneeUser {
			m.installments[i].ProposerUser = ref.Value
			m.installments[i].Analyst = ""
		} else {
			m.installments[i].Analyst = ref.Value
			m.installments[i].ProposerUser = ""
		}
	}
	return nil
}

func (m *memStore) RedistributeBooked(_ context.Context, loanID int64, newTotal decimal.Decimal) error {
	var idx []int
	for i := range m.installments {
		if m.installments[i].LoanID == loanID {
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(a, b int) bool {
		return m.installments[idx[a]].DueDate.Before(m.installments[idx[b]].DueDate)
	})
	remaining := newTotal
	for _, i := range idx {
		applied := decimal.Min(remaining, m.installments[i].AmountDue)
		m.installments[i].AmountPaid = applied
		remaining = remaining.Sub(applied)
	}
	return nil
}

func (m *memStore) GetAssessment(_ context.Context, loanID int64) (*models.RiskAssessment, error) {
	a, ok := m.assessments[loanID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *memStore) SaveAssessment(_ context.Context, a models.RiskAssessment) error {
	m.assessments[a.LoanID] = a
	return nil
}

func (m *memStore) CreateUser(_ context.Context, user *models.User) error {
	m.nextUserID++
	user.ID = m.nextUserID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.Email] = *user
	return nil
}

func (m *memStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := m.users[email]
	if !ok {
		return nil, fmt.Errorf("user not found")
	}
	return &u, nil
}

type memNotifier struct {
	sent []string
	fail bool
}

func (n *memNotifier) SendOverdueSummary(to, _ string, _, _ int, _ decimal.Decimal, _ time.Time) error {
	if n.fail {
		return fmt.Errorf("smtp down")
	}
	n.sent = append(n.sent, to)
	return nil
}

type memBankRef struct {
	totals map[int64]decimal.Decimal
}

func (b *memBankRef) GetBookedTotal(_ context.Context, loanID int64) (decimal.Decimal, error) {
	t, ok := b.totals[loanID]
	if !ok {
		return decimal.Zero, fmt.Errorf("loan %d unknown to reference feed", loanID)
	}
	return t, nil
}

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testInstallments() []models.Installment {
	return []models.Installment{
		{ID: 1, LoanID: 101, BorrowerIDNumber: "B1", BorrowerName: "Perez Juan",
			DueDate: date("2025-01-01"), AmountDue: dec("100"), AmountPaid: dec("0"),
			ProposerUser: "ana@x.com"},
		{ID: 2, LoanID: 101, BorrowerIDNumber: "B1", BorrowerName: "Perez Juan",
			DueDate: date("2025-02-01"), AmountDue: dec("100"), AmountPaid: dec("0"),
			ProposerUser: "ana@x.com"},
		{ID: 3, LoanID: 102, BorrowerIDNumber: "B2", BorrowerName: "Gomez Luisa",
			DueDate: date("2024-12-10"), AmountDue: dec("250"), AmountPaid: dec("50"),
			Analyst: "Pedro"},
	}
}

func newTestService(t *testing.T, store *memStore, notifier Notifier, bankRef BookedReference) *Service {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	svc := NewService(store, notifier, bankRef, log, &config.Config{JWTSecret: "test-secret"})
	svc.now = func() time.Time { return date("2025-01-20") }
	return svc
}

func TestViewReadThroughCache(t *testing.T) {
	store := newMemStore(testInstallments())
	svc := newTestService(t, store, nil, nil)
	ctx := context.Background()

	resumen, partial, err := svc.GetResumen(ctx, cobranzas.Filters{})
	require.NoError(t, err)
	assert.Nil(t, partial)
	assert.Equal(t, 2, resumen.OverdueInstallments) // installment 2 is not yet due
	assert.True(t, resumen.TotalAmount.Equal(dec("300")))
	assert.Equal(t, 1, store.fetchCalls)

	// all five views were warmed by the single pass
	_, _, err = svc.GetClientSummary(ctx, cobranzas.Filters{})
	require.NoError(t, err)
	_, _, err = svc.GetBucketRollup(ctx, cobranzas.Filters{})
	require.NoError(t, err)
	assert.Equal(t, 1, store.fetchCalls, "warm views must not re-read the ledger")

	// a different filter signature is a different cache entry
	_, _, err = svc.GetResumen(ctx, cobranzas.Filters{MinDays: 30})
	require.NoError(t, err)
	assert.Equal(t, 2, store.fetchCalls)
}

func TestReassignAnalystRefreshesClientView(t *testing.T) {
	store := newMemStore(testInstallments())
	svc := newTestService(t, store, nil, nil)
	ctx := context.Background()

	periodsBefore, _, err := svc.GetPeriodRollup(ctx, cobranzas.Filters{})
	require.NoError(t, err)

	res, err := svc.ReassignAnalyst(ctx, 101, "nuevo@x.com")
	require.NoError(t, err)
	require.NotNil(t, res.Client)
	assert.Equal(t, "nuevo@x.com", res.Client.Assignee, "mutation response carries the new analyst")

	clients, _, err := svc.GetClientSummary(ctx, cobranzas.Filters{})
	require.NoError(t, err)
	for _, c := range clients {
		if c.BorrowerIDNumber == "B1" {
			assert.Equal(t, "nuevo@x.com", c.Assignee, "read after write sees the new analyst")
		}
	}

	// period rollup does not group by analyst: the cached entry survived
	// the mutation untouched
	periodsAfter, _, err := svc.GetPeriodRollup(ctx, cobranzas.Filters{})
	require.NoError(t, err)
	assert.Equal(t, periodsBefore, periodsAfter)
}

func TestReassignAnalystBlankFails(t *testing.T) {
	store := newMemStore(testInstallments())
	svc := newTestService(t, store, nil, nil)

	_, err := svc.ReassignAnalyst(context.Background(), 101, "  ")
	assert.ErrorIs(t, err, cobranzas.ErrValidation)
}

func TestRiskOverrideLifecycle(t *testing.T) {
	store := newMemStore(testInstallments())
	store.assessments[101] = models.RiskAssessment{
		LoanID: 101, ComputedTier: models.TierLow, ComputedProbability: 0.2,
	}
	svc := newTestService(t, store, nil, nil)
	ctx := context.Background()

	res, err := svc.SetRiskOverride(ctx, 101, models.TierHigh, 0.8)
	require.NoError(t, err)
	require.NotNil(t, res.Client)
	require.NotNil(t, res.Client.Risk)
	assert.Equal(t, models.TierHigh, res.Client.Risk.Tier)
	assert.True(t, res.Client.Risk.IsManual)

	cleared, err := svc.ClearRiskOverride(ctx, 101)
	require.NoError(t, err)
	require.NotNil(t, cleared.Client.Risk)
	assert.Equal(t, models.TierLow, cleared.Client.Risk.Tier)
	assert.False(t, cleared.Client.Risk.IsManual)

	_, err = svc.ClearRiskOverride(ctx, 999)
	assert.ErrorIs(t, err, cobranzas.ErrNotFound)
}

func TestAdjustBookedAmountWaterfall(t *testing.T) {
	store := newMemStore(testInstallments())
	svc := newTestService(t, store, nil, nil)
	ctx := context.Background()

	// pay off the first installment of loan 101 and half of the second
	client, err := svc.AdjustBookedAmount(ctx, 101, dec("150"))
	require.NoError(t, err)
	assert.Nil(t, client, "borrower has nothing overdue left after the adjustment")

	assert.True(t, store.installments[0].AmountPaid.Equal(dec("100")))
	assert.True(t, store.installments[1].AmountPaid.Equal(dec("50")))

	// partial coverage leaves an overdue remainder on the first installment
	client, err = svc.AdjustBookedAmount(ctx, 101, dec("60"))
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, 1, client.OverdueCount)
	assert.True(t, client.Outstanding.Equal(dec("40")))
}

func TestReconcileBookedAmount(t *testing.T) {
	store := newMemStore(testInstallments())
	bankRef := &memBankRef{totals: map[int64]decimal.Decimal{
		101: dec("100"), // ledger has 0 booked for loan 101
		102: dec("50"),  // matches the ledger
	}}
	svc := newTestService(t, store, nil, bankRef)
	ctx := context.Background()

	adjusted, total, err := svc.ReconcileBookedAmount(ctx, 101)
	require.NoError(t, err)
	assert.True(t, adjusted)
	assert.True(t, total.Equal(dec("100")))
	assert.True(t, store.installments[0].AmountPaid.Equal(dec("100")))

	adjusted, _, err = svc.ReconcileBookedAmount(ctx, 102)
	require.NoError(t, err)
	assert.False(t, adjusted, "matching totals need no redistribution")
}

func TestProcessOverdueBatch(t *testing.T) {
	installments := testInstallments()
	installments = append(installments, models.Installment{
		ID: 9, LoanID: 103, BorrowerIDNumber: "B3", BorrowerName: "Rota",
		AmountDue: dec("10"), AmountPaid: dec("0"), // missing due date
	})
	store := newMemStore(installments)
	notifier := &memNotifier{}
	svc := newTestService(t, store, notifier, nil)

	summary, err := svc.ProcessOverdueBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 2, summary.Overdue)
	assert.True(t, summary.TotalAmount.Equal(dec("300")))
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", summary.RunID.String())

	// only the system-user assignee gets mail; "Pedro" has no address
	assert.Equal(t, 1, summary.Notified)
	assert.Equal(t, []string{"ana@x.com"}, notifier.sent)
}

func TestProcessOverdueBatchNotificationFailureIsNonFatal(t *testing.T) {
	store := newMemStore(testInstallments())
	notifier := &memNotifier{fail: true}
	svc := newTestService(t, store, notifier, nil)

	summary, err := svc.ProcessOverdueBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Notified)
}

func TestRegisterAndLogin(t *testing.T) {
	store := newMemStore(nil)
	svc := newTestService(t, store, nil, nil)
	ctx := context.Background()

	user, err := svc.Register(ctx, "ana", "ana@x.com", "hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, user.PasswordHash)
	assert.NotEqual(t, "hunter2", user.PasswordHash)

	token, err := svc.Login(ctx, "ana@x.com", "hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = svc.Login(ctx, "ana@x.com", "wrong")
	assert.Error(t, err)
}
