package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rlagos/cobranzas-service/internal/models"
)

// Repository provides database operations over the collections schema
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const installmentColumns = `
	i.id, i.loan_id, l.borrower_id_number, l.borrower_name,
	i.due_date, i.amount_due, i.amount_paid,
	COALESCE(l.analista, ''), COALESCE(l.usuario_proponente, '')`

func scanInstallments(rows *sql.Rows) ([]models.Installment, error) {
	var out []models.Installment
	for rows.Next() {
		var inst models.Installment
		var due, paid string
		err := rows.Scan(
			&inst.ID, &inst.LoanID, &inst.BorrowerIDNumber, &inst.BorrowerName,
			&inst.DueDate, &due, &paid, &inst.Analyst, &inst.ProposerUser,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment: %w", err)
		}
		if inst.AmountDue, err = decimal.NewFromString(due); err != nil {
			return nil, fmt.Errorf("bad amount_due for installment %d: %w", inst.ID, err)
		}
		if inst.AmountPaid, err = decimal.NewFromString(paid); err != nil {
			return nil, fmt.Errorf("bad amount_paid for installment %d: %w", inst.ID, err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// FetchInstallments returns the full installment projection
func (r *Repository) FetchInstallments(ctx context.Context) ([]models.Installment, error) {
	query := `
		SELECT ` + installmentColumns + `
		FROM cobranzas.installments i
		JOIN cobranzas.loans l ON l.id = i.loan_id
		ORDER BY i.id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch installments: %w", err)
	}
	defer rows.Close()
	return scanInstallments(rows)
}

// FetchInstallmentsByLoan returns the installments of a single loan
func (r *Repository) FetchInstallmentsByLoan(ctx context.Context, loanID int64) ([]models.Installment, error) {
	query := `
		SELECT ` + installmentColumns + `
		FROM cobranzas.installments i
		JOIN cobranzas.loans l ON l.id = i.loan_id
		WHERE i.loan_id = $1
		ORDER BY i.id`
	rows, err := r.db.QueryContext(ctx, query, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch installments for loan %d: %w", loanID, err)
	}
	defer rows.Close()
	return scanInstallments(rows)
}

// FetchInstallmentsByBorrower returns all installments of one borrower
func (r *Repository) FetchInstallmentsByBorrower(ctx context.Context, borrowerIDNumber string) ([]models.Installment, error) {
	query := `
		SELECT ` + installmentColumns + `
		FROM cobranzas.installments i
		JOIN cobranzas.loans l ON l.id = i.loan_id
		WHERE l.borrower_id_number = $1
		ORDER BY i.id`
	rows, err := r.db.QueryContext(ctx, query, borrowerIDNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch installments for borrower %s: %w", borrowerIDNumber, err)
	}
	defer rows.Close()
	return scanInstallments(rows)
}

// BorrowerForLoan resolves the borrower identity key of a loan
func (r *Repository) BorrowerForLoan(ctx context.Context, loanID int64) (string, error) {
	var borrower string
	query := `SELECT borrower_id_number FROM cobranzas.loans WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, loanID).Scan(&borrower)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("loan %d not found", loanID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve borrower for loan %d: %w", loanID, err)
	}
	return borrower, nil
}

// UpdateAssignee writes the assignee to the column matching its kind and
// clears the other, keeping the two identifier spaces mutually exclusive
func (r *Repository) UpdateAssignee(ctx context.Context, loanID int64, ref models.AssigneeRef) error {
	var query string
	if ref.Kind == models.AssigneeUser {
		query = `
			UPDATE cobranzas.loans
			SET usuario_proponente = $1, analista = NULL, updated_at = CURRENT_TIMESTAMP
			WHERE id = $2`
	} else {
		query = `
			UPDATE cobranzas.loans
			SET analista = $1, usuario_proponente = NULL, updated_at = CURRENT_TIMESTAMP
			WHERE id = $2`
	}
	result, err := r.db.ExecContext(ctx, query, ref.Value, loanID)
	if err != nil {
		return fmt.Errorf("failed to update assignee for loan %d: %w", loanID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check assignee update for loan %d: %w", loanID, err)
	}
	if affected == 0 {
		return fmt.Errorf("loan %d not found", loanID)
	}
	return nil
}

// RedistributeBooked rewrites a loan's recorded payments so they total
// newTotal, applying the money to installments oldest due date first
func (r *Repository) RedistributeBooked(ctx context.Context, loanID int64, newTotal decimal.Decimal) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin redistribution: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, amount_due
		FROM cobranzas.installments
		WHERE loan_id = $1
		ORDER BY due_date, id
		FOR UPDATE`, loanID)
	if err != nil {
		return fmt.Errorf("failed to lock installments for loan %d: %w", loanID, err)
	}

	type slot struct {
		id  int64
		due decimal.Decimal
	}
	var slots []slot
	for rows.Next() {
		var s slot
		var due string
		if err := rows.Scan(&s.id, &due); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan installment for loan %d: %w", loanID, err)
		}
		if s.due, err = decimal.NewFromString(due); err != nil {
			rows.Close()
			return fmt.Errorf("bad amount_due for installment %d: %w", s.id, err)
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to read installments for loan %d: %w", loanID, err)
	}
	rows.Close()

	if len(slots) == 0 {
		return fmt.Errorf("loan %d has no installments", loanID)
	}

	remaining := newTotal
	for _, s := range slots {
		applied := decimal.Min(remaining, s.due)
		if _, err := tx.ExecContext(ctx, `
			UPDATE cobranzas.installments
			SET amount_paid = $1, updated_at = CURRENT_TIMESTAMP
			WHERE id = $2`, applied.StringFixed(2), s.id); err != nil {
			return fmt.Errorf("failed to update installment %d: %w", s.id, err)
		}
		remaining = remaining.Sub(applied)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit redistribution for loan %d: %w", loanID, err)
	}
	return nil
}

// GetAssessment returns a loan's risk assessment, or nil when the
// scoring job has never produced one
func (r *Repository) GetAssessment(ctx context.Context, loanID int64) (*models.RiskAssessment, error) {
	a := &models.RiskAssessment{}
	var manualTier sql.NullString
	var manualProb sql.NullFloat64
	query := `
		SELECT loan_id, computed_tier, computed_probability, manual_tier, manual_probability
		FROM cobranzas.risk_assessments
		WHERE loan_id = $1`
	err := r.db.QueryRowContext(ctx, query, loanID).
		Scan(&a.LoanID, &a.ComputedTier, &a.ComputedProbability, &manualTier, &manualProb)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assessment for loan %d: %w", loanID, err)
	}
	if manualTier.Valid && manualProb.Valid {
		tier := models.RiskTier(manualTier.String)
		prob := manualProb.Float64
		a.ManualTier = &tier
		a.ManualProbability = &prob
	}
	return a, nil
}

// FetchAssessments returns every risk assessment keyed by loan id
func (r *Repository) FetchAssessments(ctx context.Context) (map[int64]models.RiskAssessment, error) {
	query := `
		SELECT loan_id, computed_tier, computed_probability, manual_tier, manual_probability
		FROM cobranzas.risk_assessments`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assessments: %w", err)
	}
	defer rows.Close()

	out := map[int64]models.RiskAssessment{}
	for rows.Next() {
		var a models.RiskAssessment
		var manualTier sql.NullString
		var manualProb sql.NullFloat64
		if err := rows.Scan(&a.LoanID, &a.ComputedTier, &a.ComputedProbability, &manualTier, &manualProb); err != nil {
			return nil, fmt.Errorf("failed to scan assessment: %w", err)
		}
		if manualTier.Valid && manualProb.Valid {
			tier := models.RiskTier(manualTier.String)
			prob := manualProb.Float64
			a.ManualTier = &tier
			a.ManualProbability = &prob
		}
		out[a.LoanID] = a
	}
	return out, rows.Err()
}

// SaveAssessment persists a loan's manual override fields
func (r *Repository) SaveAssessment(ctx context.Context, a models.RiskAssessment) error {
	var manualTier sql.NullString
	var manualProb sql.NullFloat64
	if a.IsManual() {
		manualTier = sql.NullString{String: string(*a.ManualTier), Valid: true}
		manualProb = sql.NullFloat64{Float64: *a.ManualProbability, Valid: true}
	}
	query := `
		UPDATE cobranzas.risk_assessments
		SET manual_tier = $1, manual_probability = $2, updated_at = CURRENT_TIMESTAMP
		WHERE loan_id = $3`
	result, err := r.db.ExecContext(ctx, query, manualTier, manualProb, a.LoanID)
	if err != nil {
		return fmt.Errorf("failed to save assessment for loan %d: %w", a.LoanID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check assessment update for loan %d: %w", a.LoanID, err)
	}
	if affected == 0 {
		return fmt.Errorf("assessment for loan %d not found", a.LoanID)
	}
	return nil
}

// CreateUser creates a new staff user in the database
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO cobranzas.users (username, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, user.Username, user.Email, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindUserByEmail retrieves a staff user by email
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, username, email, password_hash, created_at, updated_at
		FROM cobranzas.users
		WHERE email = $1`
	err := r.db.QueryRowContext(ctx, query, email).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}
