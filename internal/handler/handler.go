package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/rlagos/cobranzas-service/internal/cobranzas"
	"github.com/rlagos/cobranzas-service/internal/models"
	"github.com/rlagos/cobranzas-service/internal/service"
)

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// viewResponse wraps view rows with the diagnostics of the pass that
// produced them, so the dashboard can warn about skipped ledger rows
// without blocking the report.
type viewResponse struct {
	Rows    any                       `json:"rows"`
	Skipped []cobranzas.RowDiagnostic `json:"skipped_rows,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeView(w http.ResponseWriter, rows any, partial *cobranzas.PartialDataError) {
	resp := viewResponse{Rows: rows}
	if partial != nil {
		resp.Skipped = partial.Skipped
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cobranzas.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, cobranzas.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseFilters(r *http.Request) (cobranzas.Filters, error) {
	var f cobranzas.Filters
	q := r.URL.Query()
	for key, dst := range map[string]*int{
		"dias_min":   &f.MinDays,
		"dias_max":   &f.MaxDays,
		"min_cuotas": &f.MinOverdueCount,
	} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return f, errors.New(key + " must be an integer")
		}
		*dst = n
	}
	f.Analyst = q.Get("analista")
	return f, nil
}

func loanID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// GetClientSummary serves the per-borrower view
func (h *Handler) GetClientSummary(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows, partial, err := h.svc.GetClientSummary(r.Context(), filters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeView(w, rows, partial)
}

// GetAnalystRollup serves the per-analyst view
func (h *Handler) GetAnalystRollup(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows, partial, err := h.svc.GetAnalystRollup(r.Context(), filters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeView(w, rows, partial)
}

// GetPeriodRollup serves the per-month view
func (h *Handler) GetPeriodRollup(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows, partial, err := h.svc.GetPeriodRollup(r.Context(), filters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeView(w, rows, partial)
}

// GetBucketRollup serves the aging view
func (h *Handler) GetBucketRollup(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows, partial, err := h.svc.GetBucketRollup(r.Context(), filters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeView(w, rows, partial)
}

// GetResumen serves the scalar totals view
func (h *Handler) GetResumen(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resumen, partial, err := h.svc.GetResumen(r.Context(), filters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeView(w, resumen, partial)
}

// ReassignAnalyst handles analyst reassignment for a loan
func (h *Handler) ReassignAnalyst(w http.ResponseWriter, r *http.Request) {
	id, err := loanID(r)
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}
	var body struct {
		Assignee string `json:"asignado"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	res, err := h.svc.ReassignAnalyst(r.Context(), id, body.Assignee)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SetRiskOverride handles placing a manual risk override
func (h *Handler) SetRiskOverride(w http.ResponseWriter, r *http.Request) {
	id, err := loanID(r)
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}
	var body struct {
		Tier        models.RiskTier `json:"tier"`
		Probability float64         `json:"probability"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	res, err := h.svc.SetRiskOverride(r.Context(), id, body.Tier, body.Probability)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ClearRiskOverride handles reverting a loan to its computed risk
func (h *Handler) ClearRiskOverride(w http.ResponseWriter, r *http.Request) {
	id, err := loanID(r)
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}
	res, err := h.svc.ClearRiskOverride(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AdjustBookedAmount handles redistributing a loan's booked total
func (h *Handler) AdjustBookedAmount(w http.ResponseWriter, r *http.Request) {
	id, err := loanID(r)
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}
	var body struct {
		Total decimal.Decimal `json:"total"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	client, err := h.svc.AdjustBookedAmount(r.Context(), id, body.Total)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"client": client})
}

// ReconcileBookedAmount checks a loan against the bank reference feed
func (h *Handler) ReconcileBookedAmount(w http.ResponseWriter, r *http.Request) {
	id, err := loanID(r)
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}
	adjusted, total, err := h.svc.ReconcileBookedAmount(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"adjusted": adjusted, "reference_total": total})
}

// RunBatch triggers the overdue batch entry point
func (h *Handler) RunBatch(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.ProcessOverdueBatch(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Register handles staff user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	user, err := h.svc.Register(r.Context(), body.Username, body.Email, body.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Login handles staff authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	token, err := h.svc.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
