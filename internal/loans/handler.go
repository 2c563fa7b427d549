package loans

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/members"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/observability"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/platform/httpx"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/shared"
)

// Handler manages loan endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	metrics  *observability.Metrics
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, validate: validate, metrics: metrics}
}

// MountRoutes registers loan routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.disburse)
	r.Get("/overdue", h.listOverdue)
	r.Get("/{id}", h.getLoan)
	r.Get("/{id}/schedule", h.getSchedule)
	r.Get("/{id}/repayments", h.listRepayments)
	r.Post("/{id}/repayments", h.applyPayment)
	r.Get("/{id}/verify", h.verifySchedule)
}

type disburseRequest struct {
	MemberID    int64   `json:"member_id" validate:"required,gt=0"`
	Principal   string  `json:"principal" validate:"required"`
	Rate        *string `json:"rate,omitempty"`
	TermMonths  int     `json:"term_months" validate:"gte=0"`
	DisbursedAt string  `json:"disbursed_at,omitempty"`
}

type paymentRequest struct {
	Amount string `json:"amount" validate:"required"`
	PaidAt string `json:"paid_at,omitempty"`
}

func (h *Handler) disburse(w http.ResponseWriter, r *http.Request) {
	var req disburseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}

	principal, err := decimal.NewFromString(req.Principal)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: principal: %v", httpx.ErrValidation, err))
		return
	}
	in := DisburseInput{MemberID: req.MemberID, Principal: principal, TermMonths: req.TermMonths}
	if req.Rate != nil {
		rate, err := decimal.NewFromString(*req.Rate)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: rate: %v", httpx.ErrValidation, err))
			return
		}
		in.Rate = &rate
	}
	if req.DisbursedAt != "" {
		at, err := time.Parse(time.RFC3339, req.DisbursedAt)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: disbursed_at: %v", httpx.ErrValidation, err))
			return
		}
		in.DisbursedAt = at
	}

	loan, entries, err := h.service.Disburse(r.Context(), in)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"loan":     loanPayload(loan),
		"schedule": schedulePayload(entries),
	})
}

func (h *Handler) applyPayment(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: amount: %v", httpx.ErrValidation, err))
		return
	}
	paidAt := time.Now()
	if req.PaidAt != "" {
		if paidAt, err = time.Parse(time.RFC3339, req.PaidAt); err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: paid_at: %v", httpx.ErrValidation, err))
			return
		}
	}

	repayment, err := h.service.ApplyPayment(r.Context(), loanID, amount, paidAt)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RepaymentsApplied.Inc()
	}
	httpx.JSON(w, http.StatusCreated, repaymentPayload(repayment))
}

func (h *Handler) getLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	loan, err := h.service.GetLoan(r.Context(), loanID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loanPayload(loan))
}

func (h *Handler) getSchedule(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	entries, err := h.service.GetSchedule(r.Context(), loanID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, schedulePayload(entries))
}

func (h *Handler) listRepayments(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	repayments, err := h.service.Repayments(r.Context(), loanID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(repayments))
	for _, rep := range repayments {
		out = append(out, repaymentPayload(rep))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listOverdue(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.OverdueEntries(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, schedulePayload(entries))
}

func (h *Handler) verifySchedule(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err := h.service.VerifySchedule(r.Context(), loanID); err != nil {
		if errors.Is(err, ErrScheduleCorrupt) {
			httpx.JSON(w, http.StatusOK, map[string]any{"ok": false, "detail": err.Error()})
			return
		}
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ok": true})
}

// respondErr translates domain errors into the generic HTTP sentinels.
func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, members.ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, ErrInvalidLoanTerms), errors.Is(err, ErrInvalidAmount):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	case errors.Is(err, ErrMemberNotEligible), errors.Is(err, ErrInactiveLoan), errors.Is(err, ErrOverpayment):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnprocessable, err))
	case errors.Is(err, shared.ErrLoanBusy):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrBusy, err))
	case errors.Is(err, shared.ErrYearLocked):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrLocked, err))
	default:
		h.logger.Error("loan request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func loanPayload(loan Loan) map[string]any {
	return map[string]any{
		"id":                  loan.ID,
		"member_id":           loan.MemberID,
		"principal":           loan.Principal.StringFixed(2),
		"periodic_rate":       loan.PeriodicRate.String(),
		"term_months":         loan.TermMonths,
		"periodic_payment":    loan.PeriodicPayment.StringFixed(2),
		"total_interest":      loan.TotalInterest.StringFixed(2),
		"outstanding_balance": loan.OutstandingBalance.StringFixed(2),
		"status":              loan.Status,
		"disbursed_at":        loan.DisbursedAt,
	}
}

func schedulePayload(entries []ScheduleEntry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"id":                e.ID,
			"loan_id":           e.LoanID,
			"payment_number":    e.PaymentNumber,
			"due_date":          e.DueDate.Format("2006-01-02"),
			"principal":         e.Principal.StringFixed(2),
			"interest":          e.Interest.StringFixed(2),
			"remaining_balance": e.RemainingBalance.StringFixed(2),
			"status":            e.Status,
		})
	}
	return out
}

func repaymentPayload(rep Repayment) map[string]any {
	return map[string]any{
		"id":        rep.ID,
		"loan_id":   rep.LoanID,
		"reference": rep.Reference,
		"amount":    rep.Amount.StringFixed(2),
		"principal": rep.Principal.StringFixed(2),
		"interest":  rep.Interest.StringFixed(2),
		"paid_at":   rep.PaidAt,
	}
}
