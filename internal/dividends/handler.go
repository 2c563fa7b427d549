package dividends

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/observability"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/platform/httpx"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/shared"
)

// Handler manages dividend endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	fund    Fund
	metrics *observability.Metrics
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, fund Fund, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, fund: fund, metrics: metrics}
}

// MountRoutes registers dividend routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{year}/distribute", h.distribute)
	r.Get("/{year}", h.listForYear)
	r.Get("/{year}/fund", h.fundTotal)
	r.Get("/members/{memberID}", h.listForMember)
}

func (h *Handler) distribute(w http.ResponseWriter, r *http.Request) {
	year, err := pathYear(r)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	recompute := r.URL.Query().Get("recompute") == "true"
	records, err := h.service.Distribute(r.Context(), year, recompute)
	if err != nil {
		if errors.Is(err, ErrFundConservation) && h.metrics != nil {
			h.metrics.ConservationFailures.Inc()
		}
		h.respondErr(w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.Distributions.Inc()
	}
	httpx.JSON(w, http.StatusCreated, recordsPayload(records))
}

func (h *Handler) listForYear(w http.ResponseWriter, r *http.Request) {
	year, err := pathYear(r)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	records, err := h.service.ListForYear(r.Context(), year)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, recordsPayload(records))
}

func (h *Handler) listForMember(w http.ResponseWriter, r *http.Request) {
	memberID, err := strconv.ParseInt(chi.URLParam(r, "memberID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	records, err := h.service.ListForMember(r.Context(), memberID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, recordsPayload(records))
}

func (h *Handler) fundTotal(w http.ResponseWriter, r *http.Request) {
	year, err := pathYear(r)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	total, err := h.fund.TotalFund(r.Context(), year)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"year":       year,
		"total_fund": total.StringFixed(2),
	})
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrFundConservation), errors.Is(err, ErrNoActiveMembers), errors.Is(err, ErrYearAlreadyPaid):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnprocessable, err))
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, shared.ErrYearLocked):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrLocked, err))
	default:
		h.logger.Error("dividend request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.RespondError(w, err)
	}
}

func pathYear(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "year"))
}

func recordsPayload(records []DividendRecord) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, map[string]any{
			"id":                  rec.ID,
			"member_id":           rec.MemberID,
			"year":                rec.Year,
			"total_contributions": rec.TotalContributions.StringFixed(2),
			"total_interest_paid": rec.TotalInterestPaid.StringFixed(2),
			"outstanding_balance": rec.OutstandingBalance.StringFixed(2),
			"amount":              rec.Amount.StringFixed(2),
			"warning":             rec.Warning,
			"status":              rec.Status,
			"calculated_at":       rec.CalculatedAt,
		})
	}
	return out
}
