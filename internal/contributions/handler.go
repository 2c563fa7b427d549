package contributions

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

// Handler manages contribution endpoints.
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

// MountRoutes registers contribution routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.post)
	r.Get("/members/{memberID}", h.history)
}

type postRequest struct {
	MemberID int64  `json:"member_id" validate:"required,gt=0"`
	Month    int    `json:"month" validate:"required,min=1,max=12"`
	Year     int    `json:"year" validate:"required,min=1900"`
	Amount   string `json:"amount" validate:"required"`
	PostedAt string `json:"posted_at,omitempty"`
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	var req postRequest
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
	in := PostInput{
		MemberID: req.MemberID,
		Month:    time.Month(req.Month),
		Year:     req.Year,
		Amount:   amount,
	}
	if req.PostedAt != "" {
		if in.PostedAt, err = time.Parse(time.RFC3339, req.PostedAt); err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: posted_at: %v", httpx.ErrValidation, err))
			return
		}
	}

	contribution, err := h.service.Post(r.Context(), in)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ContributionsPosted.Inc()
	}
	httpx.JSON(w, http.StatusCreated, contributionPayload(contribution))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	memberID, err := strconv.ParseInt(chi.URLParam(r, "memberID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		year = time.Now().Year()
	}
	history, err := h.service.History(r.Context(), memberID, year)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(history))
	for _, c := range history {
		out = append(out, contributionPayload(c))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrDuplicate):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrDuplicate, err))
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidPeriod):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	case errors.Is(err, ErrMemberNotEligible):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnprocessable, err))
	case errors.Is(err, members.ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, shared.ErrYearLocked):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrLocked, err))
	default:
		h.logger.Error("contribution request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.RespondError(w, err)
	}
}

func contributionPayload(c Contribution) map[string]any {
	return map[string]any{
		"id":        c.ID,
		"member_id": c.MemberID,
		"month":     int(c.Month),
		"year":      c.Year,
		"amount":    c.Amount.StringFixed(2),
		"late_fee":  c.LateFee.StringFixed(2),
		"posted_at": c.PostedAt,
	}
}
