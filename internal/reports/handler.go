package reports

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/loans"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/platform/httpx"
)

// Handler serves CSV downloads.
type Handler struct {
	logger   *slog.Logger
	exporter *Exporter
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, exporter *Exporter) *Handler {
	return &Handler{logger: logger, exporter: exporter}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/loans/{id}/schedule.csv", h.schedule)
	r.Get("/loans/{id}/repayments.csv", h.repayments)
	r.Get("/dividends/{year}.csv", h.dividends)
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	data, err := h.exporter.ScheduleCSV(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	serveCSV(w, fmt.Sprintf("loan-%d-schedule.csv", id), data)
}

func (h *Handler) repayments(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	data, err := h.exporter.RepaymentsCSV(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	serveCSV(w, fmt.Sprintf("loan-%d-repayments.csv", id), data)
}

func (h *Handler) dividends(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	data, err := h.exporter.DividendsCSV(r.Context(), year)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	serveCSV(w, fmt.Sprintf("dividends-%d.csv", year), data)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	if errors.Is(err, loans.ErrNotFound) {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
		return
	}
	h.logger.Error("report export failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}

func serveCSV(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
