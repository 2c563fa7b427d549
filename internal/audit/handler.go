package audit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/platform/httpx"
)

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.timeline)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	entries := make([]map[string]any, 0, len(result.Entries))
	for _, e := range result.Entries {
		entries = append(entries, map[string]any{
			"id":        e.ID,
			"table":     e.Table,
			"operation": e.Op,
			"record_id": e.RecordID,
			"old_value": e.OldValue,
			"new_value": e.NewValue,
			"actor":     e.Actor,
			"at":        e.At,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"paging": map[string]any{
			"page":      result.Paging.Page,
			"page_size": result.Paging.PageSize,
			"has_next":  result.Paging.HasNext,
		},
	})
}

func parseFilters(r *http.Request) (Filters, error) {
	q := r.URL.Query()
	filters := Filters{
		Actor: q.Get("actor"),
		Table: q.Get("table"),
		Op:    q.Get("op"),
	}
	var err error
	if v := q.Get("from"); v != "" {
		if filters.From, err = time.Parse(time.RFC3339, v); err != nil {
			return Filters{}, fmt.Errorf("from: %v", err)
		}
	}
	if v := q.Get("to"); v != "" {
		if filters.To, err = time.Parse(time.RFC3339, v); err != nil {
			return Filters{}, fmt.Errorf("to: %v", err)
		}
	}
	if v := q.Get("page"); v != "" {
		if filters.Page, err = strconv.Atoi(v); err != nil {
			return Filters{}, fmt.Errorf("page: %v", err)
		}
	}
	if v := q.Get("page_size"); v != "" {
		if filters.PageSize, err = strconv.Atoi(v); err != nil {
			return Filters{}, fmt.Errorf("page_size: %v", err)
		}
	}
	return filters, nil
}
