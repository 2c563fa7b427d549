package members

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/platform/httpx"
)

// Handler serves member reads.
type Handler struct {
	logger *slog.Logger
	repo   *Repository
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes registers member routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listActive)
	r.Get("/{id}", h.get)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	member, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
			return
		}
		h.logger.Error("get member", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, memberPayload(member))
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		year = time.Now().Year()
	}
	roster, err := h.repo.ListActive(r.Context(), year)
	if err != nil {
		h.logger.Error("list members", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(roster))
	for _, m := range roster {
		out = append(out, memberPayload(m))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func memberPayload(m Member) map[string]any {
	return map[string]any{
		"id":            m.ID,
		"member_number": m.MemberNumber,
		"first_name":    m.FirstName,
		"last_name":     m.LastName,
		"status":        m.Status,
		"joined_at":     m.JoinedAt,
	}
}
