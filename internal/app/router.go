package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/audit"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/contributions"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/dividends"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/loans"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/members"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/observability"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/reports"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger               *slog.Logger
	Config               *Config
	MembersHandler       *members.Handler
	LoansHandler         *loans.Handler
	ContributionsHandler *contributions.Handler
	DividendsHandler     *dividends.Handler
	AuditHandler         *audit.Handler
	ReportsHandler       *reports.Handler
	JobsHandler          *jobs.Handler
	Metrics              *observability.Metrics
}

// NewRouter constructs the chi.Router with the ledger defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.MembersHandler != nil {
		r.Route("/members", params.MembersHandler.MountRoutes)
	}
	if params.LoansHandler != nil {
		r.Route("/loans", params.LoansHandler.MountRoutes)
	}
	if params.ContributionsHandler != nil {
		r.Route("/contributions", params.ContributionsHandler.MountRoutes)
	}
	if params.DividendsHandler != nil {
		r.Route("/dividends", params.DividendsHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.ReportsHandler != nil {
		r.Route("/reports", params.ReportsHandler.MountRoutes)
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
