package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/stockledger/internal/approval"
	"github.com/odyssey-erp/stockledger/internal/delivery"
	"github.com/odyssey-erp/stockledger/internal/issue"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/ncr"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/period"
	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/reconciliation"
	"github.com/odyssey-erp/stockledger/internal/transfer"
	"github.com/odyssey-erp/stockledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger     *slog.Logger
	Config     *Config
	Services   *Services
	JobHandler *jobs.Handler
	Metrics    *observability.Metrics
}

// NewRouter constructs the chi.Router with the API mounted under /api/v1.
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
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	svc := params.Services
	logger := params.Logger
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/deliveries", delivery.NewHandler(logger, svc.Delivery).MountRoutes)
		r.Route("/issues", issue.NewHandler(logger, svc.Issue).MountRoutes)
		r.Route("/transfers", transfer.NewHandler(logger, svc.Transfer, svc.Gate).MountRoutes)
		r.Route("/ledger", ledger.NewHandler(logger, svc.Ledger).MountRoutes)
		r.Route("/periods", func(r chi.Router) {
			period.NewHandler(logger, svc.Period, svc.Gate).MountRoutes(r)
			reconciliation.NewHandler(logger, svc.Reconciliation).MountRoutes(r)
		})
		r.Route("/ncrs", ncr.NewHandler(logger, svc.NCR).MountRoutes)
		r.Route("/approvals", approval.NewHandler(logger, svc.Gate).MountRoutes)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
