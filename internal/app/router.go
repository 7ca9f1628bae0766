package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/autohaus-erp/autohaus-erp/internal/catalog"
	"github.com/autohaus-erp/autohaus-erp/internal/finance"
	"github.com/autohaus-erp/autohaus-erp/internal/ledger"
	"github.com/autohaus-erp/autohaus-erp/internal/observability"
	"github.com/autohaus-erp/autohaus-erp/internal/purchasing"
	"github.com/autohaus-erp/autohaus-erp/internal/sales"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	LedgerHandler     *ledger.Handler
	CatalogHandler    *catalog.Handler
	PurchasingHandler *purchasing.Handler
	SalesHandler      *sales.Handler
	FinanceHandler    *finance.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
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

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if params.LedgerHandler != nil {
			params.LedgerHandler.MountRoutes(r)
		}
		if params.CatalogHandler != nil {
			params.CatalogHandler.MountRoutes(r)
		}
		if params.PurchasingHandler != nil {
			params.PurchasingHandler.MountRoutes(r)
		}
		if params.SalesHandler != nil {
			params.SalesHandler.MountRoutes(r)
		}
		if params.FinanceHandler != nil {
			params.FinanceHandler.MountRoutes(r)
		}
	})

	return r
}
