package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/invoicegate/pkg/billing"
	"github.com/platinummonkey/invoicegate/pkg/httputil"
	"github.com/platinummonkey/invoicegate/pkg/lifecycle"
	"github.com/platinummonkey/invoicegate/pkg/observability"
	"github.com/platinummonkey/invoicegate/pkg/reconciliation"
	"github.com/platinummonkey/invoicegate/pkg/usage"
)

// ActorHeader names the admin performing a write
const ActorHeader = "X-Admin-Actor"

// Dependencies wires the admin API to the billing components
type Dependencies struct {
	Store      billing.InvoiceStore
	Usage      usage.Client
	Engine     *reconciliation.Engine
	Gate       *reconciliation.Gate
	Summarizer *reconciliation.Summarizer
	Lifecycle  *lifecycle.Service
	Logger     *observability.Logger
	Metrics    *observability.Metrics
	// ExportTimeout bounds the snapshot fetch on the invoice detail endpoint
	ExportTimeout time.Duration
}

// Server is the internal admin API. Authentication is enforced upstream.
type Server struct {
	router  *mux.Router
	logger  *observability.Logger
	handler http.Handler
}

// NewServer creates the admin API server and registers its routes
func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.ExportTimeout <= 0 {
		deps.ExportTimeout = reconciliation.DefaultExportTimeout
	}

	s := &Server{
		router: mux.NewRouter(),
		logger: deps.Logger,
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "route not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	if deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics, routeTemplate))
	}

	NewReconciliationHandlers(deps.Engine, deps.Gate, deps.Summarizer).RegisterRoutes(s.router)
	NewInvoiceHandlers(deps.Store, deps.Usage, deps.Lifecycle, deps.ExportTimeout).RegisterRoutes(s.router)

	s.handler = httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(deps.Logger),
		httputil.RecoveryMiddleware(deps.Logger),
	)(s.router)

	return s
}

// Router exposes the underlying router, mainly for route inspection in tests
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Handler returns the server wrapped in OpenTelemetry HTTP instrumentation
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s, "invoicegate.admin")
}

// routeTemplate labels a request by its matched route so ids don't explode metric cardinality
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
