package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/vende-agent-go/internal/domain"
	"github.com/boddenberg/vende-agent-go/internal/infra/observability"
	"github.com/boddenberg/vende-agent-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
//
// O webhook é público (o transporte não autentica por Bearer); as rotas de
// leitura do painel exigem o JWT administrativo.
func NewRouter(
	gateway *service.Gateway,
	selector *service.Selector,
	authSvc *service.AuthService,
	metrics *observability.Metrics,
	logger *zap.Logger,
	dashboardOrigin string,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{dashboardOrigin},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler(selector))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- Conversation webhook ---
	r.Post("/webhook", webhookHandler(gateway, logger))
	r.Get("/webhook", webhookVerifyHandler())

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", authLoginHandler(authSvc, logger))

		// Leituras do painel, protegidas pelo JWT administrativo.
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(authSvc, logger))

			r.Get("/dashboard", dashboardHandler(gateway, logger))
			r.Get("/learning/stats", learningStatsHandler(selector, logger))
			r.Get("/customers/{customerId}/conversation", conversationHandler(gateway, logger))
			r.Get("/products", productsHandler(gateway, logger))
			r.Post("/sales/simulate", simulateSaleHandler(gateway, logger))
		})
	})

	return r
}

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.HealthStatus{Status: "healthy"})
	}
}

// readyzHandler verifica se o ledger de estratégias responde: sem ele o
// agente não seleciona estratégia nem serve o painel.
func readyzHandler(selector *service.Selector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		started := time.Now()
		if _, err := selector.Stats(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, domain.HealthStatus{
				Status: "degraded",
				Services: []domain.ServiceHealth{{
					Name:        "strategy-ledger",
					Status:      "unhealthy",
					LatencyMs:   time.Since(started).Milliseconds(),
					LastChecked: time.Now().UTC().Format(time.RFC3339),
				}},
			})
			return
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status: "healthy",
			Services: []domain.ServiceHealth{{
				Name:        "strategy-ledger",
				Status:      "healthy",
				LatencyMs:   time.Since(started).Milliseconds(),
				LastChecked: time.Now().UTC().Format(time.RFC3339),
			}},
		})
	}
}
