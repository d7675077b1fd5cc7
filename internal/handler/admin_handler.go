package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/boddenberg/vende-agent-go/internal/domain"
	"github.com/boddenberg/vende-agent-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Painel administrativo
// ============================================================

// POST /v1/auth/login
func authLoginHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.AdminLoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "JSON inválido")
			return
		}

		resp, err := authSvc.Login(&req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// GET /v1/dashboard
func dashboardHandler(gateway *service.Gateway, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.Dashboard")
		defer span.End()

		overview, err := gateway.Dashboard(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, overview)
	}
}

// GET /v1/learning/stats
func learningStatsHandler(selector *service.Selector, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.LearningStats")
		defer span.End()

		stats, err := selector.Stats(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// GET /v1/customers/{customerId}/conversation
func conversationHandler(gateway *service.Gateway, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.Conversation")
		defer span.End()

		externalID := chi.URLParam(r, "customerId")

		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}

		customer, history, err := gateway.Conversation(ctx, externalID, limit)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"customer": customer,
			"turns":    history,
		})
	}
}

// GET /v1/products
func productsHandler(gateway *service.Gateway, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.Products")
		defer span.End()

		products, err := gateway.Products(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, products)
	}
}

type simulateSaleRequest struct {
	ExternalID string `json:"external_id"`
	ProductID  string `json:"product_id,omitempty"`
}

// POST /v1/sales/simulate
func simulateSaleHandler(gateway *service.Gateway, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.SimulateSale")
		defer span.End()

		var req simulateSaleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "JSON inválido")
			return
		}
		if req.ExternalID == "" {
			writeError(w, http.StatusBadRequest, "external_id é obrigatório")
			return
		}

		sale, err := gateway.SimulateSale(ctx, req.ExternalID, req.ProductID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, sale)
	}
}
