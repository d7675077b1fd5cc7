package handler

import (
	"encoding/json"
	"net/http"

	"github.com/boddenberg/vende-agent-go/internal/domain"
	"github.com/boddenberg/vende-agent-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Webhook de conversas
// POST /webhook — mensagem inbound do transporte
// GET  /webhook — eco de verificação do transporte
// ============================================================

func webhookHandler(gateway *service.Gateway, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.Webhook")
		defer span.End()

		var msg domain.InboundMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			writeError(w, http.StatusBadRequest, "JSON inválido")
			return
		}

		reply, err := gateway.HandleMessage(ctx, &msg)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		// O transporte consome uma lista de mensagens, mesmo que hoje o
		// funil sempre responda com uma só.
		writeJSON(w, http.StatusOK, []*domain.OutboundReply{reply})
	}
}

// webhookVerifyHandler devolve o challenge que o transporte mandou, no
// estilo da verificação de webhook da Meta.
func webhookVerifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if challenge := r.URL.Query().Get("hub.challenge"); challenge != "" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(challenge))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
