// Package domain — customer.go define os tipos centrais da conversa de vendas.
//
// Um Customer é identificado pelo id externo do canal (número de WhatsApp ou
// id de sessão do chat web). Cada mensagem trocada vira um ConversationTurn
// append-only; o histórico nunca é editado, só cresce. Quando o cliente
// compra, um Sale é criado e o Customer é marcado como purchased.
package domain

import "time"

// ============================================================
// Customer — um registro por conversa externa
// ============================================================

// Customer representa um cliente (ou lead) conversando com o bot.
// O funil de vendas inteiro gira em torno do par (FunnelState, SelectedProductID):
// o estado diz em que etapa da conversa estamos, o produto diz qual
// "especialista" está atendendo.
type Customer struct {
	ID string `json:"id"`

	// ExternalID é a chave única do canal: número de WhatsApp ou session id web.
	ExternalID string `json:"external_id"`

	Name string `json:"name,omitempty"`

	// FunnelState é a etapa atual do funil. Começa em "start".
	FunnelState FunnelState `json:"funnel_state"`

	// SelectedProductID é o produto que o cliente escolheu na etapa de
	// qualificação. Vazio até o cliente escolher; obrigatório para entrar
	// em qualquer estado specialist_*.
	SelectedProductID string `json:"selected_product_id,omitempty"`

	TotalInteractions int  `json:"total_interactions"`
	Purchased         bool `json:"purchased"`

	PurchaseDate    *time.Time `json:"purchase_date,omitempty"`
	FirstContact    time.Time  `json:"first_contact"`
	LastInteraction time.Time  `json:"last_interaction"`
}

// ============================================================
// ConversationTurn — log append-only da conversa
// ============================================================

// Direções possíveis de um turno.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// ConversationTurn é uma mensagem da conversa, nunca mutada após criada.
// Turnos de um mesmo cliente são totalmente ordenados por Timestamp.
type ConversationTurn struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Direction  string    `json:"direction"` // incoming | outgoing
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`

	// StrategyUsed é preenchido só em turnos outgoing: a estratégia de
	// venda que gerou a resposta.
	StrategyUsed string `json:"strategy_used,omitempty"`

	// SentimentScore vem da análise do serviço de completion ([-1, 1]).
	// Zero quando o modelo não foi consultado nesse turno.
	SentimentScore float64 `json:"sentiment_score,omitempty"`
}

// ============================================================
// Sale — resultado terminal de uma conversa convertida
// ============================================================

// Sale registra uma venda fechada. ConversationMessages guarda quantas
// interações a conversa levou até converter — insumo para análise do funil.
type Sale struct {
	ID                   string    `json:"id"`
	CustomerID           string    `json:"customer_id"`
	ProductID            string    `json:"product_id,omitempty"`
	ProductName          string    `json:"product_name"`
	SaleAmount           float64   `json:"sale_amount"`
	StrategyUsed         string    `json:"strategy_used"`
	ConversationMessages int       `json:"conversation_messages"`
	SaleDate             time.Time `json:"sale_date"`
}
