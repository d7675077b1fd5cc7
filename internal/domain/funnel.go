// Package domain — funnel.go define a máquina de estados do funil de vendas.
//
// O funil é um conjunto FECHADO de estados: cada estado tem um handler
// explícito no FunnelService, e um estado desconhecido cai no handler
// default de propósito (nunca por acidente). Isso substitui o dispatch
// dinâmico por string que deixava estados sem handler passarem batido.
package domain

import "fmt"

// FunnelState é a etapa atual da conversa de vendas de um cliente.
type FunnelState string

// Estados do funil. A ordem reflete o caminho feliz: boas-vindas →
// qualificação → especialista do produto → oferta → fechamento/triagem.
const (
	StateStart                   FunnelState = "start"
	StateAwaitingChoice          FunnelState = "awaiting_choice"
	StateListProducts            FunnelState = "list_products"
	StateAwaitingProductSel      FunnelState = "awaiting_product_selection"
	StateGetPrice                FunnelState = "get_price"
	StateWhatsAppRedirect        FunnelState = "whatsapp_redirect"
	StateSpecialistIntro         FunnelState = "specialist_intro"
	StateAwaitingOfferChoice     FunnelState = "awaiting_offer_choice"
	StateSpecialistOffer         FunnelState = "specialist_offer"
	StateAwaitingPurchaseOutcome FunnelState = "awaiting_purchase_outcome"
	StateSpecialistProblem       FunnelState = "specialist_problem"
	StateAwaitingProblemCategory FunnelState = "awaiting_problem_category"
	StateAwaitingSpecificDesc    FunnelState = "awaiting_specific_description"
	StateSpecialistFollowup      FunnelState = "specialist_followup"
	StateSpecialistSuccess       FunnelState = "specialist_success"
	StateCompleted               FunnelState = "completed"
	StateDefault                 FunnelState = "default"
)

// AllFunnelStates lista todos os estados conhecidos. Usado em testes para
// garantir que nenhum estado fica sem handler.
func AllFunnelStates() []FunnelState {
	return []FunnelState{
		StateStart, StateAwaitingChoice, StateListProducts,
		StateAwaitingProductSel, StateGetPrice, StateWhatsAppRedirect,
		StateSpecialistIntro, StateAwaitingOfferChoice, StateSpecialistOffer,
		StateAwaitingPurchaseOutcome, StateSpecialistProblem,
		StateAwaitingProblemCategory, StateAwaitingSpecificDesc,
		StateSpecialistFollowup, StateSpecialistSuccess,
		StateCompleted, StateDefault,
	}
}

// IsSpecialist diz se o estado exige um SelectedProductID no cliente.
func (s FunnelState) IsSpecialist() bool {
	switch s {
	case StateSpecialistIntro, StateAwaitingOfferChoice, StateSpecialistOffer,
		StateAwaitingPurchaseOutcome, StateSpecialistProblem,
		StateAwaitingProblemCategory, StateAwaitingSpecificDesc,
		StateSpecialistFollowup, StateSpecialistSuccess:
		return true
	}
	return false
}

// ============================================================
// StepResult — saída de um passo do funil
// ============================================================

// ReplySource distingue COMO a resposta foi produzida. Substitui o antigo
// try/catch-e-devolve-fallback: quem chama consegue saber se a resposta veio
// de template, do modelo, ou de um fallback — e por quê.
type ReplySource string

const (
	// ReplyTemplated: texto determinístico montado de campos do produto.
	ReplyTemplated ReplySource = "templated"
	// ReplyModel: texto gerado pelo serviço de completion e sanitizado.
	ReplyModel ReplySource = "model"
	// ReplyFallback: o caminho model-assisted degradou para o texto fixo.
	ReplyFallback ReplySource = "fallback"
)

// StepResult é o resultado de FunnelService.Step para um turno.
//
// Invariante: NextState nunca é vazio — mesmo quando a geração de texto
// degradou para fallback, a transição do estado atual se aplica.
type StepResult struct {
	// Reply é o texto a enviar ao cliente. Pode conter as marcações
	// [botão:Label|URL] e [choice:Label], uma por linha, que o transporte
	// renderiza como botão de link e quick-reply.
	Reply string

	NextState FunnelState

	// SelectedProductID é preenchido quando o passo qualificou um produto
	// (transição awaiting_product_selection → specialist_intro).
	SelectedProductID string

	Source ReplySource

	// FallbackReason explica o degrade quando Source == ReplyFallback
	// (ex.: "completion unavailable", "product not found"). Vazio nos
	// demais casos.
	FallbackReason string

	// Analysis é a análise devolvida pelo modelo quando o passo foi
	// model-assisted; nil nos passos templated.
	Analysis *CustomerAnalysis

	// SaleClosed indica que o cliente confirmou a compra neste turno.
	// O gateway usa isso para registrar a venda e o record_success.
	SaleClosed bool

	// Abandoned indica desistência explícita ("não quero", "desisto").
	// Só esse sinal dispara record_failure; silêncio não conta.
	Abandoned bool
}

// ============================================================
// Marcação inline de botões
// ============================================================

// LinkButton formata a marcação de botão-link que o transporte renderiza.
func LinkButton(label, url string) string {
	return fmt.Sprintf("[botão:%s|%s]", label, url)
}

// ChoiceChip formata a marcação de quick-reply.
func ChoiceChip(label string) string {
	return fmt.Sprintf("[choice:%s]", label)
}
