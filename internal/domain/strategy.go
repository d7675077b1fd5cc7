// Package domain — strategy.go define os tipos do aprendizado por reforço.
//
// O bot conhece um conjunto fixo e pequeno de estratégias de venda. Cada
// estratégia tem um registro durável de tentativas e sucessos; o seletor
// epsilon-greedy usa esses contadores para decidir qual estratégia aplicar
// no próximo turno.
package domain

import "time"

// ============================================================
// Estratégias — conjunto fixo
// ============================================================

// Nomes das estratégias de venda conhecidas.
const (
	StrategyConsultivo = "consultivo"
	StrategyEscassez   = "escassez"
	StrategyEmocional  = "emocional"
	StrategyRacional   = "racional"
)

// DefaultStrategy é a estratégia usada em cold start e em qualquer falha
// do seletor. Nunca propagamos erro de seleção para o fluxo da conversa.
const DefaultStrategy = StrategyConsultivo

// Strategies lista o conjunto fixo, na ordem canônica de iteração.
// A ordem importa: desempates do seletor seguem essa ordem.
func Strategies() []string {
	return []string{StrategyConsultivo, StrategyEscassez, StrategyEmocional, StrategyRacional}
}

// ============================================================
// StrategyRecord — contadores duráveis por estratégia
// ============================================================

// StrategyRecord é uma linha da tabela ai_learning_data.
//
// Invariantes: SuccessCount <= TotalAttempts e 0 <= SuccessRate <= 1.
// TotalAttempts nasce em 1 (não em 0) para evitar divisão por zero e deixar
// a exploração inicial aproximadamente uniforme.
type StrategyRecord struct {
	Name          string  `json:"strategy_name"`
	SuccessCount  int     `json:"success_count"`
	TotalAttempts int     `json:"total_attempts"`
	SuccessRate   float64 `json:"success_rate"`

	// ContextKeywords e CustomerSentiment são o snapshot do ÚLTIMO sucesso
	// (last-success-wins, sem média entre sucessos). Servem só como sinal
	// de similaridade na pontuação de exploitation.
	ContextKeywords   map[string]float64 `json:"context_keywords,omitempty"`
	CustomerSentiment float64            `json:"customer_sentiment"`

	LastUpdated time.Time `json:"last_updated"`
}

// ============================================================
// CustomerAnalysis — entrada do seletor
// ============================================================

// CustomerAnalysis é o contexto leve do cliente no turno atual. Os campos
// vêm da análise do serviço de completion (são opacos para nós: não fazemos
// NLP aqui). Campos ausentes assumem valores neutros.
type CustomerAnalysis struct {
	// Sentiment em [-1, 1]; 0 quando desconhecido.
	Sentiment float64 `json:"sentiment"`

	// Keywords da mensagem atual; pode ser vazio.
	Keywords []string `json:"keywords"`

	// Intent é o rótulo devolvido pelo modelo (interesse_inicial,
	// objecao_preco, ...). Informativo; o seletor não o usa.
	Intent string `json:"intent,omitempty"`
}

// SuccessContext é o snapshot gravado junto com um record_success.
type SuccessContext struct {
	Keywords     map[string]float64
	AvgSentiment float64
}

// ============================================================
// LearningStats — visão agregada para o dashboard
// ============================================================

// StrategyStats é o recorte por estratégia exposto em /v1/learning/stats.
type StrategyStats struct {
	SuccessCount  int     `json:"success_count"`
	TotalAttempts int     `json:"total_attempts"`
	SuccessRate   float64 `json:"success_rate"`
	LastUpdated   string  `json:"last_updated,omitempty"`
}

// LearningStats agrega o estado do aprendizado de todas as estratégias.
type LearningStats struct {
	Strategies         map[string]StrategyStats `json:"strategies"`
	TotalAttempts      int                      `json:"total_attempts"`
	TotalSuccesses     int                      `json:"total_successes"`
	OverallSuccessRate float64                  `json:"overall_success_rate"`
	ExplorationRate    float64                  `json:"exploration_rate"`
	BestStrategy       string                   `json:"best_strategy"`
	WorstStrategy      string                   `json:"worst_strategy"`

	// ReplySources traz os contadores de resposta desta instância
	// (templated/model/fallback) desde o boot. Vêm das métricas do
	// processo, não do ledger.
	ReplySources map[string]float64 `json:"reply_sources,omitempty"`
}
