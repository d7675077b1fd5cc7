package service

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/boddenberg/vende-agent-go/internal/domain"
	"github.com/boddenberg/vende-agent-go/internal/infra/observability"
	"github.com/boddenberg/vende-agent-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("service")

// ============================================================
// Seletor de estratégias (bandit epsilon-greedy)
// ============================================================
//
// A cada turno o seletor escolhe o ângulo de venda (consultivo, escassez,
// emocional ou racional) com base no histórico de sucesso do ledger.
// Explora com probabilidade epsilon, que decai conforme o volume total de
// tentativas cresce; no restante do tempo explota a estratégia de maior
// pontuação, com bônus de contexto quando o perfil do cliente se parece
// com o da última venda daquela estratégia.
//
// Falha aqui nunca derruba o turno: qualquer erro degrada para a
// estratégia padrão (consultivo) e segue.

const (
	baseExplorationRate  = 0.2
	explorationDecay     = 0.95
	explorationDecayStep = 100.0

	contextKeywordBonus  = 0.02
	contextSentimentCap  = 0.05
	contextBonusCap      = 0.15
	confidenceBonusCap   = 0.1
	confidenceBonusScale = 100.0

	exploreWeightFloor = 0.1
)

// Selector implements the epsilon-greedy strategy bandit on top of the
// persistent ledger.
type Selector struct {
	store   port.StrategyStore
	metrics *observability.Metrics
	logger  *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a Selector. rng é injetável para testes
// determinísticos; com nil usa uma fonte própria.
func NewSelector(store port.StrategyStore, metrics *observability.Metrics, logger *zap.Logger, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Selector{
		store:   store,
		metrics: metrics,
		logger:  logger,
		rng:     rng,
	}
}

// EnsureInitialized garante o ledger semeado com as quatro estratégias.
// Idempotente; chamado no boot.
func (s *Selector) EnsureInitialized(ctx context.Context) error {
	return s.store.EnsureInitialized(ctx)
}

// Select escolhe a estratégia do turno e registra a tentativa no ledger.
// A tentativa conta na seleção, não no desfecho: estratégia escolhida é
// estratégia tentada, mesmo que o cliente nunca responda.
func (s *Selector) Select(ctx context.Context, analysis *domain.CustomerAnalysis) string {
	ctx, span := tracer.Start(ctx, "Selector.Select")
	defer span.End()

	records, err := s.store.AllRecords(ctx)
	if err != nil {
		s.logger.Error("falha ao ler o ledger, usando estratégia padrão", zap.Error(err))
		s.metrics.IncrExternalError("strategy_ledger")
		s.metrics.IncrStrategySelection(domain.DefaultStrategy, "fallback")
		return domain.DefaultStrategy
	}
	if len(records) == 0 {
		// Ledger vazio em pleno voo (seed do boot falhou ou a tabela foi
		// truncada): semeia agora e responde este turno com a padrão.
		if err := s.store.EnsureInitialized(ctx); err != nil {
			s.logger.Error("falha ao semear o ledger vazio", zap.Error(err))
			s.metrics.IncrExternalError("strategy_ledger")
		}
		s.metrics.IncrStrategySelection(domain.DefaultStrategy, "fallback")
		return domain.DefaultStrategy
	}

	totalAttempts := 0
	for _, r := range records {
		totalAttempts += r.TotalAttempts
	}

	epsilon := ExplorationRate(totalAttempts)
	span.SetAttributes(attribute.Float64("bandit.epsilon", epsilon))

	var name, mode string
	if s.roll() < epsilon {
		name = s.explore(records)
		mode = "explore"
	} else {
		name = exploit(records, analysis)
		mode = "exploit"
	}

	if err := s.store.RecordAttempt(ctx, name); err != nil {
		s.logger.Error("falha ao registrar tentativa",
			zap.String("strategy", name),
			zap.Error(err),
		)
		s.metrics.IncrExternalError("strategy_ledger")
	}

	span.SetAttributes(
		attribute.String("bandit.strategy", name),
		attribute.String("bandit.mode", mode),
	)
	s.metrics.IncrStrategySelection(name, mode)
	return name
}

func (s *Selector) roll() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// ExplorationRate returns the epsilon for a given total attempt volume.
// Decai geometricamente a cada 100 tentativas, então o agente explora
// bastante no frio e quase nada depois de milhares de conversas.
func ExplorationRate(totalAttempts int) float64 {
	return baseExplorationRate * math.Pow(explorationDecay, float64(totalAttempts)/explorationDecayStep)
}

// explore sorteia uma estratégia com peso inverso à taxa de sucesso:
// as menos provadas ganham mais chance de coletar sinal.
func (s *Selector) explore(records []domain.StrategyRecord) string {
	weights := make([]float64, len(records))
	total := 0.0
	for i, r := range records {
		weights[i] = 1.0 / (r.SuccessRate + exploreWeightFloor)
		total += weights[i]
	}

	target := s.roll() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if target < acc {
			return records[i].Name
		}
	}
	return records[len(records)-1].Name
}

// exploit escolhe a estratégia de maior pontuação. Empate fica com a
// primeira na ordem do ledger (ordenado por nome), então o resultado é
// determinístico.
func exploit(records []domain.StrategyRecord, analysis *domain.CustomerAnalysis) string {
	best := records[0]
	bestScore := math.Inf(-1)
	for _, r := range records {
		score := exploitScore(r, analysis)
		if score > bestScore {
			best = r
			bestScore = score
		}
	}
	return best.Name
}

func exploitScore(r domain.StrategyRecord, analysis *domain.CustomerAnalysis) float64 {
	score := r.SuccessRate
	score += contextBonus(r, analysis)
	score += math.Min(confidenceBonusCap, float64(r.TotalAttempts)/confidenceBonusScale)
	return score
}

// contextBonus recompensa estratégias cuja última venda aconteceu com um
// cliente parecido com o atual. As duas parcelas são independentes: a de
// palavras-chave exige snapshot de keywords, a de sentimento exige um
// sentimento gravado. Limitado para nunca dominar a taxa de sucesso.
func contextBonus(r domain.StrategyRecord, analysis *domain.CustomerAnalysis) float64 {
	if analysis == nil {
		return 0
	}

	bonus := 0.0
	for _, kw := range analysis.Keywords {
		if _, ok := r.ContextKeywords[kw]; ok {
			bonus += contextKeywordBonus
		}
	}

	if r.CustomerSentiment != 0 {
		diff := math.Abs(analysis.Sentiment - r.CustomerSentiment)
		bonus += math.Max(0, (1-diff)*contextSentimentCap)
	}

	return math.Min(bonus, contextBonusCap)
}

// RecordSuccess marca a conversão da estratégia e grava o contexto do
// cliente que comprou.
func (s *Selector) RecordSuccess(ctx context.Context, name string, sctx domain.SuccessContext) error {
	ctx, span := tracer.Start(ctx, "Selector.RecordSuccess")
	defer span.End()
	span.SetAttributes(attribute.String("strategy.name", name))

	if err := s.store.RecordSuccess(ctx, name, sctx); err != nil {
		return err
	}
	s.metrics.IncrStrategyOutcome(name, "success")
	return nil
}

// RecordFailure marca abandono explícito. Só recalcula a taxa; a tentativa
// já foi contada na seleção.
func (s *Selector) RecordFailure(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "Selector.RecordFailure")
	defer span.End()
	span.SetAttributes(attribute.String("strategy.name", name))

	if err := s.store.RecordFailure(ctx, name); err != nil {
		return err
	}
	s.metrics.IncrStrategyOutcome(name, "failure")
	return nil
}

// Stats monta o retrato atual do aprendizado a partir do ledger.
func (s *Selector) Stats(ctx context.Context) (*domain.LearningStats, error) {
	ctx, span := tracer.Start(ctx, "Selector.Stats")
	defer span.End()

	records, err := s.store.AllRecords(ctx)
	if err != nil {
		return nil, err
	}

	stats := &domain.LearningStats{
		Strategies: make(map[string]domain.StrategyStats, len(records)),
	}

	bestRate := math.Inf(-1)
	worstRate := math.Inf(1)
	for _, r := range records {
		stats.Strategies[r.Name] = domain.StrategyStats{
			SuccessCount:  r.SuccessCount,
			TotalAttempts: r.TotalAttempts,
			SuccessRate:   r.SuccessRate,
			LastUpdated:   r.LastUpdated.UTC().Format(time.RFC3339),
		}
		stats.TotalAttempts += r.TotalAttempts
		stats.TotalSuccesses += r.SuccessCount

		if r.SuccessRate > bestRate {
			bestRate = r.SuccessRate
			stats.BestStrategy = r.Name
		}
		if r.SuccessRate < worstRate {
			worstRate = r.SuccessRate
			stats.WorstStrategy = r.Name
		}
	}

	if stats.TotalAttempts > 0 {
		stats.OverallSuccessRate = float64(stats.TotalSuccesses) / float64(stats.TotalAttempts)
	}
	stats.ExplorationRate = ExplorationRate(stats.TotalAttempts)

	stats.ReplySources = map[string]float64{
		string(domain.ReplyTemplated): s.metrics.ReplyCount(string(domain.ReplyTemplated)),
		string(domain.ReplyModel):     s.metrics.ReplyCount(string(domain.ReplyModel)),
		string(domain.ReplyFallback):  s.metrics.FallbackCount(),
	}

	return stats, nil
}
