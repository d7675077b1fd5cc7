package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boddenberg/vende-agent-go/internal/domain"
	"github.com/boddenberg/vende-agent-go/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// --- Ledger de estratégias (implementa port.StrategyStore) ---
//
// Uma linha em ai_learning_data por estratégia. Os contadores nunca são
// atualizados via PATCH read-modify-write: todo incremento passa pelas
// funções record_strategy_attempt / record_strategy_success /
// record_strategy_failure, que rodam como um único UPDATE no Postgres.

// strategyRow mapeia as colunas da tabela ai_learning_data.
type strategyRow struct {
	StrategyName      string  `json:"strategy_name"`
	SuccessCount      int     `json:"success_count"`
	TotalAttempts     int     `json:"total_attempts"`
	SuccessRate       float64 `json:"success_rate"`
	ContextKeywords   string  `json:"context_keywords"`
	CustomerSentiment float64 `json:"customer_sentiment"`
	LastUpdated       string  `json:"last_updated"`
}

func (r strategyRow) toDomain() domain.StrategyRecord {
	keywords := map[string]float64{}
	if r.ContextKeywords != "" {
		// Coluna legada em texto; conteúdo inválido vira mapa vazio.
		_ = json.Unmarshal([]byte(r.ContextKeywords), &keywords)
	}
	updated, _ := time.Parse(time.RFC3339, r.LastUpdated)
	return domain.StrategyRecord{
		Name:              r.StrategyName,
		SuccessCount:      r.SuccessCount,
		TotalAttempts:     r.TotalAttempts,
		SuccessRate:       r.SuccessRate,
		ContextKeywords:   keywords,
		CustomerSentiment: r.CustomerSentiment,
		LastUpdated:       updated,
	}
}

// EnsureInitialized garante uma linha por estratégia conhecida. Usa
// on_conflict=ignore-duplicates, então chamadas repetidas (ou instâncias
// concorrentes no boot) nunca sobrescrevem contadores existentes.
func (c *Client) EnsureInitialized(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Supabase.EnsureInitialized")
	defer span.End()

	rows := make([]strategyRow, 0, len(domain.Strategies()))
	for _, name := range domain.Strategies() {
		rows = append(rows, strategyRow{
			StrategyName:      name,
			SuccessCount:      0,
			TotalAttempts:     1,
			SuccessRate:       0.25,
			ContextKeywords:   "{}",
			CustomerSentiment: 0,
			LastUpdated:       time.Now().UTC().Format(time.RFC3339),
		})
	}

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := "ai_learning_data?on_conflict=strategy_name"
			_, err := c.doInsert(ctx, path, rows, "resolution=ignore-duplicates,return=minimal")
			return err
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/ai_learning_data", Err: err}
	}

	c.logger.Info("ledger de estratégias inicializado", zap.Int("strategies", len(rows)))
	return nil
}

// AllRecords retorna o ledger completo, ordenado por nome de estratégia.
func (c *Client) AllRecords(ctx context.Context) ([]domain.StrategyRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.AllRecords")
	defer span.End()

	var records []domain.StrategyRecord

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := c.doGet(ctx, "ai_learning_data?select=*&order=strategy_name.asc")
			if err != nil {
				return err
			}
			if body == nil || string(body) == "[]" {
				records = []domain.StrategyRecord{}
				return nil
			}

			var rows []strategyRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode learning data: %w", err)
			}

			records = make([]domain.StrategyRecord, 0, len(rows))
			for _, r := range rows {
				records = append(records, r.toDomain())
			}
			return nil
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/ai_learning_data", Err: err}
	}

	return records, nil
}

// RecordAttempt incrementa total_attempts da estratégia de forma atômica.
func (c *Client) RecordAttempt(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "Supabase.RecordAttempt")
	defer span.End()
	span.SetAttributes(attribute.String("strategy.name", name))

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			_, err := c.doRPC(ctx, "record_strategy_attempt", map[string]any{
				"p_strategy_name": name,
			})
			return err
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/ai_learning_data", Err: err}
	}
	return nil
}

// RecordSuccess incrementa success_count, recalcula success_rate e grava o
// contexto da última venda (keywords e sentimento médio) em uma transação.
func (c *Client) RecordSuccess(ctx context.Context, name string, sctx domain.SuccessContext) error {
	ctx, span := tracer.Start(ctx, "Supabase.RecordSuccess")
	defer span.End()
	span.SetAttributes(attribute.String("strategy.name", name))

	keywords, err := json.Marshal(sctx.Keywords)
	if err != nil {
		return fmt.Errorf("failed to encode keywords: %w", err)
	}

	_, err = c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			_, err := c.doRPC(ctx, "record_strategy_success", map[string]any{
				"p_strategy_name":      name,
				"p_context_keywords":   string(keywords),
				"p_customer_sentiment": sctx.AvgSentiment,
			})
			return err
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/ai_learning_data", Err: err}
	}

	c.logger.Info("sucesso registrado no ledger", zap.String("strategy", name))
	return nil
}

// RecordFailure recalcula success_rate sem tocar nos contadores de tentativa
// (a tentativa já foi contada na seleção).
func (c *Client) RecordFailure(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "Supabase.RecordFailure")
	defer span.End()
	span.SetAttributes(attribute.String("strategy.name", name))

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			_, err := c.doRPC(ctx, "record_strategy_failure", map[string]any{
				"p_strategy_name": name,
			})
			return err
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/ai_learning_data", Err: err}
	}
	return nil
}
