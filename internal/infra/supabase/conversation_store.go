package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/boddenberg/vende-agent-go/internal/domain"
	"github.com/boddenberg/vende-agent-go/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// --- Histórico de conversas (implementa port.ConversationStore) ---

// turnRow mapeia as colunas da tabela conversations.
type turnRow struct {
	ID             string  `json:"id,omitempty"`
	CustomerID     string  `json:"customer_id"`
	Direction      string  `json:"direction"`
	Content        string  `json:"content"`
	Timestamp      string  `json:"timestamp"`
	StrategyUsed   string  `json:"strategy_used"`
	SentimentScore float64 `json:"sentiment_score"`
}

func (r turnRow) toDomain() domain.ConversationTurn {
	ts, _ := time.Parse(time.RFC3339, r.Timestamp)
	return domain.ConversationTurn{
		ID:             r.ID,
		CustomerID:     r.CustomerID,
		Direction:      r.Direction,
		Content:        r.Content,
		Timestamp:      ts,
		StrategyUsed:   r.StrategyUsed,
		SentimentScore: r.SentimentScore,
	}
}

// AppendTurns grava o par entrada/resposta de um turno em um único POST.
// O PostgREST insere o array em um statement só, então ou as duas linhas
// entram ou nenhuma entra.
func (c *Client) AppendTurns(ctx context.Context, turns []domain.ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "Supabase.AppendTurns")
	defer span.End()
	span.SetAttributes(attribute.Int("turns.count", len(turns)))

	rows := make([]turnRow, 0, len(turns))
	for _, t := range turns {
		rows = append(rows, turnRow{
			CustomerID:     t.CustomerID,
			Direction:      t.Direction,
			Content:        t.Content,
			Timestamp:      t.Timestamp.UTC().Format(time.RFC3339),
			StrategyUsed:   t.StrategyUsed,
			SentimentScore: t.SentimentScore,
		})
	}

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			_, err := c.doInsert(ctx, "conversations", rows, "return=minimal")
			return err
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/conversations", Err: err}
	}

	return nil
}

// History retorna os últimos `limit` turnos do cliente em ordem cronológica.
func (c *Client) History(ctx context.Context, customerID string, limit int) ([]domain.ConversationTurn, error) {
	ctx, span := tracer.Start(ctx, "Supabase.History")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID))

	var turns []domain.ConversationTurn

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("conversations?customer_id=eq.%s&order=timestamp.desc&limit=%d",
				url.QueryEscape(customerID), limit)
			body, err := c.doGet(ctx, path)
			if err != nil {
				return err
			}
			if body == nil || string(body) == "[]" {
				turns = []domain.ConversationTurn{}
				return nil
			}

			var rows []turnRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode conversations: %w", err)
			}

			// A query vem mais-recente-primeiro; inverte para cronológico.
			turns = make([]domain.ConversationTurn, len(rows))
			for i, r := range rows {
				turns[len(rows)-1-i] = r.toDomain()
			}
			return nil
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/conversations", Err: err}
	}

	return turns, nil
}

// CountTurns conta os turnos gravados.
func (c *Client) CountTurns(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountConversations")
	defer span.End()

	var total int
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			n, err := c.doCount(ctx, "conversations?select=id")
			total = n
			return err
		})
	})
	if err != nil {
		return 0, &domain.ErrExternalService{Service: "supabase/conversations", Err: err}
	}
	return total, nil
}
