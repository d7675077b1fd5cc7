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
	"go.uber.org/zap"
)

// --- Vendas (implementa port.SaleStore) ---

// saleRow mapeia as colunas da tabela sales.
type saleRow struct {
	ID                   string  `json:"id,omitempty"`
	CustomerID           string  `json:"customer_id"`
	ProductID            string  `json:"product_id"`
	ProductName          string  `json:"product_name"`
	SaleAmount           float64 `json:"sale_amount"`
	StrategyUsed         string  `json:"strategy_used"`
	ConversationMessages int     `json:"conversation_messages"`
	SaleDate             string  `json:"sale_date"`
}

func (r saleRow) toDomain() domain.Sale {
	date, _ := time.Parse(time.RFC3339, r.SaleDate)
	return domain.Sale{
		ID:                   r.ID,
		CustomerID:           r.CustomerID,
		ProductID:            r.ProductID,
		ProductName:          r.ProductName,
		SaleAmount:           r.SaleAmount,
		StrategyUsed:         r.StrategyUsed,
		ConversationMessages: r.ConversationMessages,
		SaleDate:             date,
	}
}

// CreateSale registra uma venda fechada e devolve a linha criada.
func (c *Client) CreateSale(ctx context.Context, sale *domain.Sale) (*domain.Sale, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateSale")
	defer span.End()
	span.SetAttributes(
		attribute.String("customer.id", sale.CustomerID),
		attribute.String("product.id", sale.ProductID),
	)

	row := saleRow{
		CustomerID:           sale.CustomerID,
		ProductID:            sale.ProductID,
		ProductName:          sale.ProductName,
		SaleAmount:           sale.SaleAmount,
		StrategyUsed:         sale.StrategyUsed,
		ConversationMessages: sale.ConversationMessages,
		SaleDate:             sale.SaleDate.UTC().Format(time.RFC3339),
	}

	var created *domain.Sale

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := c.doInsert(ctx, "sales", row, "return=representation")
			if err != nil {
				return err
			}

			var rows []saleRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode created sale: %w", err)
			}
			if len(rows) == 0 {
				return fmt.Errorf("supabase returned no row for created sale")
			}

			s := rows[0].toDomain()
			created = &s
			return nil
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/sales", Err: err}
	}

	c.logger.Info("venda registrada",
		zap.String("sale_id", created.ID),
		zap.String("product", created.ProductName),
		zap.Float64("amount", created.SaleAmount),
		zap.String("strategy", created.StrategyUsed),
	)
	return created, nil
}

// RecentSales retorna as últimas vendas, mais recentes primeiro.
func (c *Client) RecentSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	ctx, span := tracer.Start(ctx, "Supabase.RecentSales")
	defer span.End()

	var sales []domain.Sale

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("sales?order=sale_date.desc&limit=%d", limit)
			body, err := c.doGet(ctx, path)
			if err != nil {
				return err
			}
			if body == nil || string(body) == "[]" {
				sales = []domain.Sale{}
				return nil
			}

			var rows []saleRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode sales: %w", err)
			}

			sales = make([]domain.Sale, 0, len(rows))
			for _, r := range rows {
				sales = append(sales, r.toDomain())
			}
			return nil
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/sales", Err: err}
	}

	return sales, nil
}

// CountSales conta as vendas fechadas.
func (c *Client) CountSales(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountSales")
	defer span.End()

	var total int
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			n, err := c.doCount(ctx, "sales?select=id")
			total = n
			return err
		})
	})
	if err != nil {
		return 0, &domain.ErrExternalService{Service: "supabase/sales", Err: err}
	}
	return total, nil
}

// CountSalesSince conta vendas a partir do instante dado.
func (c *Client) CountSalesSince(ctx context.Context, since time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountSalesSince")
	defer span.End()

	var total int
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("sales?select=id&sale_date=gte.%s",
				url.QueryEscape(since.UTC().Format(time.RFC3339)))
			n, err := c.doCount(ctx, path)
			total = n
			return err
		})
	})
	if err != nil {
		return 0, &domain.ErrExternalService{Service: "supabase/sales", Err: err}
	}
	return total, nil
}

// SalesRevenue soma o valor de todas as vendas via função agregada no banco.
func (c *Client) SalesRevenue(ctx context.Context) (float64, error) {
	ctx, span := tracer.Start(ctx, "Supabase.SalesRevenue")
	defer span.End()

	var total float64
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := c.doRPC(ctx, "total_sales_revenue", map[string]any{})
			if err != nil {
				return err
			}
			if len(body) == 0 {
				total = 0
				return nil
			}
			if err := json.Unmarshal(body, &total); err != nil {
				return fmt.Errorf("failed to decode revenue: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return 0, &domain.ErrExternalService{Service: "supabase/sales", Err: err}
	}
	return total, nil
}
