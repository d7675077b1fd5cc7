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

// --- Catálogo de produtos (implementa port.ProductStore) ---
//
// O funil só lê o catálogo. Escrita de produto fica fora do agente.

// productRow mapeia as colunas da tabela products.
type productRow struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Niche          string   `json:"niche"`
	OriginalPrice  float64  `json:"original_price"`
	Price          float64  `json:"price"`
	Description    string   `json:"description"`
	TargetAudience string   `json:"target_audience"`
	KeyBenefits    []string `json:"key_benefits"`
	SalesApproach  string   `json:"sales_approach"`
	PaymentLink    string   `json:"payment_link"`
	FreeGroupLink  string   `json:"free_group_link"`
	IsActive       bool     `json:"is_active"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

func (r productRow) toDomain() domain.Product {
	created, _ := time.Parse(time.RFC3339, r.CreatedAt)
	updated, _ := time.Parse(time.RFC3339, r.UpdatedAt)
	return domain.Product{
		ID:             r.ID,
		Name:           r.Name,
		Niche:          r.Niche,
		OriginalPrice:  r.OriginalPrice,
		Price:          r.Price,
		Description:    r.Description,
		TargetAudience: r.TargetAudience,
		KeyBenefits:    r.KeyBenefits,
		SalesApproach:  r.SalesApproach,
		PaymentLink:    r.PaymentLink,
		FreeGroupLink:  r.FreeGroupLink,
		IsActive:       r.IsActive,
		CreatedAt:      created,
		UpdatedAt:      updated,
	}
}

// ListActive retorna o catálogo ativo ordenado por nome.
func (c *Client) ListActive(ctx context.Context) ([]domain.Product, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListActiveProducts")
	defer span.End()

	var products []domain.Product

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := c.doGet(ctx, "products?is_active=eq.true&order=name.asc")
			if err != nil {
				return err
			}
			if body == nil || string(body) == "[]" {
				products = []domain.Product{}
				return nil
			}

			var rows []productRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode products: %w", err)
			}

			products = make([]domain.Product, 0, len(rows))
			for _, r := range rows {
				products = append(products, r.toDomain())
			}
			return nil
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/products", Err: err}
	}

	return products, nil
}

// GetByID busca um produto pelo id. Retorna ErrNotFound para id inexistente
// ou produto inativo.
func (c *Client) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetProduct")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", id))

	var product *domain.Product

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("products?id=eq.%s&is_active=eq.true&limit=1", url.QueryEscape(id))
			body, err := c.doGet(ctx, path)
			if err != nil {
				return err
			}
			if body == nil || string(body) == "[]" {
				return nil
			}

			var rows []productRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode product: %w", err)
			}
			if len(rows) > 0 {
				p := rows[0].toDomain()
				product = &p
			}
			return nil
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/products", Err: err}
	}
	if product == nil {
		return nil, &domain.ErrNotFound{Resource: "product", ID: id}
	}

	return product, nil
}
