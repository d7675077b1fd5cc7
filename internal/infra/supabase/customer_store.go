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

// --- Clientes (implementa port.CustomerStore) ---

// customerRow mapeia as colunas da tabela customers.
type customerRow struct {
	ID                string  `json:"id,omitempty"`
	ExternalID        string  `json:"external_id"`
	Name              string  `json:"name"`
	FunnelState       string  `json:"funnel_state"`
	SelectedProductID string  `json:"selected_product_id"`
	TotalInteractions int     `json:"total_interactions"`
	Purchased         bool    `json:"purchased"`
	PurchaseDate      *string `json:"purchase_date"`
	FirstContact      string  `json:"first_contact"`
	LastInteraction   string  `json:"last_interaction"`
}

func (r customerRow) toDomain() *domain.Customer {
	first, _ := time.Parse(time.RFC3339, r.FirstContact)
	last, _ := time.Parse(time.RFC3339, r.LastInteraction)
	cust := &domain.Customer{
		ID:                r.ID,
		ExternalID:        r.ExternalID,
		Name:              r.Name,
		FunnelState:       domain.FunnelState(r.FunnelState),
		SelectedProductID: r.SelectedProductID,
		TotalInteractions: r.TotalInteractions,
		Purchased:         r.Purchased,
		FirstContact:      first,
		LastInteraction:   last,
	}
	if r.PurchaseDate != nil {
		t, _ := time.Parse(time.RFC3339, *r.PurchaseDate)
		cust.PurchaseDate = &t
	}
	return cust
}

func customerToRow(cust *domain.Customer) customerRow {
	row := customerRow{
		ExternalID:        cust.ExternalID,
		Name:              cust.Name,
		FunnelState:       string(cust.FunnelState),
		SelectedProductID: cust.SelectedProductID,
		TotalInteractions: cust.TotalInteractions,
		Purchased:         cust.Purchased,
		FirstContact:      cust.FirstContact.UTC().Format(time.RFC3339),
		LastInteraction:   cust.LastInteraction.UTC().Format(time.RFC3339),
	}
	if cust.PurchaseDate != nil {
		s := cust.PurchaseDate.UTC().Format(time.RFC3339)
		row.PurchaseDate = &s
	}
	return row
}

// GetByExternalID busca um cliente pelo identificador do canal (telefone ou
// id de sessão web). Retorna ErrNotFound quando não existe.
func (c *Client) GetByExternalID(ctx context.Context, externalID string) (*domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCustomer")
	defer span.End()
	span.SetAttributes(attribute.String("customer.external_id", externalID))

	var cust *domain.Customer

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("customers?external_id=eq.%s&limit=1", url.QueryEscape(externalID))
			body, err := c.doGet(ctx, path)
			if err != nil {
				return err
			}
			if body == nil || string(body) == "[]" {
				return nil
			}

			var rows []customerRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode customer: %w", err)
			}
			if len(rows) > 0 {
				cust = rows[0].toDomain()
			}
			return nil
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/customers", Err: err}
	}
	if cust == nil {
		return nil, &domain.ErrNotFound{Resource: "customer", ID: externalID}
	}

	return cust, nil
}

// Create insere um cliente novo e devolve a linha criada (com id).
func (c *Client) Create(ctx context.Context, cust *domain.Customer) (*domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateCustomer")
	defer span.End()
	span.SetAttributes(attribute.String("customer.external_id", cust.ExternalID))

	var created *domain.Customer

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := c.doInsert(ctx, "customers", customerToRow(cust), "return=representation")
			if err != nil {
				return err
			}

			var rows []customerRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode created customer: %w", err)
			}
			if len(rows) == 0 {
				return fmt.Errorf("supabase returned no row for created customer")
			}

			created = rows[0].toDomain()
			return nil
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/customers", Err: err}
	}

	return created, nil
}

// Update persiste o estado atual do cliente (funil, produto selecionado,
// contadores e flags de compra).
func (c *Client) Update(ctx context.Context, cust *domain.Customer) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateCustomer")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", cust.ID))

	data := map[string]any{
		"funnel_state":        string(cust.FunnelState),
		"selected_product_id": cust.SelectedProductID,
		"total_interactions":  cust.TotalInteractions,
		"purchased":           cust.Purchased,
		"last_interaction":    cust.LastInteraction.UTC().Format(time.RFC3339),
	}
	if cust.PurchaseDate != nil {
		data["purchase_date"] = cust.PurchaseDate.UTC().Format(time.RFC3339)
	}

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("customers?id=eq.%s", url.QueryEscape(cust.ID))
			return c.doPatch(ctx, path, data)
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/customers", Err: err}
	}

	return nil
}

// --- Agregados do dashboard (implementa port.DashboardReader, junto com
// os contadores em conversation_store.go e sale_store.go) ---

// CountCustomers conta os clientes cadastrados.
func (c *Client) CountCustomers(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountCustomers")
	defer span.End()

	var total int
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			n, err := c.doCount(ctx, "customers?select=id")
			total = n
			return err
		})
	})
	if err != nil {
		return 0, &domain.ErrExternalService{Service: "supabase/customers", Err: err}
	}
	return total, nil
}

// CountCustomersSince conta clientes com primeiro contato a partir do
// instante dado.
func (c *Client) CountCustomersSince(ctx context.Context, since time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountCustomersSince")
	defer span.End()

	var total int
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("customers?select=id&first_contact=gte.%s",
				url.QueryEscape(since.UTC().Format(time.RFC3339)))
			n, err := c.doCount(ctx, path)
			total = n
			return err
		})
	})
	if err != nil {
		return 0, &domain.ErrExternalService{Service: "supabase/customers", Err: err}
	}
	return total, nil
}
