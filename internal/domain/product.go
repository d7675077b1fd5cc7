package domain

import "time"

// Product é um item do catálogo de vendas. O funil só lê produtos — o CRUD
// do catálogo vive no dashboard, fora deste serviço.
type Product struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Niche string `json:"niche,omitempty"`

	// OriginalPrice é o preço "de" para ancoragem ("de R$297 por R$97").
	// Zero quando não há ancoragem.
	OriginalPrice float64 `json:"original_price,omitempty"`
	Price         float64 `json:"price"`

	Description    string   `json:"description"`
	TargetAudience string   `json:"target_audience,omitempty"`
	KeyBenefits    []string `json:"key_benefits"`

	// SalesApproach é a estratégia padrão sugerida para esse produto
	// (consultivo, escassez, emocional, racional).
	SalesApproach string `json:"sales_approach,omitempty"`

	PaymentLink   string `json:"payment_link,omitempty"`
	FreeGroupLink string `json:"free_group_link,omitempty"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
