package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/vende-agent-go/internal/domain"
	"github.com/boddenberg/vende-agent-go/internal/infra/cache"
	"github.com/boddenberg/vende-agent-go/internal/infra/observability"

	"go.uber.org/zap"
)

// mockProductStore is a hand-written in-memory ProductStore.
type mockProductStore struct {
	products []domain.Product
	listErr  error
}

func (m *mockProductStore) ListActive(ctx context.Context) ([]domain.Product, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.products, nil
}

func (m *mockProductStore) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	for i := range m.products {
		if m.products[i].ID == id {
			return &m.products[i], nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "product", ID: id}
}

// mockCompletion returns a canned response or a canned error.
type mockCompletion struct {
	resp *domain.CompletionResponse
	err  error
}

func (m *mockCompletion) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func testProducts() []domain.Product {
	return []domain.Product{
		{
			ID:            "prod-marketing",
			Name:          "Marketing Digital do Zero",
			Description:   "Aprenda a vender online.",
			KeyBenefits:   []string{"Aulas práticas", "Suporte vitalício"},
			OriginalPrice: 497,
			Price:         297,
			PaymentLink:   "https://pay.example.com/marketing",
			FreeGroupLink: "https://t.me/exemplo",
			IsActive:      true,
		},
		{
			ID:       "prod-excel",
			Name:     "Excel Avançado",
			Price:    97,
			IsActive: true,
		},
	}
}

func newTestFunnel(products *mockProductStore, completion *mockCompletion) *FunnelService {
	return NewFunnelService(
		products,
		completion,
		cache.New[[]domain.Product](time.Minute),
		observability.NewMetrics(),
		zap.NewNop(),
		6,
		domain.CompletionModeJSON,
	)
}

func okCompletion() *mockCompletion {
	return &mockCompletion{resp: &domain.CompletionResponse{
		Text:     "Essa é uma oportunidade única pra você!",
		Analysis: &domain.CustomerAnalysis{Intent: "interesse", Sentiment: 0.3},
	}}
}

func customerIn(state domain.FunnelState, productID string) *domain.Customer {
	return &domain.Customer{
		ID:                "cust-1",
		ExternalID:        "5511988887777",
		FunnelState:       state,
		SelectedProductID: productID,
	}
}

func step(f *FunnelService, c *domain.Customer, message string) *domain.StepResult {
	return f.Step(context.Background(), c, nil, domain.StrategyConsultivo, message)
}

func TestStartEmitsWelcomeWithChoices(t *testing.T) {
	f := newTestFunnel(&mockProductStore{products: testProducts()}, okCompletion())

	result := step(f, customerIn(domain.StateStart, ""), "oi")

	if result.NextState != domain.StateAwaitingChoice {
		t.Errorf("NextState = %q, want %q", result.NextState, domain.StateAwaitingChoice)
	}
	if !strings.Contains(result.Reply, "[choice:Ver Cursos]") {
		t.Errorf("Reply missing choice chip: %q", result.Reply)
	}
	if result.Source != domain.ReplyTemplated {
		t.Errorf("Source = %q, want templated", result.Source)
	}
}

func TestVerCursosListsProducts(t *testing.T) {
	f := newTestFunnel(&mockProductStore{products: testProducts()}, okCompletion())

	result := step(f, customerIn(domain.StateAwaitingChoice, ""), "Ver Cursos")

	if result.NextState != domain.StateAwaitingProductSel {
		t.Errorf("NextState = %q, want %q", result.NextState, domain.StateAwaitingProductSel)
	}
	if !strings.Contains(result.Reply, "Marketing Digital do Zero") {
		t.Errorf("Reply missing product: %q", result.Reply)
	}
}

func TestPriceQuestionStaysInChoice(t *testing.T) {
	f := newTestFunnel(&mockProductStore{products: testProducts()}, okCompletion())

	result := step(f, customerIn(domain.StateAwaitingChoice, ""), "qual o preço?")

	if result.NextState != domain.StateAwaitingChoice {
		t.Errorf("NextState = %q, want %q", result.NextState, domain.StateAwaitingChoice)
	}
	if !strings.Contains(result.Reply, "R$ 297.00") {
		t.Errorf("Reply missing price: %q", result.Reply)
	}
}

func TestWhatsAppRedirectCompletes(t *testing.T) {
	f := newTestFunnel(&mockProductStore{products: testProducts()}, okCompletion())

	result := step(f, customerIn(domain.StateAwaitingChoice, ""), "prefiro whatsapp")

	if result.NextState != domain.StateCompleted {
		t.Errorf("NextState = %q, want %q", result.NextState, domain.StateCompleted)
	}
	if !strings.Contains(result.Reply, "[botão:Abrir WhatsApp|") {
		t.Errorf("Reply missing link button: %q", result.Reply)
	}
}

func TestUnknownChoiceResetsToStart(t *testing.T) {
	f := newTestFunnel(&mockProductStore{products: testProducts()}, okCompletion())

	result := step(f, customerIn(domain.StateAwaitingChoice, ""), "xyzzy")

	if result.NextState != domain.StateStart {
		t.Errorf("NextState = %q, want %q", result.NextState, domain.StateStart)
	}
}

func TestProductSelectionByNumber(t *testing.T) {
	f := newTestFunnel(&mockProductStore{products: testProducts()}, okCompletion())

	result := step(f, customerIn(domain.StateAwaitingProductSel, ""), "1")

	if result.NextState != domain.StateSpecialistIntro {
		t.Errorf("NextState = %q, want %q", result.NextState, domain.StateSpecialistIntro)
	}
	if result.SelectedProductID != "prod-marketing" {
		t.Errorf("SelectedProductID = %q, want prod-marketing", result.SelectedProductID)
	}
	if !strings.Contains(result.Reply, "especialista") {
		t.Errorf("Reply missing intro: %q", result.Reply)
	}
}

func TestProductSelectionByName(t *testing.T) {
	f := newTestFunnel(&mockProductStore{products: testProducts()}, okCompletion())

	result := step(f, customerIn(domain.StateAwaitingProductSel, ""), "quero o Excel Avançado")

	if result.SelectedProductID != "prod-excel" {
		t.Errorf("SelectedProductID = %q, want prod-excel", result.SelectedProductID)
	}
}

func TestUnparsableSelectionRelistsAndStays(t *testing.T) {
	f := newTestFunnel(&mockProductStore{products: testProducts()}, okCompletion())

	result := step(f, customerIn(domain.StateAwaitingProductSel, ""), "oi")

	if result.NextState != domain.StateAwaitingProductSel {
		t.Errorf("NextState = %q, want %q", result.NextState, domain.StateAwaitingProductSel)
	}
	if result.SelectedProductID != "" {
		t.Errorf("SelectedProductID = %q, want empty", result.SelectedProductID)
	}
	if !strings.Contains(result.Reply, "Marketing Digital do Zero") {
		t.Errorf("Reply should re-list products: %q", result.Reply)
	}
}

func TestOfferUsesModelWithPaymentLink(t *testing.T) {
	f := newTestFunnel(&mockProductStore{products: testProducts()}, okCompletion())

	result := step(f, customerIn(domain.StateAwaitingOfferChoice, "prod-marketing"), "quero a oferta")

	if result.NextState != domain.StateAwaitingPurchaseOutcome {
		t.Errorf("NextState = %q, want %q", result.NextState, domain.StateAwaitingPurchaseOutcome)
	}
	if result.Source != domain.ReplyModel {
		t.Errorf("Source = %q, want model", result.Source)
	}
	if !strings.Contains(result.Reply, "https://pay.example.com/marketing") {
		t.Errorf("Reply missing payment link: %q", result.Reply)
	}
}

func TestOfferFallsBackWhenCompletionFails(t *testing.T) {
	f := newTestFunnel(
		&mockProductStore{products: testProducts()},
		&mockCompletion{err: errors.New("boom")},
	)

	result := step(f, customerIn(domain.StateAwaitingOfferChoice, "prod-marketing"), "quero a oferta")

	// A transição vale mesmo com a geração degradada.
	if result.NextState != domain.StateAwaitingPurchaseOutcome {
		t.Errorf("NextState = %q, want %q", result.NextState, domain.StateAwaitingPurchaseOutcome)
	}
	if !strings.Contains(result.Reply, "R$ 297.00") || !strings.Contains(result.Reply, "[botão:") {
		t.Errorf("templated offer fallback missing price/link: %q", result.Reply)
	}
}

func TestObjectionFallbackOnEmptyCompletion(t *testing.T) {
	f := newTestFunnel(
		&mockProductStore{products: testProducts()},
		&mockCompletion{resp: &domain.CompletionResponse{Text: ""}},
	)

	result := step(f, customerIn(domain.StateAwaitingPurchaseOutcome, "prod-marketing"), "tá muito caro")

	if result.Reply != FallbackReply {
		t.Errorf("Reply = %q, want fixed fallback", result.Reply)
	}
	if result.Source != domain.ReplyFallback {
		t.Errorf("Source = %q, want fallback", result.Source)
	}
	if result.NextState != domain.StateAwaitingPurchaseOutcome {
		t.Errorf("NextState = %q, want %q", result.NextState, domain.StateAwaitingPurchaseOutcome)
	}
}

func TestPurchaseConfirmationClosesSale(t *testing.T) {
	f := newTestFunnel(&mockProductStore{products: testProducts()}, okCompletion())

	result := step(f, customerIn(domain.StateAwaitingPurchaseOutcome, "prod-marketing"), "comprei agora!")

	if !result.SaleClosed {
		t.Error("SaleClosed = false, want true")
	}
	if result.NextState != domain.StateCompleted {
		t.Errorf("NextState = %q, want %q", result.NextState, domain.StateCompleted)
	}
	if !strings.Contains(result.Reply, "Parabéns") {
		t.Errorf("Reply missing congratulation: %q", result.Reply)
	}
}

func TestProblemEntersTriage(t *testing.T) {
	f := newTestFunnel(&mockProductStore{products: testProducts()}, okCompletion())

	result := step(f, customerIn(domain.StateAwaitingPurchaseOutcome, "prod-marketing"), "tive um problema")

	if result.NextState != domain.StateAwaitingProblemCategory {
		t.Errorf("NextState = %q, want %q", result.NextState, domain.StateAwaitingProblemCategory)
	}
}

func TestPaymentProblemGetsFreshLink(t *testing.T) {
	f := newTestFunnel(&mockProductStore{products: testProducts()}, okCompletion())

	result := step(f, customerIn(domain.StateAwaitingProblemCategory, "prod-marketing"), "foi no pagamento")

	if result.NextState != domain.StateAwaitingPurchaseOutcome {
		t.Errorf("NextState = %q, want %q", result.NextState, domain.StateAwaitingPurchaseOutcome)
	}
	if !strings.Contains(result.Reply, "https://pay.example.com/marketing") {
		t.Errorf("Reply missing payment link: %q", result.Reply)
	}
}

func TestOtherProblemAsksForDescription(t *testing.T) {
	f := newTestFunnel(&mockProductStore{products: testProducts()}, okCompletion())

	result := step(f, customerIn(domain.StateAwaitingProblemCategory, "prod-marketing"), "outra coisa")

	if result.NextState != domain.StateAwaitingSpecificDesc {
		t.Errorf("NextState = %q, want %q", result.NextState, domain.StateAwaitingSpecificDesc)
	}
}

func TestExplicitAbandonmentSignals(t *testing.T) {
	f := newTestFunnel(&mockProductStore{products: testProducts()}, okCompletion())

	result := step(f, customerIn(domain.StateAwaitingPurchaseOutcome, "prod-marketing"), "não quero mais")

	if !result.Abandoned {
		t.Error("Abandoned = false, want true")
	}
	if result.NextState != domain.StateCompleted {
		t.Errorf("NextState = %q, want %q", result.NextState, domain.StateCompleted)
	}
}

func TestSpecialistStateWithoutProductDegrades(t *testing.T) {
	f := newTestFunnel(&mockProductStore{products: testProducts()}, okCompletion())

	result := step(f, customerIn(domain.StateSpecialistOffer, ""), "oi")

	if result.Source != domain.ReplyFallback {
		t.Errorf("Source = %q, want fallback", result.Source)
	}
	if result.FallbackReason == "" {
		t.Error("FallbackReason is empty, want explicit reason")
	}
	if result.NextState != domain.StateAwaitingChoice {
		t.Errorf("NextState = %q, want reset to %q", result.NextState, domain.StateAwaitingChoice)
	}
}

func TestDeletedProductDegradesToDefault(t *testing.T) {
	f := newTestFunnel(&mockProductStore{products: testProducts()}, okCompletion())

	result := step(f, customerIn(domain.StateAwaitingOfferChoice, "prod-gone"), "quero a oferta")

	if result.Source != domain.ReplyFallback {
		t.Errorf("Source = %q, want fallback", result.Source)
	}
	if result.FallbackReason != "product not found" {
		t.Errorf("FallbackReason = %q", result.FallbackReason)
	}
}

func TestEveryStateHasAHandler(t *testing.T) {
	f := newTestFunnel(&mockProductStore{products: testProducts()}, okCompletion())

	for _, state := range domain.AllFunnelStates() {
		result := step(f, customerIn(state, "prod-marketing"), "oi")
		if result == nil {
			t.Fatalf("state %q: nil result", state)
		}
		if result.NextState == "" {
			t.Errorf("state %q: empty NextState", state)
		}
		if result.Reply == "" {
			t.Errorf("state %q: empty Reply", state)
		}
	}
}
