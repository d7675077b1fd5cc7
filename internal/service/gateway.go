package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/boddenberg/vende-agent-go/internal/domain"
	"github.com/boddenberg/vende-agent-go/internal/infra/observability"
	"github.com/boddenberg/vende-agent-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ============================================================
// Gateway de conversas — orquestra um turno de ponta a ponta
// ============================================================
//
// Fluxo: mensagem chega → carrega/cria cliente e histórico → seletor
// escolhe a estratégia → funil computa resposta e transição → turno e
// cliente são persistidos → resposta volta ao transporte.
//
// Persistência do desfecho (venda, record_success/failure) é best-effort:
// falha ali é logada mas nunca segura a resposta ao cliente.

// latestSalesLimit é quantas vendas recentes o dashboard lista.
const latestSalesLimit = 10

// Gateway wires the selector, the funnel and the stores per inbound message.
type Gateway struct {
	customers     port.CustomerStore
	conversations port.ConversationStore
	products      port.ProductStore
	sales         port.SaleStore
	dashboards    port.DashboardReader
	selector      *Selector
	funnel        *FunnelService
	metrics       *observability.Metrics
	logger        *zap.Logger

	historyWindow int
}

// NewGateway creates the conversation gateway.
func NewGateway(
	customers port.CustomerStore,
	conversations port.ConversationStore,
	products port.ProductStore,
	sales port.SaleStore,
	dashboards port.DashboardReader,
	selector *Selector,
	funnel *FunnelService,
	metrics *observability.Metrics,
	logger *zap.Logger,
	historyWindow int,
) *Gateway {
	return &Gateway{
		customers:     customers,
		conversations: conversations,
		products:      products,
		sales:         sales,
		dashboards:    dashboards,
		selector:      selector,
		funnel:        funnel,
		metrics:       metrics,
		logger:        logger,
		historyWindow: historyWindow,
	}
}

// HandleMessage processa uma mensagem inbound e devolve a resposta.
func (g *Gateway) HandleMessage(ctx context.Context, msg *domain.InboundMessage) (*domain.OutboundReply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "Gateway.HandleMessage")
	defer span.End()
	span.SetAttributes(attribute.String("customer.external_id", msg.Sender))

	start := time.Now()
	defer func() {
		g.metrics.RecordRequestDuration("webhook", time.Since(start))
	}()

	if strings.TrimSpace(msg.Sender) == "" || strings.TrimSpace(msg.Message) == "" {
		return nil, &domain.ErrValidation{Field: "message", Message: "sender and message are required"}
	}

	customer, err := g.loadOrCreateCustomer(ctx, msg.Sender)
	if err != nil {
		return nil, err
	}

	history, err := g.conversations.History(ctx, customer.ID, g.historyWindow)
	if err != nil {
		// Sem histórico a conversa segue, só com menos contexto.
		g.logger.Warn("falha ao carregar histórico",
			zap.String("customer_id", customer.ID),
			zap.Error(err),
		)
		g.metrics.IncrExternalError("conversations")
		history = nil
	}

	analysis := buildAnalysis(msg.Message, history)
	strategy := g.selector.Select(ctx, analysis)

	result := g.funnel.Step(ctx, customer, history, strategy, msg.Message)

	now := time.Now().UTC()
	g.applyTransition(customer, result, now)

	outgoing := domain.ConversationTurn{
		ID:           uuid.NewString(),
		CustomerID:   customer.ID,
		Direction:    domain.DirectionOutgoing,
		Content:      result.Reply,
		Timestamp:    now.Add(time.Millisecond),
		StrategyUsed: strategy,
	}
	turns := []domain.ConversationTurn{
		{
			ID:             uuid.NewString(),
			CustomerID:     customer.ID,
			Direction:      domain.DirectionIncoming,
			Content:        msg.Message,
			Timestamp:      now,
			SentimentScore: analysis.Sentiment,
		},
	}
	if result.Analysis != nil {
		// Passo model-assisted: a análise do modelo vale mais que o
		// sentimento herdado do histórico. Gravada no turno de saída,
		// ela vira o sentimento herdado dos próximos turnos e entra no
		// snapshot de sucesso se a venda fechar agora.
		outgoing.SentimentScore = result.Analysis.Sentiment
		analysis.Sentiment = result.Analysis.Sentiment
		analysis.Intent = result.Analysis.Intent
	}
	turns = append(turns, outgoing)
	if err := g.conversations.AppendTurns(ctx, turns); err != nil {
		g.logger.Error("falha ao persistir turno",
			zap.String("customer_id", customer.ID),
			zap.Error(err),
		)
		g.metrics.IncrExternalError("conversations")
	}

	if err := g.customers.Update(ctx, customer); err != nil {
		g.logger.Error("falha ao atualizar cliente",
			zap.String("customer_id", customer.ID),
			zap.Error(err),
		)
		g.metrics.IncrExternalError("customers")
	}

	if result.SaleClosed {
		g.recordSale(ctx, customer, strategy, analysis, len(history)+len(turns))
	}
	if result.Abandoned {
		if err := g.selector.RecordFailure(ctx, strategy); err != nil {
			g.logger.Error("falha ao registrar desistência", zap.Error(err))
		}
	}

	if result.Source == domain.ReplyFallback {
		g.logger.Warn("turno respondido com fallback",
			zap.String("customer_id", customer.ID),
			zap.String("reason", result.FallbackReason),
		)
	}

	return &domain.OutboundReply{RecipientID: msg.Sender, Text: result.Reply}, nil
}

func (g *Gateway) loadOrCreateCustomer(ctx context.Context, externalID string) (*domain.Customer, error) {
	customer, err := g.customers.GetByExternalID(ctx, externalID)
	if err == nil {
		return customer, nil
	}

	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		return nil, err
	}

	now := time.Now().UTC()
	created, err := g.customers.Create(ctx, &domain.Customer{
		ExternalID:      externalID,
		FunnelState:     domain.StateStart,
		FirstContact:    now,
		LastInteraction: now,
	})
	if err != nil {
		return nil, err
	}

	g.logger.Info("cliente novo no funil", zap.String("external_id", externalID))
	return created, nil
}

// applyTransition grava no cliente o resultado do passo do funil.
func (g *Gateway) applyTransition(customer *domain.Customer, result *domain.StepResult, now time.Time) {
	customer.FunnelState = result.NextState
	if result.SelectedProductID != "" {
		customer.SelectedProductID = result.SelectedProductID
	}
	customer.TotalInteractions++
	customer.LastInteraction = now

	if result.SaleClosed {
		customer.Purchased = true
		customer.PurchaseDate = &now
	}
}

// recordSale registra a venda e o sucesso da estratégia. Best-effort: a
// transição do funil já aconteceu e não volta atrás se isso falhar.
func (g *Gateway) recordSale(ctx context.Context, customer *domain.Customer, strategy string, analysis *domain.CustomerAnalysis, messageCount int) {
	product, err := g.products.GetByID(ctx, customer.SelectedProductID)
	if err != nil {
		g.logger.Error("venda fechada mas produto não encontrado",
			zap.String("customer_id", customer.ID),
			zap.String("product_id", customer.SelectedProductID),
			zap.Error(err),
		)
		return
	}

	sale := &domain.Sale{
		CustomerID:           customer.ID,
		ProductID:            product.ID,
		ProductName:          product.Name,
		SaleAmount:           product.Price,
		StrategyUsed:         strategy,
		ConversationMessages: messageCount,
		SaleDate:             time.Now().UTC(),
	}
	if _, err := g.sales.CreateSale(ctx, sale); err != nil {
		g.logger.Error("falha ao registrar venda",
			zap.String("customer_id", customer.ID),
			zap.Error(err),
		)
		g.metrics.IncrExternalError("sales")
	}

	keywords := make(map[string]float64, len(analysis.Keywords))
	for _, kw := range analysis.Keywords {
		keywords[kw] = 1.0
	}
	sctx := domain.SuccessContext{Keywords: keywords, AvgSentiment: analysis.Sentiment}
	if err := g.selector.RecordSuccess(ctx, strategy, sctx); err != nil {
		g.logger.Error("falha ao registrar sucesso da estratégia",
			zap.String("strategy", strategy),
			zap.Error(err),
		)
	}
}

// SimulateSale fecha uma venda manualmente (uso administrativo, para testar
// o ciclo de aprendizado de ponta a ponta).
func (g *Gateway) SimulateSale(ctx context.Context, externalID, productID string) (*domain.Sale, error) {
	ctx, span := tracer.Start(ctx, "Gateway.SimulateSale")
	defer span.End()

	customer, err := g.customers.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	if productID == "" {
		productID = customer.SelectedProductID
	}
	if productID == "" {
		return nil, &domain.ErrValidation{Field: "product_id", Message: "customer has no selected product"}
	}

	product, err := g.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	strategy := lastStrategyUsed(ctx, g.conversations, customer.ID, g.historyWindow)

	sale, err := g.sales.CreateSale(ctx, &domain.Sale{
		CustomerID:   customer.ID,
		ProductID:    product.ID,
		ProductName:  product.Name,
		SaleAmount:   product.Price,
		StrategyUsed: strategy,
		SaleDate:     now,
	})
	if err != nil {
		return nil, err
	}

	customer.Purchased = true
	customer.PurchaseDate = &now
	customer.FunnelState = domain.StateCompleted
	customer.SelectedProductID = product.ID
	if err := g.customers.Update(ctx, customer); err != nil {
		g.logger.Error("falha ao atualizar cliente na venda simulada", zap.Error(err))
	}

	if err := g.selector.RecordSuccess(ctx, strategy, domain.SuccessContext{}); err != nil {
		g.logger.Error("falha ao registrar sucesso da venda simulada", zap.Error(err))
	}

	return sale, nil
}

// lastStrategyUsed recupera a estratégia do último turno outgoing; sem
// histórico cai na padrão.
func lastStrategyUsed(ctx context.Context, store port.ConversationStore, customerID string, window int) string {
	history, err := store.History(ctx, customerID, window)
	if err != nil {
		return domain.DefaultStrategy
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Direction == domain.DirectionOutgoing && history[i].StrategyUsed != "" {
			return history[i].StrategyUsed
		}
	}
	return domain.DefaultStrategy
}

// Conversation devolve o cliente e seu histórico recente.
func (g *Gateway) Conversation(ctx context.Context, externalID string, limit int) (*domain.Customer, []domain.ConversationTurn, error) {
	ctx, span := tracer.Start(ctx, "Gateway.Conversation")
	defer span.End()

	customer, err := g.customers.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, nil, err
	}

	history, err := g.conversations.History(ctx, customer.ID, limit)
	if err != nil {
		return nil, nil, err
	}
	return customer, history, nil
}

// Products lista o catálogo ativo.
func (g *Gateway) Products(ctx context.Context) ([]domain.Product, error) {
	return g.products.ListActive(ctx)
}

// Dashboard agrega os números do painel administrativo, com as leituras
// independentes em paralelo.
func (g *Gateway) Dashboard(ctx context.Context) (*domain.DashboardOverview, error) {
	ctx, span := tracer.Start(ctx, "Gateway.Dashboard")
	defer span.End()

	overview := &domain.DashboardOverview{}
	weekAgo := time.Now().UTC().AddDate(0, 0, -7)

	g2, gCtx := errgroup.WithContext(ctx)

	g2.Go(func() error {
		n, err := g.dashboards.CountCustomers(gCtx)
		overview.TotalCustomers = n
		return err
	})
	g2.Go(func() error {
		n, err := g.dashboards.CountCustomersSince(gCtx, weekAgo)
		overview.RecentCustomers = n
		return err
	})
	g2.Go(func() error {
		n, err := g.dashboards.CountTurns(gCtx)
		overview.TotalConversations = n
		return err
	})
	g2.Go(func() error {
		n, err := g.dashboards.CountSales(gCtx)
		overview.TotalSales = n
		return err
	})
	g2.Go(func() error {
		n, err := g.dashboards.CountSalesSince(gCtx, weekAgo)
		overview.RecentSales = n
		return err
	})
	g2.Go(func() error {
		total, err := g.dashboards.SalesRevenue(gCtx)
		overview.TotalRevenue = total
		return err
	})
	g2.Go(func() error {
		sales, err := g.sales.RecentSales(gCtx, latestSalesLimit)
		overview.LatestSales = sales
		return err
	})
	g2.Go(func() error {
		stats, err := g.selector.Stats(gCtx)
		overview.LearningStats = stats
		return err
	})

	if err := g2.Wait(); err != nil {
		return nil, err
	}

	if overview.TotalCustomers > 0 {
		overview.ConversionRate = 100 * float64(overview.TotalSales) / float64(overview.TotalCustomers)
	}
	return overview, nil
}

// --- Análise leve do cliente ---

// buildAnalysis monta a CustomerAnalysis do turno sem NLP: palavras-chave
// por tokenização simples da mensagem e sentimento herdado do último score
// gravado no histórico. Campos ausentes ficam neutros.
func buildAnalysis(message string, history []domain.ConversationTurn) *domain.CustomerAnalysis {
	analysis := &domain.CustomerAnalysis{Keywords: extractKeywords(message)}

	for i := len(history) - 1; i >= 0; i-- {
		if history[i].SentimentScore != 0 {
			analysis.Sentiment = history[i].SentimentScore
			break
		}
	}
	return analysis
}

// extractKeywords tokeniza a mensagem e descarta palavras curtas demais
// para carregar sinal. Limitado a 8 termos.
func extractKeywords(message string) []string {
	fields := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') &&
			!strings.ContainsRune("áàâãéêíóôõúüç", r)
	})

	keywords := make([]string, 0, 8)
	seen := map[string]bool{}
	for _, f := range fields {
		if len([]rune(f)) < 4 || seen[f] {
			continue
		}
		seen[f] = true
		keywords = append(keywords, f)
		if len(keywords) == 8 {
			break
		}
	}
	return keywords
}
