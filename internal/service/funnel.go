package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/boddenberg/vende-agent-go/internal/domain"
	"github.com/boddenberg/vende-agent-go/internal/infra/observability"
	"github.com/boddenberg/vende-agent-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Máquina de estados do funil de vendas
// ============================================================
//
// Step é uma função pura de (cliente, histórico, estratégia, mensagem) mais
// leituras do catálogo: nenhum handler guarda estado escondido. Todo estado
// conhecido tem um case explícito no switch; estado desconhecido cai no
// handler default de propósito.
//
// Falha do serviço de completion nunca trava o turno: o texto degrada para
// FallbackReply e a transição do estado atual se aplica do mesmo jeito.

const whatsAppLink = "https://wa.me/5511999999999?text=Oi!%20Quero%20saber%20mais%20sobre%20os%20cursos"

// FunnelService computes the next reply and funnel transition for a turn.
type FunnelService struct {
	products   port.ProductStore
	completion port.CompletionCaller
	catalog    port.Cache[[]domain.Product]
	metrics    *observability.Metrics
	logger     *zap.Logger

	historyWindow  int
	completionMode string
}

// NewFunnelService creates the funnel state machine service. completionMode
// vazio assume o modo JSON.
func NewFunnelService(
	products port.ProductStore,
	completion port.CompletionCaller,
	catalog port.Cache[[]domain.Product],
	metrics *observability.Metrics,
	logger *zap.Logger,
	historyWindow int,
	completionMode string,
) *FunnelService {
	if completionMode == "" {
		completionMode = domain.CompletionModeJSON
	}
	return &FunnelService{
		products:       products,
		completion:     completion,
		catalog:        catalog,
		metrics:        metrics,
		logger:         logger,
		historyWindow:  historyWindow,
		completionMode: completionMode,
	}
}

// stepInput agrupa as entradas de um passo.
type stepInput struct {
	customer *domain.Customer
	history  []domain.ConversationTurn
	strategy string
	message  string
}

// Step processa um turno: resolve o handler do estado atual do cliente e
// devolve a resposta, a transição e os sinais de desfecho.
func (f *FunnelService) Step(ctx context.Context, customer *domain.Customer, history []domain.ConversationTurn, strategy, message string) *domain.StepResult {
	ctx, span := tracer.Start(ctx, "Funnel.Step")
	defer span.End()
	span.SetAttributes(
		attribute.String("funnel.state", string(customer.FunnelState)),
		attribute.String("funnel.strategy", strategy),
	)

	in := stepInput{
		customer: customer,
		history:  history,
		strategy: strategy,
		message:  normalize(message),
	}

	result := f.dispatch(ctx, in)

	f.metrics.IncrFunnelTransition(string(customer.FunnelState), string(result.NextState))
	f.metrics.IncrReply(string(result.Source))
	span.SetAttributes(
		attribute.String("funnel.next_state", string(result.NextState)),
		attribute.String("funnel.reply_source", string(result.Source)),
	)
	return result
}

func (f *FunnelService) dispatch(ctx context.Context, in stepInput) *domain.StepResult {
	state := in.customer.FunnelState
	if state == "" {
		state = domain.StateStart
	}

	// Estado specialist_* sem produto qualificado é dado corrompido:
	// degrada para o default com o motivo explícito, sem explodir.
	if state.IsSpecialist() && in.customer.SelectedProductID == "" {
		f.logger.Warn("estado de especialista sem produto selecionado",
			zap.String("customer_id", in.customer.ID),
			zap.String("state", string(state)),
		)
		return f.handleDefault(in, "missing selected product")
	}

	switch state {
	case domain.StateStart:
		return f.handleStart(in)
	case domain.StateAwaitingChoice:
		return f.handleAwaitingChoice(ctx, in)
	case domain.StateListProducts:
		return f.handleListProducts(ctx, in)
	case domain.StateAwaitingProductSel:
		return f.handleAwaitingProductSelection(ctx, in)
	case domain.StateGetPrice:
		return f.handleGetPrice(ctx, in)
	case domain.StateWhatsAppRedirect:
		return f.handleWhatsAppRedirect(in)
	case domain.StateSpecialistIntro:
		return f.handleSpecialistIntro(ctx, in)
	case domain.StateAwaitingOfferChoice:
		return f.handleAwaitingOfferChoice(ctx, in)
	case domain.StateSpecialistOffer:
		return f.handleSpecialistOffer(ctx, in)
	case domain.StateAwaitingPurchaseOutcome:
		return f.handleAwaitingPurchaseOutcome(ctx, in)
	case domain.StateSpecialistProblem:
		return f.handleSpecialistProblem(in)
	case domain.StateAwaitingProblemCategory:
		return f.handleAwaitingProblemCategory(ctx, in)
	case domain.StateAwaitingSpecificDesc:
		return f.handleAwaitingSpecificDescription(ctx, in)
	case domain.StateSpecialistFollowup:
		return f.handleSpecialistFollowup(ctx, in)
	case domain.StateSpecialistSuccess:
		return f.handleSpecialistSuccess(ctx, in)
	case domain.StateCompleted:
		return f.handleCompleted(in)
	case domain.StateDefault:
		return f.handleDefault(in, "")
	default:
		f.logger.Warn("estado de funil desconhecido",
			zap.String("customer_id", in.customer.ID),
			zap.String("state", string(state)),
		)
		return f.handleDefault(in, fmt.Sprintf("unknown state %q", state))
	}
}

// --- Boas-vindas e qualificação ---

func (f *FunnelService) handleStart(in stepInput) *domain.StepResult {
	reply := strings.Join([]string{
		"Oi! 👋 Eu sou a Sofia, consultora de cursos. Que bom te ver por aqui!",
		"Como posso te ajudar hoje?",
		domain.ChoiceChip("Ver Cursos"),
		domain.ChoiceChip("Preços"),
		domain.ChoiceChip("Falar no WhatsApp"),
	}, "\n")

	return &domain.StepResult{
		Reply:     reply,
		NextState: domain.StateAwaitingChoice,
		Source:    domain.ReplyTemplated,
	}
}

func (f *FunnelService) handleAwaitingChoice(ctx context.Context, in stepInput) *domain.StepResult {
	switch {
	case strings.Contains(in.message, "ver cursos"):
		return f.listProducts(ctx, in, "Esses são os cursos disponíveis hoje. Qual te interessa?")
	case strings.Contains(in.message, "preço"), strings.Contains(in.message, "valor"):
		return f.priceSummary(ctx, in, domain.StateAwaitingChoice)
	case strings.Contains(in.message, "whatsapp"):
		return f.whatsAppRedirect()
	default:
		return &domain.StepResult{
			Reply:     "Não entendi muito bem. 🙂 Vamos recomeçar?",
			NextState: domain.StateStart,
			Source:    domain.ReplyTemplated,
		}
	}
}

func (f *FunnelService) handleListProducts(ctx context.Context, in stepInput) *domain.StepResult {
	return f.listProducts(ctx, in, "Esses são os cursos disponíveis hoje. Qual te interessa?")
}

func (f *FunnelService) handleGetPrice(ctx context.Context, in stepInput) *domain.StepResult {
	return f.priceSummary(ctx, in, domain.StateAwaitingChoice)
}

func (f *FunnelService) handleWhatsAppRedirect(in stepInput) *domain.StepResult {
	return f.whatsAppRedirect()
}

func (f *FunnelService) whatsAppRedirect() *domain.StepResult {
	reply := strings.Join([]string{
		"Perfeito! Me chama no WhatsApp que a gente continua por lá. 📲",
		domain.LinkButton("Abrir WhatsApp", whatsAppLink),
	}, "\n")

	return &domain.StepResult{
		Reply:     reply,
		NextState: domain.StateCompleted,
		Source:    domain.ReplyTemplated,
	}
}

// listProducts monta o catálogo como quick-replies numeradas e move o
// cliente para a seleção de produto.
func (f *FunnelService) listProducts(ctx context.Context, in stepInput, header string) *domain.StepResult {
	products, err := f.activeProducts(ctx)
	if err != nil || len(products) == 0 {
		if err != nil {
			f.logger.Error("falha ao listar catálogo", zap.Error(err))
			f.metrics.IncrExternalError("catalog")
		}
		return &domain.StepResult{
			Reply:          "Estou sem acesso ao catálogo agora. 😕 Pode tentar de novo em instantes?",
			NextState:      domain.StateAwaitingChoice,
			Source:         domain.ReplyFallback,
			FallbackReason: "catalog unavailable",
		}
	}

	lines := []string{header}
	for i, p := range products {
		lines = append(lines, fmt.Sprintf("%d. %s — R$ %.2f", i+1, p.Name, p.Price))
	}
	for _, p := range products {
		lines = append(lines, domain.ChoiceChip(p.Name))
	}

	return &domain.StepResult{
		Reply:     strings.Join(lines, "\n"),
		NextState: domain.StateAwaitingProductSel,
		Source:    domain.ReplyTemplated,
	}
}

func (f *FunnelService) priceSummary(ctx context.Context, in stepInput, next domain.FunnelState) *domain.StepResult {
	products, err := f.activeProducts(ctx)
	if err != nil || len(products) == 0 {
		if err != nil {
			f.logger.Error("falha ao montar resumo de preços", zap.Error(err))
			f.metrics.IncrExternalError("catalog")
		}
		return &domain.StepResult{
			Reply:          "Estou sem acesso aos preços agora. 😕 Pode tentar de novo em instantes?",
			NextState:      next,
			Source:         domain.ReplyFallback,
			FallbackReason: "catalog unavailable",
		}
	}

	lines := []string{"Olha só os valores de hoje:"}
	for _, p := range products {
		if p.OriginalPrice > p.Price {
			lines = append(lines, fmt.Sprintf("• %s: de R$ %.2f por R$ %.2f", p.Name, p.OriginalPrice, p.Price))
		} else {
			lines = append(lines, fmt.Sprintf("• %s: R$ %.2f", p.Name, p.Price))
		}
	}
	lines = append(lines, "", "Quer conhecer algum deles melhor?", domain.ChoiceChip("Ver Cursos"))

	return &domain.StepResult{
		Reply:     strings.Join(lines, "\n"),
		NextState: next,
		Source:    domain.ReplyTemplated,
	}
}

// handleAwaitingProductSelection tenta casar a mensagem com um produto do
// catálogo (por número da lista ou por nome). Mensagem imparseável relista
// e fica no mesmo estado.
func (f *FunnelService) handleAwaitingProductSelection(ctx context.Context, in stepInput) *domain.StepResult {
	products, err := f.activeProducts(ctx)
	if err != nil {
		f.logger.Error("falha ao carregar catálogo na seleção", zap.Error(err))
		f.metrics.IncrExternalError("catalog")
		return &domain.StepResult{
			Reply:          "Estou sem acesso ao catálogo agora. 😕 Pode repetir daqui a pouco?",
			NextState:      domain.StateAwaitingProductSel,
			Source:         domain.ReplyFallback,
			FallbackReason: "catalog unavailable",
		}
	}

	product := matchProduct(products, in.message)
	if product == nil {
		result := f.listProducts(ctx, in, "Não achei esse curso. 🤔 Escolhe um da lista, por favor:")
		result.NextState = domain.StateAwaitingProductSel
		return result
	}

	// Qualificou: a apresentação do especialista é a ação de entrada do
	// próximo estado, emitida já neste turno.
	in.customer.SelectedProductID = product.ID
	return &domain.StepResult{
		Reply:             f.specialistIntroReply(product),
		NextState:         domain.StateSpecialistIntro,
		SelectedProductID: product.ID,
		Source:            domain.ReplyTemplated,
	}
}

// --- Especialista do produto ---

func (f *FunnelService) specialistIntroReply(p *domain.Product) string {
	lines := []string{
		fmt.Sprintf("Ótima escolha! 🎉 Eu sou especialista no %s.", p.Name),
	}
	if p.Description != "" {
		lines = append(lines, p.Description)
	}
	if len(p.KeyBenefits) > 0 {
		lines = append(lines, "O que você vai levar:")
		for _, b := range p.KeyBenefits {
			lines = append(lines, "✅ "+b)
		}
	}
	lines = append(lines,
		"Por onde quer começar?",
		domain.ChoiceChip("Quero a oferta"),
		domain.ChoiceChip("Conteúdo gratuito"),
	)
	return strings.Join(lines, "\n")
}

// handleSpecialistIntro: a apresentação já foi emitida na transição de
// entrada, então uma mensagem recebida aqui é a escolha pós-intro.
func (f *FunnelService) handleSpecialistIntro(ctx context.Context, in stepInput) *domain.StepResult {
	return f.handleAwaitingOfferChoice(ctx, in)
}

func (f *FunnelService) handleAwaitingOfferChoice(ctx context.Context, in stepInput) *domain.StepResult {
	product, result := f.requireProduct(ctx, in)
	if result != nil {
		return result
	}

	switch {
	case strings.Contains(in.message, "oferta"):
		return f.specialistOffer(ctx, in, product)
	case strings.Contains(in.message, "gratuito"), strings.Contains(in.message, "grátis"):
		reply := []string{"Claro! Entra no nosso grupo gratuito e já vai aproveitando: 😊"}
		if product.FreeGroupLink != "" {
			reply = append(reply, domain.LinkButton("Grupo gratuito", product.FreeGroupLink))
		}
		reply = append(reply,
			"Quando quiser, a oferta especial continua aqui:",
			domain.ChoiceChip("Quero a oferta"),
		)
		return &domain.StepResult{
			Reply:     strings.Join(reply, "\n"),
			NextState: domain.StateAwaitingOfferChoice,
			Source:    domain.ReplyTemplated,
		}
	default:
		return &domain.StepResult{
			Reply: strings.Join([]string{
				"Tenho uma condição especial te esperando. Quer conferir? 👀",
				domain.ChoiceChip("Quero a oferta"),
			}, "\n"),
			NextState: domain.StateAwaitingOfferChoice,
			Source:    domain.ReplyTemplated,
		}
	}
}

func (f *FunnelService) handleSpecialistOffer(ctx context.Context, in stepInput) *domain.StepResult {
	product, result := f.requireProduct(ctx, in)
	if result != nil {
		return result
	}
	return f.specialistOffer(ctx, in, product)
}

// specialistOffer gera o texto da oferta via modelo, com fallback templado
// que preserva o link de pagamento. A transição vale nos dois casos.
func (f *FunnelService) specialistOffer(ctx context.Context, in stepInput, product *domain.Product) *domain.StepResult {
	result := f.modelReply(ctx, in, product, domain.StateSpecialistOffer)
	if result.Source == domain.ReplyFallback {
		lines := []string{}
		if product.OriginalPrice > product.Price {
			lines = append(lines, fmt.Sprintf("Hoje o %s está saindo de R$ %.2f por R$ %.2f! 🔥", product.Name, product.OriginalPrice, product.Price))
		} else {
			lines = append(lines, fmt.Sprintf("O %s está por R$ %.2f!", product.Name, product.Price))
		}
		if product.PaymentLink != "" {
			lines = append(lines, domain.LinkButton("Garantir minha vaga", product.PaymentLink))
		}
		result.Reply = strings.Join(lines, "\n")
		result.Source = domain.ReplyTemplated
		result.FallbackReason = ""
	} else if product.PaymentLink != "" {
		result.Reply = result.Reply + "\n" + domain.LinkButton("Garantir minha vaga", product.PaymentLink)
	}

	result.NextState = domain.StateAwaitingPurchaseOutcome
	return result
}

func (f *FunnelService) handleAwaitingPurchaseOutcome(ctx context.Context, in stepInput) *domain.StepResult {
	product, result := f.requireProduct(ctx, in)
	if result != nil {
		return result
	}

	switch {
	case strings.Contains(in.message, "comprei"), strings.Contains(in.message, "paguei"):
		return f.successReply(product)
	case strings.Contains(in.message, "problema"):
		return f.handleSpecialistProblem(in)
	case strings.Contains(in.message, "não quero"), strings.Contains(in.message, "nao quero"),
		strings.Contains(in.message, "desisto"):
		return &domain.StepResult{
			Reply:     "Sem problemas! 😊 Se mudar de ideia, é só me chamar. Vou deixar a porta aberta pra você.",
			NextState: domain.StateCompleted,
			Source:    domain.ReplyTemplated,
			Abandoned: true,
		}
	default:
		result := f.modelReply(ctx, in, product, domain.StateAwaitingPurchaseOutcome)
		if result.Source == domain.ReplyFallback {
			result.Reply = FallbackReply
		}
		result.NextState = domain.StateAwaitingPurchaseOutcome
		return result
	}
}

// --- Triagem de problemas ---

func (f *FunnelService) handleSpecialistProblem(in stepInput) *domain.StepResult {
	return &domain.StepResult{
		Reply: strings.Join([]string{
			"Poxa, sinto muito! Vamos resolver isso juntos. O que aconteceu?",
			domain.ChoiceChip("Problema no pagamento"),
			domain.ChoiceChip("Link não funciona"),
			domain.ChoiceChip("Outro problema"),
		}, "\n"),
		NextState: domain.StateAwaitingProblemCategory,
		Source:    domain.ReplyTemplated,
	}
}

func (f *FunnelService) handleAwaitingProblemCategory(ctx context.Context, in stepInput) *domain.StepResult {
	product, result := f.requireProduct(ctx, in)
	if result != nil {
		return result
	}

	switch {
	case strings.Contains(in.message, "pagamento"):
		return f.freshLinkReply(product, "Gerei um link de pagamento novinho pra você:")
	case strings.Contains(in.message, "link"), strings.Contains(in.message, "cupom"):
		return f.freshLinkReply(product, "Aqui está um link atualizado, pode usar sem medo:")
	default:
		return &domain.StepResult{
			Reply:     "Me conta com mais detalhes o que aconteceu? Assim consigo te ajudar melhor. 🙏",
			NextState: domain.StateAwaitingSpecificDesc,
			Source:    domain.ReplyTemplated,
		}
	}
}

func (f *FunnelService) freshLinkReply(product *domain.Product, header string) *domain.StepResult {
	lines := []string{header}
	if product.PaymentLink != "" {
		lines = append(lines, domain.LinkButton("Concluir pagamento", product.PaymentLink))
	}
	lines = append(lines, "Me avisa quando der certo! 😉")

	return &domain.StepResult{
		Reply:     strings.Join(lines, "\n"),
		NextState: domain.StateAwaitingPurchaseOutcome,
		Source:    domain.ReplyTemplated,
	}
}

func (f *FunnelService) handleAwaitingSpecificDescription(ctx context.Context, in stepInput) *domain.StepResult {
	product, result := f.requireProduct(ctx, in)
	if result != nil {
		return result
	}

	r := f.modelReply(ctx, in, product, domain.StateSpecialistFollowup)
	if r.Source == domain.ReplyFallback {
		return f.freshLinkReply(product, "Entendi! Tenta por este link que costuma resolver:")
	}
	if product.PaymentLink != "" {
		r.Reply = r.Reply + "\n" + domain.LinkButton("Concluir pagamento", product.PaymentLink)
	}
	r.NextState = domain.StateAwaitingPurchaseOutcome
	return r
}

func (f *FunnelService) handleSpecialistFollowup(ctx context.Context, in stepInput) *domain.StepResult {
	return f.handleAwaitingSpecificDescription(ctx, in)
}

// --- Fechamento ---

func (f *FunnelService) successReply(product *domain.Product) *domain.StepResult {
	lines := []string{
		"Parabéns pela decisão! 🎉 Tenho certeza que você vai amar o curso.",
		"Seu acesso chega no seu e-mail em alguns minutos.",
	}
	if product.FreeGroupLink != "" {
		lines = append(lines, domain.LinkButton("Entrar no grupo de alunos", product.FreeGroupLink))
	}

	return &domain.StepResult{
		Reply:      strings.Join(lines, "\n"),
		NextState:  domain.StateCompleted,
		Source:     domain.ReplyTemplated,
		SaleClosed: true,
	}
}

func (f *FunnelService) handleSpecialistSuccess(ctx context.Context, in stepInput) *domain.StepResult {
	product, result := f.requireProduct(ctx, in)
	if result != nil {
		return result
	}
	return f.successReply(product)
}

func (f *FunnelService) handleCompleted(in stepInput) *domain.StepResult {
	if strings.Contains(in.message, "recomeçar") || strings.Contains(in.message, "ver cursos") {
		return f.handleStart(in)
	}
	return &domain.StepResult{
		Reply: strings.Join([]string{
			"Obrigada pelo papo! 💛 Se quiser ver os cursos de novo, é só pedir.",
			domain.ChoiceChip("Recomeçar"),
		}, "\n"),
		NextState: domain.StateCompleted,
		Source:    domain.ReplyTemplated,
	}
}

func (f *FunnelService) handleDefault(in stepInput, reason string) *domain.StepResult {
	result := f.handleStart(in)
	if reason != "" {
		result.Source = domain.ReplyFallback
		result.FallbackReason = reason
	}
	return result
}

// --- Apoio ---

// requireProduct resolve o produto selecionado do cliente. Produto sumido
// do catálogo degrada para o default com motivo explícito.
func (f *FunnelService) requireProduct(ctx context.Context, in stepInput) (*domain.Product, *domain.StepResult) {
	product, err := f.products.GetByID(ctx, in.customer.SelectedProductID)
	if err != nil {
		var notFound *domain.ErrNotFound
		if !errors.As(err, &notFound) {
			f.logger.Error("falha ao carregar produto selecionado",
				zap.String("product_id", in.customer.SelectedProductID),
				zap.Error(err),
			)
			f.metrics.IncrExternalError("catalog")
		}
		return nil, f.handleDefault(in, "product not found")
	}
	return product, nil
}

// modelReply executa o caminho model-assisted: monta o prompt, chama o
// serviço de completion e normaliza a saída. Erro vira ReplyFallback.
func (f *FunnelService) modelReply(ctx context.Context, in stepInput, product *domain.Product, stage domain.FunnelState) *domain.StepResult {
	req := BuildPrompt(PromptInput{
		Product:       product,
		Strategy:      in.strategy,
		Stage:         stage,
		History:       in.history,
		Message:       in.message,
		HistoryWindow: f.historyWindow,
		Mode:          f.completionMode,
	})

	resp, err := f.completion.Complete(ctx, req)
	if err != nil || resp == nil || strings.TrimSpace(resp.Text) == "" {
		if err != nil {
			f.logger.Warn("serviço de completion indisponível, usando fallback",
				zap.String("stage", string(stage)),
				zap.Error(err),
			)
			f.metrics.IncrExternalError("completion")
		}
		return &domain.StepResult{
			Reply:          FallbackReply,
			Source:         domain.ReplyFallback,
			FallbackReason: "completion unavailable",
		}
	}

	return &domain.StepResult{
		Reply:    strings.TrimSpace(resp.Text),
		Source:   domain.ReplyModel,
		Analysis: resp.Analysis,
	}
}

// activeProducts lê o catálogo do cache, indo ao banco só no miss.
func (f *FunnelService) activeProducts(ctx context.Context) ([]domain.Product, error) {
	if cached, ok := f.catalog.Get("active"); ok {
		f.metrics.IncrCacheHit("catalog")
		return cached, nil
	}
	f.metrics.IncrCacheMiss("catalog")

	products, err := f.products.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	f.catalog.Set("active", products)
	return products, nil
}

// matchProduct casa a mensagem com um produto por posição na lista ("1",
// "2", ...) ou por nome (contido na mensagem, caso-insensível).
func matchProduct(products []domain.Product, message string) *domain.Product {
	msg := normalize(message)

	if n, err := strconv.Atoi(strings.TrimSpace(msg)); err == nil {
		if n >= 1 && n <= len(products) {
			return &products[n-1]
		}
		return nil
	}

	for i := range products {
		if name := normalize(products[i].Name); name != "" && strings.Contains(msg, name) {
			return &products[i]
		}
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
