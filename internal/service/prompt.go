package service

import (
	"fmt"
	"strings"

	"github.com/boddenberg/vende-agent-go/internal/domain"
)

// ============================================================
// Montagem de prompts — template único, parametrizado
// ============================================================
//
// Todos os passos model-assisted usam o MESMO template de persona,
// parametrizado por produto, ângulo de venda e instrução da etapa. Nada de
// uma função de prompt por estado: etapa é dado, não código.

// FallbackReply é a resposta fixa usada quando o serviço de completion
// falha ou devolve lixo. O turno segue normalmente com ela.
const FallbackReply = "Desculpe, estou com um problema técnico no momento. Pode tentar novamente em alguns minutos?"

// strategyAngles traduz o nome da estratégia no ângulo de persuasão que
// entra no prompt. Estratégia desconhecida cai no ângulo consultivo.
var strategyAngles = map[string]string{
	domain.StrategyConsultivo: "Conduza como um consultor: entenda a necessidade antes de vender, faça uma pergunta de qualificação e conecte a resposta aos benefícios do curso.",
	domain.StrategyEscassez:   "Use escassez genuína: mencione que a condição atual é por tempo limitado e que as vagas com esse preço estão acabando. Nunca invente números falsos.",
	domain.StrategyEmocional:  "Apele para a transformação pessoal: pinte o antes e depois na vida do aluno, usando histórias curtas e linguagem calorosa.",
	domain.StrategyRacional:   "Argumente com lógica: custo-benefício, retorno do investimento e comparação objetiva entre o preço e o valor entregue.",
}

// stageInstructions é a instrução específica de cada etapa model-assisted.
var stageInstructions = map[domain.FunnelState]string{
	domain.StateSpecialistOffer:         "Apresente a oferta do curso de forma persuasiva em no máximo 3 frases. Cite o preço promocional e termine convidando para clicar no link de pagamento.",
	domain.StateAwaitingPurchaseOutcome: "O cliente ainda não concluiu a compra. Responda à objeção dele de forma empática e reconduza para o fechamento, sem pressionar demais.",
	domain.StateSpecialistFollowup:      "O cliente relatou um problema na compra. Acolha a dificuldade descrita, proponha a solução mais simples e reenvie o link de pagamento.",
}

// PromptInput reúne tudo que o template precisa para montar um prompt.
type PromptInput struct {
	Product  *domain.Product
	Strategy string
	Stage    domain.FunnelState
	History  []domain.ConversationTurn
	Message  string

	// HistoryWindow limita quantos turnos recentes entram no contexto.
	HistoryWindow int

	// Mode escolhe o contrato de saída pedido ao modelo; vazio assume
	// CompletionModeJSON.
	Mode string
}

// BuildPrompt monta os blocos do prompt para o serviço de completion.
// O bloco system carrega persona + produto + ângulo + instrução da etapa e
// o contrato de saída do modo pedido; o bloco user carrega a janela de
// contexto e a mensagem atual.
func BuildPrompt(in PromptInput) *domain.CompletionRequest {
	var sys strings.Builder

	sys.WriteString("Você é a Sofia, especialista em vendas de cursos online. ")
	sys.WriteString("Responda sempre em português do Brasil, em tom próximo e profissional, sem se identificar como um modelo de linguagem.\n\n")

	if p := in.Product; p != nil {
		fmt.Fprintf(&sys, "Produto em negociação: %s\n", p.Name)
		if p.Description != "" {
			fmt.Fprintf(&sys, "Descrição: %s\n", p.Description)
		}
		if len(p.KeyBenefits) > 0 {
			fmt.Fprintf(&sys, "Benefícios: %s\n", strings.Join(p.KeyBenefits, "; "))
		}
		if p.OriginalPrice > p.Price {
			fmt.Fprintf(&sys, "Preço: de R$ %.2f por R$ %.2f\n", p.OriginalPrice, p.Price)
		} else {
			fmt.Fprintf(&sys, "Preço: R$ %.2f\n", p.Price)
		}
		if p.PaymentLink != "" {
			fmt.Fprintf(&sys, "Link de pagamento: %s\n", p.PaymentLink)
		}
		sys.WriteString("\n")
	}

	angle, ok := strategyAngles[in.Strategy]
	if !ok {
		angle = strategyAngles[domain.DefaultStrategy]
	}
	sys.WriteString("Ângulo de venda deste turno: ")
	sys.WriteString(angle)
	sys.WriteString("\n\n")

	if instruction, ok := stageInstructions[in.Stage]; ok {
		sys.WriteString("Etapa atual: ")
		sys.WriteString(instruction)
		sys.WriteString("\n\n")
	}

	mode := in.Mode
	if mode == "" {
		mode = domain.CompletionModeJSON
	}
	if mode == domain.CompletionModeJSON {
		sys.WriteString(`Responda APENAS com um JSON válido neste formato, sem markdown:
{"analysis":{"intent":"<rótulo curto da intenção>","sentiment":<número entre -1 e 1>},"response":"<sua resposta ao cliente>"}`)
	} else {
		sys.WriteString("Responda APENAS com o texto da mensagem ao cliente, sem markdown e sem comentar o formato.")
	}

	var user strings.Builder
	window := in.History
	if in.HistoryWindow > 0 && len(window) > in.HistoryWindow {
		window = window[len(window)-in.HistoryWindow:]
	}
	if len(window) > 0 {
		user.WriteString("Conversa até aqui:\n")
		for _, turn := range window {
			if turn.Direction == domain.DirectionIncoming {
				fmt.Fprintf(&user, "Cliente: %s\n", turn.Content)
			} else {
				fmt.Fprintf(&user, "Sofia: %s\n", turn.Content)
			}
		}
		user.WriteString("\n")
	}
	fmt.Fprintf(&user, "Mensagem atual do cliente: %s", in.Message)

	return &domain.CompletionRequest{
		Blocks: []domain.PromptBlock{
			{Role: domain.RoleSystem, Text: sys.String()},
			{Role: domain.RoleUser, Text: user.String()},
		},
		Mode:        mode,
		Temperature: 0.7,
	}
}
