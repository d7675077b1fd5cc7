// Package domain — completion.go define o contrato com o serviço de
// completion (o modelo de linguagem externo).
//
// O serviço é tratado como uma caixa-preta de geração de texto: mandamos
// blocos de prompt com papel (system/user), recebemos ou texto livre ou um
// JSON estruturado, dependendo do modo. Toda a tolerância a resposta
// malformada fica do NOSSO lado — o fluxo da conversa nunca depende do
// modelo se comportar.
package domain

// Papéis dos blocos de prompt.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Modos de resposta do serviço de completion.
const (
	CompletionModeJSON = "json"
	CompletionModeText = "text"
)

// PromptBlock é um bloco de texto com papel. A ordem dos blocos importa:
// persona primeiro, depois contexto, depois a mensagem atual.
type PromptBlock struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// CompletionRequest é o payload enviado ao serviço de completion.
type CompletionRequest struct {
	Blocks []PromptBlock `json:"blocks"`

	// Mode: "json" pede o envelope {analysis, response}; "text" pede
	// texto livre.
	Mode string `json:"mode"`

	Temperature float64 `json:"temperature,omitempty"`
}

// CompletionResponse é a resposta já decodificada do serviço.
//
// Em modo JSON o serviço devolve {"analysis": {...}, "response": "..."};
// em modo texto só Text vem preenchido e Analysis é nil.
type CompletionResponse struct {
	// Text é a resposta bruta do modelo, ainda NÃO sanitizada.
	Text string `json:"response"`

	Analysis *CustomerAnalysis `json:"analysis,omitempty"`
}
