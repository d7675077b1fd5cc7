package domain

// InboundMessage é o payload que o transporte (web chat ou gateway de
// WhatsApp) entrega no POST /webhook.
type InboundMessage struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// OutboundReply é um item da resposta do webhook. O transporte é responsável
// por renderizar as marcações [botão:...] e [choice:...] embutidas em Text.
type OutboundReply struct {
	RecipientID string `json:"recipient_id"`
	Text        string `json:"text"`
}
