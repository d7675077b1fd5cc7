package service

import (
	"fmt"
	"strings"
	"testing"

	"github.com/boddenberg/vende-agent-go/internal/domain"
)

func TestBuildPromptCarriesProductAndAngle(t *testing.T) {
	products := testProducts()
	req := BuildPrompt(PromptInput{
		Product:  &products[0],
		Strategy: domain.StrategyEscassez,
		Stage:    domain.StateSpecialistOffer,
		Message:  "quero a oferta",
	})

	if len(req.Blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(req.Blocks))
	}
	sys := req.Blocks[0]
	if sys.Role != domain.RoleSystem {
		t.Errorf("first block role = %q", sys.Role)
	}
	if !strings.Contains(sys.Text, "Marketing Digital do Zero") {
		t.Error("system block missing product name")
	}
	if !strings.Contains(sys.Text, "escassez") && !strings.Contains(sys.Text, "tempo limitado") {
		t.Error("system block missing scarcity angle")
	}
	if !strings.Contains(sys.Text, "de R$ 497.00 por R$ 297.00") {
		t.Errorf("system block missing anchored price: %s", sys.Text)
	}
	if req.Mode != domain.CompletionModeJSON {
		t.Errorf("Mode = %q, want json", req.Mode)
	}
}

func TestBuildPromptTextModeSkipsJSONContract(t *testing.T) {
	req := BuildPrompt(PromptInput{
		Message: "oi",
		Mode:    domain.CompletionModeText,
	})

	if req.Mode != domain.CompletionModeText {
		t.Errorf("Mode = %q, want text", req.Mode)
	}
	if strings.Contains(req.Blocks[0].Text, `"analysis"`) {
		t.Error("system block should not demand the JSON envelope in text mode")
	}
}

func TestBuildPromptUnknownStrategyUsesDefaultAngle(t *testing.T) {
	req := BuildPrompt(PromptInput{Strategy: "inexistente", Message: "oi"})

	if !strings.Contains(req.Blocks[0].Text, strategyAngles[domain.DefaultStrategy]) {
		t.Error("system block should carry the default angle")
	}
}

func TestBuildPromptLimitsHistoryWindow(t *testing.T) {
	history := make([]domain.ConversationTurn, 0, 10)
	for i := 0; i < 10; i++ {
		history = append(history, domain.ConversationTurn{
			Direction: domain.DirectionIncoming,
			Content:   fmt.Sprintf("mensagem-%d", i),
		})
	}

	req := BuildPrompt(PromptInput{
		History:       history,
		HistoryWindow: 3,
		Message:       "atual",
	})

	user := req.Blocks[1].Text
	if strings.Contains(user, "mensagem-0") {
		t.Error("user block should not contain turns outside the window")
	}
	for i := 7; i < 10; i++ {
		if !strings.Contains(user, fmt.Sprintf("mensagem-%d", i)) {
			t.Errorf("user block missing recent turn %d", i)
		}
	}
	if !strings.Contains(user, "Mensagem atual do cliente: atual") {
		t.Error("user block missing current message")
	}
}
