package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/boddenberg/vende-agent-go/internal/domain"
	"github.com/boddenberg/vende-agent-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("client")

// CompletionClient calls the external text-completion service (Gemini-style
// HTTP API). Respostas em modo JSON seguem o contrato
// {"analysis":{"intent","sentiment"},"response":"..."}.
type CompletionClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewCompletionClient creates a new CompletionClient.
func NewCompletionClient(httpClient *http.Client, baseURL, apiKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *CompletionClient {
	return &CompletionClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		cb:         cb,
		cfg:        cfg,
	}
}

// completionWire is the request body of the completion API.
type completionWire struct {
	Blocks      []domain.PromptBlock `json:"blocks"`
	Mode        string               `json:"mode"`
	Temperature float64              `json:"temperature"`
}

// Complete invokes the completion service with retry, circuit breaker and
// tracing. Corpo vazio e status não-2xx viram ErrExternalService; o chamador
// decide o fallback. Modelos às vezes vazam raciocínio ou cercas de markdown
// na resposta, então o texto é saneado antes do parse.
func (c *CompletionClient) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	ctx, span := tracer.Start(ctx, "CompletionClient.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("completion.mode", string(req.Mode)))

	var raw string

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := json.Marshal(completionWire{
				Blocks:      req.Blocks,
				Mode:        string(req.Mode),
				Temperature: req.Temperature,
			})
			if err != nil {
				return err
			}

			url := fmt.Sprintf("%s/v1/complete", c.baseURL)
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			httpReq.Header.Set("Content-Type", "application/json")
			httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			respBody, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("completion API returned status %d", resp.StatusCode)
			}
			if len(strings.TrimSpace(string(respBody))) == 0 {
				return fmt.Errorf("completion API returned empty body")
			}

			raw = string(respBody)
			return nil
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "completion", Err: err}
	}

	cleaned := sanitizeModelOutput(raw)
	if cleaned == "" {
		return nil, &domain.ErrExternalService{
			Service: "completion",
			Err:     fmt.Errorf("completion API returned only reasoning/markup"),
		}
	}

	if req.Mode == domain.CompletionModeJSON {
		var parsed domain.CompletionResponse
		if jsonErr := json.Unmarshal([]byte(cleaned), &parsed); jsonErr == nil && parsed.Text != "" {
			return &parsed, nil
		}
		// JSON quebrado: devolve o texto cru sem análise em vez de falhar.
	}

	return &domain.CompletionResponse{Text: cleaned}, nil
}

// sanitizeModelOutput strips leaked reasoning blocks (<think>...</think>)
// and markdown code fences around the payload.
func sanitizeModelOutput(s string) string {
	for {
		start := strings.Index(s, "<think>")
		if start < 0 {
			break
		}
		end := strings.Index(s, "</think>")
		if end < 0 {
			s = s[:start]
			break
		}
		s = s[:start] + s[end+len("</think>"):]
	}

	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
