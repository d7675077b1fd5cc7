package integration_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/vende-agent-go/internal/domain"
	"github.com/boddenberg/vende-agent-go/internal/handler"
	"github.com/boddenberg/vende-agent-go/internal/infra/cache"
	"github.com/boddenberg/vende-agent-go/internal/infra/client"
	"github.com/boddenberg/vende-agent-go/internal/infra/observability"
	"github.com/boddenberg/vende-agent-go/internal/infra/resilience"
	"github.com/boddenberg/vende-agent-go/internal/infra/supabase"
	"github.com/boddenberg/vende-agent-go/internal/service"

	"go.uber.org/zap"
)

// fakeBackend emula o subconjunto do PostgREST que o agente usa: filtros
// eq., inserts com return=representation, PATCH, contagem via HEAD e as
// funções RPC do ledger.
type fakeBackend struct {
	mu        sync.Mutex
	customers map[string]map[string]any // keyed by external_id
	turns     []map[string]any
	sales     []map[string]any

	attempts  int
	successes int
	failures  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{customers: map[string]map[string]any{}}
}

func (b *fakeBackend) ledgerRows() []map[string]any {
	rows := make([]map[string]any, 0, len(domain.Strategies()))
	for _, name := range domain.Strategies() {
		rows = append(rows, map[string]any{
			"strategy_name":      name,
			"success_count":      0,
			"total_attempts":     1,
			"success_rate":       0.25,
			"context_keywords":   "{}",
			"customer_sentiment": 0.0,
			"last_updated":       time.Now().UTC().Format(time.RFC3339),
		})
	}
	return rows
}

func (b *fakeBackend) productRows() []map[string]any {
	now := time.Now().UTC().Format(time.RFC3339)
	return []map[string]any{
		{
			"id":              "prod-marketing",
			"name":            "Curso de Marketing Digital",
			"niche":           "marketing",
			"original_price":  497.0,
			"price":           297.0,
			"description":     "Do zero ao primeiro cliente em 30 dias",
			"target_audience": "iniciantes",
			"key_benefits":    []string{"Aulas práticas", "Suporte no grupo"},
			"sales_approach":  "escassez",
			"payment_link":    "https://pay.example.com/marketing",
			"free_group_link": "https://chat.example.com/grupo-marketing",
			"is_active":       true,
			"created_at":      now,
			"updated_at":      now,
		},
		{
			"id":              "prod-trafego",
			"name":            "Tráfego Pago na Prática",
			"niche":           "marketing",
			"original_price":  0.0,
			"price":           97.0,
			"description":     "Campanhas que convertem",
			"target_audience": "gestores",
			"key_benefits":    []string{"Templates de campanha"},
			"sales_approach":  "consultivo",
			"payment_link":    "https://pay.example.com/trafego",
			"free_group_link": "",
			"is_active":       true,
			"created_at":      now,
			"updated_at":      now,
		},
	}
}

func writeRows(w http.ResponseWriter, status int, rows any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(rows)
}

func countHeader(w http.ResponseWriter, n int) {
	last := n - 1
	if last < 0 {
		last = 0
	}
	w.Header().Set("Content-Range", fmt.Sprintf("0-%d/%d", last, n))
	w.WriteHeader(http.StatusOK)
}

func (b *fakeBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		path := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
		q := r.URL.Query()

		switch {
		case strings.HasPrefix(path, "rpc/"):
			fn := strings.TrimPrefix(path, "rpc/")
			switch fn {
			case "record_strategy_attempt":
				b.attempts++
				w.WriteHeader(http.StatusNoContent)
			case "record_strategy_success":
				b.successes++
				w.WriteHeader(http.StatusNoContent)
			case "record_strategy_failure":
				b.failures++
				w.WriteHeader(http.StatusNoContent)
			case "total_sales_revenue":
				var total float64
				for _, s := range b.sales {
					total += s["sale_amount"].(float64)
				}
				writeRows(w, http.StatusOK, total)
			default:
				http.NotFound(w, r)
			}

		case path == "ai_learning_data":
			if r.Method == http.MethodPost {
				w.WriteHeader(http.StatusCreated)
				return
			}
			writeRows(w, http.StatusOK, b.ledgerRows())

		case strings.HasPrefix(path, "customers"):
			switch r.Method {
			case http.MethodHead:
				countHeader(w, len(b.customers))
			case http.MethodGet:
				ext := strings.TrimPrefix(q.Get("external_id"), "eq.")
				if row, ok := b.customers[ext]; ok {
					writeRows(w, http.StatusOK, []map[string]any{row})
					return
				}
				writeRows(w, http.StatusOK, []map[string]any{})
			case http.MethodPost:
				var row map[string]any
				json.NewDecoder(r.Body).Decode(&row)
				row["id"] = fmt.Sprintf("cust-%d", len(b.customers)+1)
				b.customers[row["external_id"].(string)] = row
				writeRows(w, http.StatusCreated, []map[string]any{row})
			case http.MethodPatch:
				id := strings.TrimPrefix(q.Get("id"), "eq.")
				var patch map[string]any
				json.NewDecoder(r.Body).Decode(&patch)
				for _, row := range b.customers {
					if row["id"] == id {
						for k, v := range patch {
							row[k] = v
						}
					}
				}
				w.WriteHeader(http.StatusNoContent)
			}

		case strings.HasPrefix(path, "conversations"):
			switch r.Method {
			case http.MethodHead:
				countHeader(w, len(b.turns))
			case http.MethodGet:
				// ordem decrescente, como o PostgREST devolveria
				desc := make([]map[string]any, 0, len(b.turns))
				for i := len(b.turns) - 1; i >= 0; i-- {
					desc = append(desc, b.turns[i])
				}
				writeRows(w, http.StatusOK, desc)
			case http.MethodPost:
				var rows []map[string]any
				json.NewDecoder(r.Body).Decode(&rows)
				b.turns = append(b.turns, rows...)
				w.WriteHeader(http.StatusCreated)
			}

		case strings.HasPrefix(path, "products"):
			if id := strings.TrimPrefix(q.Get("id"), "eq."); id != "" && q.Get("id") != "" {
				for _, row := range b.productRows() {
					if row["id"] == id {
						writeRows(w, http.StatusOK, []map[string]any{row})
						return
					}
				}
				writeRows(w, http.StatusOK, []map[string]any{})
				return
			}
			writeRows(w, http.StatusOK, b.productRows())

		case strings.HasPrefix(path, "sales"):
			switch r.Method {
			case http.MethodHead:
				countHeader(w, len(b.sales))
			case http.MethodPost:
				var row map[string]any
				json.NewDecoder(r.Body).Decode(&row)
				row["id"] = fmt.Sprintf("sale-%d", len(b.sales)+1)
				b.sales = append(b.sales, row)
				writeRows(w, http.StatusCreated, []map[string]any{row})
			case http.MethodGet:
				writeRows(w, http.StatusOK, b.sales)
			}

		default:
			http.NotFound(w, r)
		}
	})
}

const adminPassword = "integracao-senha"

func buildRouter(t *testing.T, supabaseURL, completionURL string) http.Handler {
	t.Helper()

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	resilienceCfg := resilience.Config{MaxRetries: 1, InitialBackoff: 10 * time.Millisecond}
	httpClient := &http.Client{Timeout: 5 * time.Second}

	supabaseClient := supabase.NewClient(
		httpClient, supabaseURL, "anon-key", "service-key",
		resilience.NewCircuitBreaker("supabase-test"), resilienceCfg, logger,
	)
	completionClient := client.NewCompletionClient(
		httpClient, completionURL, "test-api-key",
		resilience.NewCircuitBreaker("completion-test"), resilienceCfg,
	)

	selector := service.NewSelector(supabaseClient, metrics, logger, nil)
	funnelSvc := service.NewFunnelService(
		supabaseClient, completionClient,
		cache.New[[]domain.Product](5*time.Minute), metrics, logger, 6,
		domain.CompletionModeJSON,
	)
	gateway := service.NewGateway(
		supabaseClient, supabaseClient, supabaseClient, supabaseClient, supabaseClient,
		selector, funnelSvc, metrics, logger, 6,
	)

	hash, err := service.HashPassword(adminPassword)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	authSvc := service.NewAuthService(hash, "integration-secret", time.Hour, logger)

	return handler.NewRouter(gateway, selector, authSvc, metrics, logger, "*")
}

func sendMessage(t *testing.T, router http.Handler, sender, message string) *domain.OutboundReply {
	t.Helper()

	body := fmt.Sprintf(`{"sender":%q,"message":%q}`, sender, message)
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("webhook %q: expected 200, got %d. Body: %s", message, rec.Code, rec.Body.String())
	}

	var replies []domain.OutboundReply
	if err := json.NewDecoder(rec.Body).Decode(&replies); err != nil {
		t.Fatalf("failed to decode reply: %v", err)
	}
	if len(replies) != 1 {
		t.Fatalf("webhook %q: got %d replies, want 1", message, len(replies))
	}
	return &replies[0]
}

// TestIntegration_FunnelToPurchase percorre o funil inteiro contra backends
// falsos: boas-vindas, catálogo, seleção de produto, oferta gerada pelo
// modelo e confirmação de compra com registro de venda e de sucesso.
func TestIntegration_FunnelToPurchase(t *testing.T) {
	backend := newFakeBackend()
	supabaseServer := httptest.NewServer(backend.handler())
	defer supabaseServer.Close()

	completionServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-api-key" {
			t.Errorf("completion auth header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"analysis":{"intent":"interesse","sentiment":0.8},"response":"Hoje a oferta está especial: garanta sua vaga!"}`)
	}))
	defer completionServer.Close()

	router := buildRouter(t, supabaseServer.URL, completionServer.URL)
	sender := "5511988887777"

	reply := sendMessage(t, router, sender, "oi")
	if !strings.Contains(reply.Text, "Sofia") {
		t.Errorf("welcome reply = %q, want greeting from Sofia", reply.Text)
	}

	reply = sendMessage(t, router, sender, "Ver Cursos")
	if !strings.Contains(reply.Text, "Curso de Marketing Digital") {
		t.Errorf("catalog reply = %q, want product listing", reply.Text)
	}

	reply = sendMessage(t, router, sender, "1")
	if !strings.Contains(strings.ToLower(reply.Text), "especialista") {
		t.Errorf("selection reply = %q, want specialist intro", reply.Text)
	}

	reply = sendMessage(t, router, sender, "quero a oferta")
	if !strings.Contains(reply.Text, "pay.example.com/marketing") {
		t.Errorf("offer reply = %q, want payment link", reply.Text)
	}

	reply = sendMessage(t, router, sender, "comprei!")
	if !strings.Contains(reply.Text, "Parabéns") {
		t.Errorf("purchase reply = %q, want congratulations", reply.Text)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()

	if len(backend.sales) != 1 {
		t.Fatalf("sales = %d, want 1", len(backend.sales))
	}
	sale := backend.sales[0]
	if sale["product_id"] != "prod-marketing" || sale["sale_amount"].(float64) != 297.0 {
		t.Errorf("sale = %+v", sale)
	}
	if backend.successes != 1 {
		t.Errorf("ledger successes = %d, want 1", backend.successes)
	}
	if backend.attempts != 5 {
		t.Errorf("ledger attempts = %d, want 5 (one per turn)", backend.attempts)
	}

	cust := backend.customers[sender]
	if cust == nil {
		t.Fatal("customer was never created")
	}
	if cust["funnel_state"] != string(domain.StateCompleted) || cust["purchased"] != true {
		t.Errorf("customer = %+v, want completed/purchased", cust)
	}
	if len(backend.turns) != 10 {
		t.Errorf("turns = %d, want 10 (two per webhook call)", len(backend.turns))
	}
}

// TestIntegration_DashboardAfterSale loga no painel e confere os agregados
// calculados a partir dos backends falsos.
func TestIntegration_DashboardAfterSale(t *testing.T) {
	backend := newFakeBackend()
	supabaseServer := httptest.NewServer(backend.handler())
	defer supabaseServer.Close()

	completionServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"analysis":{"intent":"interesse","sentiment":0.5},"response":"Vamos lá!"}`)
	}))
	defer completionServer.Close()

	router := buildRouter(t, supabaseServer.URL, completionServer.URL)
	sender := "5511977776666"

	sendMessage(t, router, sender, "oi")
	sendMessage(t, router, sender, "Ver Cursos")
	sendMessage(t, router, sender, "quero o Tráfego Pago na Prática")
	sendMessage(t, router, sender, "quero a oferta")
	sendMessage(t, router, sender, "paguei agora")

	loginBody := strings.NewReader(`{"password":"` + adminPassword + `"}`)
	loginReq := httptest.NewRequest(http.MethodPost, "/v1/auth/login", loginBody)
	loginRec := httptest.NewRecorder()
	router.ServeHTTP(loginRec, loginReq)
	if loginRec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", loginRec.Code)
	}
	var login domain.AdminLoginResponse
	if err := json.NewDecoder(loginRec.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	var overview domain.DashboardOverview
	if err := json.NewDecoder(rec.Body).Decode(&overview); err != nil {
		t.Fatalf("decode overview: %v", err)
	}
	if overview.TotalCustomers != 1 {
		t.Errorf("TotalCustomers = %d, want 1", overview.TotalCustomers)
	}
	if overview.TotalSales != 1 {
		t.Errorf("TotalSales = %d, want 1", overview.TotalSales)
	}
	if overview.TotalRevenue != 97.0 {
		t.Errorf("TotalRevenue = %.2f, want 97.00", overview.TotalRevenue)
	}
	if overview.LearningStats == nil || len(overview.LearningStats.Strategies) != 4 {
		t.Errorf("LearningStats = %+v", overview.LearningStats)
	}
	if len(overview.LatestSales) != 1 || overview.LatestSales[0].SaleAmount != 97.0 {
		t.Errorf("LatestSales = %+v, want the closed sale", overview.LatestSales)
	}
}
