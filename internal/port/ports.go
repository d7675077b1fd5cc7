// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations (Supabase stores, the completion
// service client, the in-memory cache).
package port

import (
	"context"
	"time"

	"github.com/boddenberg/vende-agent-go/internal/domain"
)

// StrategyStore persists the per-strategy learning counters.
//
// Increment operations must be atomic per strategy row: concurrent turns
// racing on the same strategy may not lose updates, or the success-rate
// signal corrupts over time. The Supabase adapter satisfies this with
// server-side RPC increments.
type StrategyStore interface {
	// EnsureInitialized creates a record for every missing strategy name,
	// with TotalAttempts=1 and SuccessCount=0. Idempotent.
	EnsureInitialized(ctx context.Context) error

	// AllRecords returns every strategy record, ordered by name.
	AllRecords(ctx context.Context) ([]domain.StrategyRecord, error)

	// RecordAttempt atomically increments TotalAttempts.
	RecordAttempt(ctx context.Context, name string) error

	// RecordSuccess atomically increments SuccessCount, recomputes
	// SuccessRate, and overwrites the last-success context snapshot.
	RecordSuccess(ctx context.Context, name string, sc domain.SuccessContext) error

	// RecordFailure recomputes SuccessRate from the already-incremented
	// TotalAttempts. It does not touch SuccessCount.
	RecordFailure(ctx context.Context, name string) error
}

// CustomerStore persists customers keyed by external id.
type CustomerStore interface {
	GetByExternalID(ctx context.Context, externalID string) (*domain.Customer, error)
	Create(ctx context.Context, c *domain.Customer) (*domain.Customer, error)

	// Update persists the mutable columns (funnel_state, selected_product_id,
	// total_interactions, purchased, purchase_date, last_interaction).
	Update(ctx context.Context, c *domain.Customer) error
}

// ConversationStore persists the append-only turn log.
type ConversationStore interface {
	// AppendTurns writes the given turns as one unit: either all are
	// persisted or none (no orphan outgoing-without-incoming).
	AppendTurns(ctx context.Context, turns []domain.ConversationTurn) error

	// History returns the customer's turns in chronological order,
	// at most limit entries (the most recent ones).
	History(ctx context.Context, customerID string, limit int) ([]domain.ConversationTurn, error)
}

// ProductStore reads the sales catalog. The funnel never writes products.
type ProductStore interface {
	ListActive(ctx context.Context) ([]domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

// SaleStore persists closed sales.
type SaleStore interface {
	CreateSale(ctx context.Context, s *domain.Sale) (*domain.Sale, error)
	RecentSales(ctx context.Context, limit int) ([]domain.Sale, error)
}

// DashboardReader exposes the aggregate counts behind the admin dashboard.
type DashboardReader interface {
	CountCustomers(ctx context.Context) (int, error)
	CountCustomersSince(ctx context.Context, since time.Time) (int, error)
	CountTurns(ctx context.Context) (int, error)
	CountSales(ctx context.Context) (int, error)
	CountSalesSince(ctx context.Context, since time.Time) (int, error)
	SalesRevenue(ctx context.Context) (float64, error)
}

// CompletionCaller invokes the external text-completion service.
type CompletionCaller interface {
	Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
