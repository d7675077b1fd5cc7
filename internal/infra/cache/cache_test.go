package cache_test

import (
	"testing"
	"time"

	"github.com/boddenberg/vende-agent-go/internal/domain"
	"github.com/boddenberg/vende-agent-go/internal/infra/cache"
)

func TestSetAndGet(t *testing.T) {
	c := cache.New[[]domain.Product](time.Minute)

	products := []domain.Product{{ID: "prod-1", Name: "Curso de Violão"}}
	c.Set("catalog", products)

	got, ok := c.Get("catalog")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != 1 || got[0].ID != "prod-1" {
		t.Errorf("unexpected cached value: %+v", got)
	}
}

func TestGetMissing(t *testing.T) {
	c := cache.New[string](time.Minute)

	if _, ok := c.Get("nope"); ok {
		t.Error("expected cache miss for unknown key")
	}
}

func TestExpiration(t *testing.T) {
	c := cache.New[string](10 * time.Millisecond)

	c.Set("k", "v")
	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("expected entry to be expired")
	}
}

func TestDelete(t *testing.T) {
	c := cache.New[string](time.Minute)

	c.Set("k", "v")
	c.Delete("k")

	if _, ok := c.Get("k"); ok {
		t.Error("expected entry to be deleted")
	}
}
