package cache

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/erazemk/kovnica/internal/model"
)

func TestMemoryGetMissing(t *testing.T) {
	c := NewMemory()
	s, err := c.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s != nil {
		t.Errorf("expected nil, got %+v", s)
	}
}

func TestMemoryPutOverwrites(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	c.Put(ctx, &model.OnchainSale{ItemID: 1, Price: decimal.NewFromInt(1)})
	c.Put(ctx, &model.OnchainSale{ItemID: 1, Price: decimal.NewFromInt(2)})

	s, _ := c.Get(ctx, 1)
	if s == nil || !s.Price.Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected latest price 2, got %+v", s)
	}
}

func TestMemoryReturnsCopy(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	c.Put(ctx, &model.OnchainSale{ItemID: 1, SupplyClaimed: 5})

	s, _ := c.Get(ctx, 1)
	s.SupplyClaimed = 99

	again, _ := c.Get(ctx, 1)
	if again.SupplyClaimed != 5 {
		t.Errorf("expected cached value unchanged, got %d", again.SupplyClaimed)
	}
}
