// internal/service/inventory/application/sweeper_test.go
package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"storefront/internal/service/inventory/domain"
	"storefront/internal/service/inventory/infrastructure"
)

func TestSweepOnceExpiresOverdueReservations(t *testing.T) {
	ctx := context.Background()
	engine := infrastructure.NewMemoryEngine(time.Second)
	if err := engine.AddProduct(ctx, &domain.Product{SKU: "SKU-1", Name: "Widget", PriceCents: 500, Active: true, Stock: 10}); err != nil {
		t.Fatalf("AddProduct: %v", err)
	}

	stale, err := engine.Reserve(ctx, "SKU-1", 4, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Reserve stale: %v", err)
	}
	live, err := engine.Reserve(ctx, "SKU-1", 2, time.Hour)
	if err != nil {
		t.Fatalf("Reserve live: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	sweeper := NewSweeper(engine, time.Hour, otel.Tracer("test"))
	sweeper.SweepOnce(ctx)

	// 超期的被回收，仍在有效期内的保持预占。
	avail, err := engine.AvailableQuantity(ctx, "SKU-1")
	if err != nil {
		t.Fatalf("AvailableQuantity: %v", err)
	}
	if avail != 8 {
		t.Fatalf("available = %d, want 8 (only live reservation held)", avail)
	}
	if _, err := engine.Commit(ctx, stale.ID, 1); !errors.Is(err, domain.ErrReservationNotActive) {
		t.Fatalf("commit swept reservation err = %v, want ErrReservationNotActive", err)
	}
	if _, err := engine.Commit(ctx, live.ID, 1); err != nil {
		t.Fatalf("commit live reservation: %v", err)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	engine := infrastructure.NewMemoryEngine(time.Second)
	sweeper := NewSweeper(engine, 5*time.Millisecond, otel.Tracer("test"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
