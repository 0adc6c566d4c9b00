// internal/service/ledger/application/waiter_test.go
package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/service/ledger/domain"
	"storefront/internal/service/ledger/infrastructure"
)

func TestAwaitReturnsWinnersResult(t *testing.T) {
	l := infrastructure.NewMemoryLedger()
	ctx := context.Background()
	l.Begin(ctx, "key-1", "checkout")

	go func() {
		time.Sleep(30 * time.Millisecond)
		l.MarkCompleted(ctx, "key-1", map[string]interface{}{"orderId": float64(1)})
	}()

	w := NewWaiter(l, 5*time.Millisecond, 500*time.Millisecond)
	rec, err := w.Await(ctx, "key-1")
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if rec.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", rec.Status)
	}
}

func TestAwaitCeilingIsBounded(t *testing.T) {
	l := infrastructure.NewMemoryLedger()
	ctx := context.Background()
	l.Begin(ctx, "key-1", "checkout")

	w := NewWaiter(l, 5*time.Millisecond, 40*time.Millisecond)
	start := time.Now()
	_, err := w.Await(ctx, "key-1")
	if !errors.Is(err, domain.ErrDuplicateInProgress) {
		t.Fatalf("err = %v, want ErrDuplicateInProgress", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Await blocked for %v, polling is not bounded", elapsed)
	}
}

func TestAwaitSeesFailedRecord(t *testing.T) {
	l := infrastructure.NewMemoryLedger()
	ctx := context.Background()
	l.Begin(ctx, "key-1", "checkout")
	l.MarkFailed(ctx, "key-1", "boom")

	w := NewWaiter(l, 5*time.Millisecond, 500*time.Millisecond)
	rec, err := w.Await(ctx, "key-1")
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if rec.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", rec.Status)
	}
}
