// internal/service/ledger/infrastructure/memory_ledger_test.go
package infrastructure

import (
	"context"
	"errors"
	"sync"
	"testing"

	"storefront/internal/service/ledger/domain"
)

func TestBeginExactlyOneWinner(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, won, err := l.Begin(ctx, "key-1", "checkout")
			if err != nil {
				t.Errorf("Begin: %v", err)
				return
			}
			if rec.Status != domain.StatusInProgress {
				t.Errorf("status = %s, want IN_PROGRESS", rec.Status)
			}
			if won {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
}

func TestBeginReclaimsFailedRecord(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	if _, won, _ := l.Begin(ctx, "key-1", "checkout"); !won {
		t.Fatal("first Begin should win")
	}
	if _, err := l.MarkFailed(ctx, "key-1", "payment declined"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	rec, won, err := l.Begin(ctx, "key-1", "checkout")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if !won {
		t.Fatal("Begin on FAILED record should reclaim and win")
	}
	if rec.Status != domain.StatusInProgress {
		t.Fatalf("status = %s, want IN_PROGRESS after reclaim", rec.Status)
	}
}

func TestBeginNeverReclaimsCompleted(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	l.Begin(ctx, "key-1", "checkout")
	if _, err := l.MarkCompleted(ctx, "key-1", map[string]interface{}{"orderId": float64(7)}); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	rec, won, err := l.Begin(ctx, "key-1", "checkout")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if won {
		t.Fatal("Begin must not win against a COMPLETED record")
	}
	if rec.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", rec.Status)
	}
	if rec.ResponseBody["orderId"] != float64(7) {
		t.Fatalf("response body = %v, want preserved", rec.ResponseBody)
	}
}

func TestStoreMergesPartialResults(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	l.Begin(ctx, "key-1", "checkout")
	if _, err := l.Store(ctx, "key-1", "checkout", map[string]interface{}{"a": 1}, true); err != nil {
		t.Fatalf("Store: %v", err)
	}
	rec, err := l.Store(ctx, "key-1", "checkout", map[string]interface{}{"b": 2}, true)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if rec.Status != domain.StatusInProgress {
		t.Fatalf("status = %s, Store must not change status", rec.Status)
	}
	if rec.ResponseBody["a"] != 1 || rec.ResponseBody["b"] != 2 {
		t.Fatalf("body = %v, want merged {a:1 b:2}", rec.ResponseBody)
	}

	// merge=false 整体替换。
	rec, _ = l.Store(ctx, "key-1", "checkout", map[string]interface{}{"c": 3}, false)
	if _, ok := rec.ResponseBody["a"]; ok {
		t.Fatalf("body = %v, want replaced", rec.ResponseBody)
	}
}

func TestMarkFailedCreatesMissingRecord(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	rec, err := l.MarkFailed(ctx, "never-begun", "boom")
	if err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if rec.Status != domain.StatusFailed || rec.LastError != "boom" {
		t.Fatalf("record = %+v, want FAILED with last error", rec)
	}
}

func TestGetUnknownKey(t *testing.T) {
	l := NewMemoryLedger()
	if _, err := l.Get(context.Background(), "nope"); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("err = %v, want ErrRecordNotFound", err)
	}
}
