// internal/service/ledger/application/waiter.go
package application

import (
	"context"
	"time"

	"storefront/internal/service/ledger/domain"
)

// Waiter 实现 Begin 失败者的有界轮询：等待赢家的终态结果，
// 超过上限就显式失败，绝不会一直等下去。
// 轮询间隔和等待上限来自配置，不允许散落的魔法数字。
type Waiter struct {
	ledger   domain.Ledger
	interval time.Duration
	ceiling  time.Duration
}

func NewWaiter(ledger domain.Ledger, interval, ceiling time.Duration) *Waiter {
	return &Waiter{ledger: ledger, interval: interval, ceiling: ceiling}
}

// Await 轮询直到记录离开 IN_PROGRESS（返回该记录），
// 或者等待上限耗尽（返回 ErrDuplicateInProgress）。
func (w *Waiter) Await(ctx context.Context, key string) (*domain.Record, error) {
	deadline := time.Now().Add(w.ceiling)
	for {
		rec, err := w.ledger.Get(ctx, key)
		if err != nil && err != domain.ErrRecordNotFound {
			return nil, err
		}
		if rec != nil && rec.Status.Terminal() {
			return rec, nil
		}
		if time.Now().After(deadline) {
			return nil, domain.ErrDuplicateInProgress
		}
		select {
		case <-time.After(w.interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
