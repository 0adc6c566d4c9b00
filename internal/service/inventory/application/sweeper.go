// internal/service/inventory/application/sweeper.go
package application

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/metrics"
	"storefront/internal/service/inventory/domain"
)

// Sweeper 周期性回收超期未兑现的库存预占。
// 没有调用方等待结果，纯副作用进程：只记日志和指标。
type Sweeper struct {
	engine   domain.Engine
	interval time.Duration
	tracer   trace.Tracer
}

func NewSweeper(engine domain.Engine, interval time.Duration, tracer trace.Tracer) *Sweeper {
	return &Sweeper{engine: engine, interval: interval, tracer: tracer}
}

// Run 阻塞运行直到 ctx 取消。与 Commit 并发是安全的：
// Commit 在锁内复核状态，被清扫掉的预占在 Commit 侧表现为 ErrReservationNotActive。
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("reservation expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reservation expiry sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce 执行一轮回收。可重复调用，也可与自身并发。
func (s *Sweeper) SweepOnce(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "sweeper.ExpireOverdue")
	defer span.End()

	ids, err := s.engine.ExpireOverdue(ctx)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Msg("failed to expire overdue reservations")
		return
	}
	if len(ids) == 0 {
		return
	}
	span.SetAttributes(attribute.Int("expired.count", len(ids)))
	metrics.ReservationsExpiredTotal.Add(float64(len(ids)))
	log.Info().Ints64("reservation_ids", ids).Msg("expired overdue reservations")
}
