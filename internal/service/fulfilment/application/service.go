// internal/service/fulfilment/application/service.go
package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	checkoutport "storefront/internal/service/checkout/domain/port"
	"storefront/internal/service/fulfilment/domain"
	"storefront/internal/service/fulfilment/domain/port"
)

// FulfilmentService 管理拣货任务：结算完成后建任务，
// 仓库打包后预约承运商并记录运单。
type FulfilmentService struct {
	repo      domain.TaskRepository
	courier   checkoutport.CourierService
	publisher port.EventPublisher
	tracer    trace.Tracer
}

func NewFulfilmentService(
	repo domain.TaskRepository,
	courier checkoutport.CourierService,
	publisher port.EventPublisher,
	tracer trace.Tracer,
) *FulfilmentService {
	return &FulfilmentService{repo: repo, courier: courier, publisher: publisher, tracer: tracer}
}

// CreatePackingTaskForOrder 实现结算上下文的履约出站端口。
// 按订单幂等：同一个订单重复交接返回既有任务，不再新建。
func (s *FulfilmentService) CreatePackingTaskForOrder(ctx context.Context, orderID int64, orderNumber string) error {
	ctx, span := s.tracer.Start(ctx, "fulfilment.CreatePackingTask")
	defer span.End()
	span.SetAttributes(attribute.Int64("order_id", orderID))

	if existing, err := s.repo.FindByOrderID(ctx, orderID); err == nil {
		span.AddEvent("Packing task already exists")
		log.Debug().Int64("task_id", existing.ID).Int64("order_id", orderID).
			Msg("packing task already exists, skipping")
		return nil
	} else if !errors.Is(err, domain.ErrTaskNotFound) {
		return errors.Wrap(err, "check existing packing task")
	}

	task := &domain.PackingTask{
		OrderID:     orderID,
		OrderNumber: orderNumber,
		Status:      domain.TaskPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.repo.Save(ctx, task); err != nil {
		return errors.Wrap(err, "save packing task")
	}

	s.publish(ctx, task, "task.created")
	log.Info().Int64("task_id", task.ID).Str("order", orderNumber).Msg("packing task created")
	return nil
}

// MarkPackedAndBook 仓库打包完成后调用：流转任务状态、预约承运商、
// 落运单、再流转为已发货。
func (s *FulfilmentService) MarkPackedAndBook(ctx context.Context, taskID int64, address checkoutport.Address, parcel checkoutport.Parcel) (*domain.Shipment, error) {
	ctx, span := s.tracer.Start(ctx, "fulfilment.MarkPackedAndBook")
	defer span.End()

	task, err := s.repo.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := task.MarkPacked(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, errors.Wrap(err, "update packing task")
	}
	s.publish(ctx, task, "task.packed")

	booking, err := s.courier.BookShipment(ctx, address, parcel)
	if err != nil {
		span.RecordError(err)
		// 货还在仓库，但任务必须体现预约失败的事实。
		task.MarkError()
		if updateErr := s.repo.Update(ctx, task); updateErr != nil {
			log.Error().Err(updateErr).Int64("task_id", task.ID).
				Msg("failed to mark packing task as errored")
		}
		s.publish(ctx, task, "task.error")
		return nil, err
	}

	shipment := &domain.Shipment{
		TaskID:         task.ID,
		OrderID:        task.OrderID,
		Carrier:        booking.Carrier,
		TrackingNumber: booking.TrackingNumber,
		Status:         booking.Status,
		CreatedAt:      time.Now(),
	}
	if err := s.repo.SaveShipment(ctx, shipment); err != nil {
		return nil, errors.Wrap(err, "save shipment")
	}
	if err := task.MarkShipped(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, errors.Wrap(err, "update packing task")
	}
	s.publish(ctx, task, "task.shipped")

	log.Info().Int64("task_id", task.ID).Str("tracking", booking.TrackingNumber).
		Msg("shipment booked")
	return shipment, nil
}

// ListPendingTasks 返回待处理任务，仓库工作台轮询用。
func (s *FulfilmentService) ListPendingTasks(ctx context.Context, limit int) ([]*domain.PackingTask, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListPending(ctx, limit)
}

func (s *FulfilmentService) publish(ctx context.Context, task *domain.PackingTask, eventType string) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishTaskEvent(ctx, &port.TaskEvent{
		Type:        eventType,
		TaskID:      task.ID,
		OrderID:     task.OrderID,
		OrderNumber: task.OrderNumber,
		Status:      string(task.Status),
	})
	if err != nil {
		// 推送只是锦上添花，失败不影响任务状态。
		log.Warn().Err(err).Int64("task_id", task.ID).Str("type", eventType).
			Msg("failed to publish task event")
	}
}
