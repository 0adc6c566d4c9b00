// internal/service/fulfilment/domain/repository.go
package domain

import "context"

// TaskRepository 定义拣货任务的持久化端口。
type TaskRepository interface {
	Save(ctx context.Context, task *PackingTask) error
	FindByID(ctx context.Context, id int64) (*PackingTask, error)
	// FindByOrderID 用于幂等建任务：同一个订单只建一个任务。
	FindByOrderID(ctx context.Context, orderID int64) (*PackingTask, error)
	Update(ctx context.Context, task *PackingTask) error
	ListPending(ctx context.Context, limit int) ([]*PackingTask, error)
	SaveShipment(ctx context.Context, shipment *Shipment) error
}
