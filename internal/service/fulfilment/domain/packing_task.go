// internal/service/fulfilment/domain/packing_task.go
package domain

import (
	"time"

	"github.com/pkg/errors"
)

// TaskStatus 定义拣货任务的生命周期状态。
type TaskStatus string

const (
	TaskPending TaskStatus = "PENDING"
	TaskPacked  TaskStatus = "PACKED"
	TaskShipped TaskStatus = "SHIPPED"
	// TaskError 预约承运商失败后的状态，等人工处理。
	TaskError TaskStatus = "ERROR"
)

var (
	ErrTaskNotFound = errors.New("fulfilment: packing task not found")
	// ErrTaskNotPending 任务已被处理过。
	ErrTaskNotPending = errors.New("fulfilment: packing task is not pending")
)

// PackingTask 是仓库侧为某个订单生成的拣货打包任务。
type PackingTask struct {
	ID          int64
	OrderID     int64
	OrderNumber string
	Status      TaskStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MarkPacked 把任务流转为已打包。只有 PENDING 状态允许。
func (t *PackingTask) MarkPacked() error {
	if t.Status != TaskPending {
		return ErrTaskNotPending
	}
	t.Status = TaskPacked
	t.UpdatedAt = time.Now()
	return nil
}

// MarkError 预约承运商失败后调用。记录失败事实，任何状态下都允许。
func (t *PackingTask) MarkError() {
	t.Status = TaskError
	t.UpdatedAt = time.Now()
}

// MarkShipped 预约承运商成功后调用。
func (t *PackingTask) MarkShipped() error {
	if t.Status != TaskPacked {
		return ErrTaskNotPending
	}
	t.Status = TaskShipped
	t.UpdatedAt = time.Now()
	return nil
}

// Shipment 记录承运商预约结果。
type Shipment struct {
	ID             int64
	TaskID         int64
	OrderID        int64
	Carrier        string
	TrackingNumber string
	Status         string
	CreatedAt      time.Time
}
