// internal/service/fulfilment/infrastructure/gorm_task_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"storefront/internal/service/fulfilment/domain"
)

// TaskModel 对应 packing_tasks 表。
type TaskModel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	OrderID     int64  `gorm:"uniqueIndex"`
	OrderNumber string `gorm:"size:32"`
	Status      string `gorm:"size:16;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (TaskModel) TableName() string { return "packing_tasks" }

// ShipmentModel 对应 shipments 表。
type ShipmentModel struct {
	ID             int64 `gorm:"primaryKey;autoIncrement"`
	TaskID         int64 `gorm:"index"`
	OrderID        int64 `gorm:"index"`
	Carrier        string `gorm:"size:64"`
	TrackingNumber string `gorm:"size:64;uniqueIndex"`
	Status         string `gorm:"size:16"`
	CreatedAt      time.Time
}

func (ShipmentModel) TableName() string { return "shipments" }

// GormTaskRepository 是拣货任务基于 GORM 的持久化实现。
type GormTaskRepository struct {
	db *gorm.DB
}

func NewGormTaskRepository(db *gorm.DB) (*GormTaskRepository, error) {
	if err := db.AutoMigrate(&TaskModel{}, &ShipmentModel{}); err != nil {
		return nil, errors.Wrap(err, "migrate fulfilment tables")
	}
	return &GormTaskRepository{db: db}, nil
}

func (r *GormTaskRepository) Save(ctx context.Context, task *domain.PackingTask) error {
	row := &TaskModel{
		OrderID:     task.OrderID,
		OrderNumber: task.OrderNumber,
		Status:      string(task.Status),
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return errors.Wrap(err, "insert packing task")
	}
	task.ID = row.ID
	return nil
}

func (r *GormTaskRepository) FindByID(ctx context.Context, id int64) (*domain.PackingTask, error) {
	var row TaskModel
	if err := r.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, errors.Wrap(err, "query packing task")
	}
	return toDomainTask(&row), nil
}

func (r *GormTaskRepository) FindByOrderID(ctx context.Context, orderID int64) (*domain.PackingTask, error) {
	var row TaskModel
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, errors.Wrap(err, "query packing task by order")
	}
	return toDomainTask(&row), nil
}

func (r *GormTaskRepository) Update(ctx context.Context, task *domain.PackingTask) error {
	res := r.db.WithContext(ctx).Model(&TaskModel{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"status":     string(task.Status),
			"updated_at": task.UpdatedAt,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "update packing task")
	}
	if res.RowsAffected == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *GormTaskRepository) ListPending(ctx context.Context, limit int) ([]*domain.PackingTask, error) {
	var rows []TaskModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(domain.TaskPending)).
		Order("created_at").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "list pending packing tasks")
	}
	tasks := make([]*domain.PackingTask, 0, len(rows))
	for i := range rows {
		tasks = append(tasks, toDomainTask(&rows[i]))
	}
	return tasks, nil
}

func (r *GormTaskRepository) SaveShipment(ctx context.Context, shipment *domain.Shipment) error {
	row := &ShipmentModel{
		TaskID:         shipment.TaskID,
		OrderID:        shipment.OrderID,
		Carrier:        shipment.Carrier,
		TrackingNumber: shipment.TrackingNumber,
		Status:         shipment.Status,
		CreatedAt:      shipment.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return errors.Wrap(err, "insert shipment")
	}
	shipment.ID = row.ID
	return nil
}

func toDomainTask(m *TaskModel) *domain.PackingTask {
	return &domain.PackingTask{
		ID:          m.ID,
		OrderID:     m.OrderID,
		OrderNumber: m.OrderNumber,
		Status:      domain.TaskStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
