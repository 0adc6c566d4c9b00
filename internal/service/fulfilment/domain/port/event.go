// internal/service/fulfilment/domain/port/event.go
package port

import "context"

// TaskEvent 是广播给仓库工作台的任务事件。
type TaskEvent struct {
	Type        string `json:"type"`
	TaskID      int64  `json:"taskId"`
	OrderID     int64  `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
}

// EventPublisher 把任务事件发布出去（Kafka），推送网关消费后
// 经 WebSocket 推给仓库工作台。发布失败不阻塞主流程。
type EventPublisher interface {
	PublishTaskEvent(ctx context.Context, event *TaskEvent) error
}
