// internal/service/fulfilment/infrastructure/adapter/kafka_event_publisher.go
package adapter

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/segmentio/kafka-go"

	"storefront/internal/pkg/mq"
	"storefront/internal/service/fulfilment/domain/port"
)

// KafkaEventPublisher 把任务事件发到 Kafka，按订单 ID 做分区键，
// 同一订单的事件保持顺序。
type KafkaEventPublisher struct {
	writer *kafka.Writer
}

func NewKafkaEventPublisher(writer *kafka.Writer) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer}
}

func (p *KafkaEventPublisher) PublishTaskEvent(ctx context.Context, event *port.TaskEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	key := []byte(strconv.FormatInt(event.OrderID, 10))
	return mq.ProduceMessage(ctx, p.writer, key, payload)
}
