// internal/service/checkout/infrastructure/adapter/courier_mock_adapter.go
package adapter

import (
	"context"

	"storefront/internal/service/checkout/domain/port"
)

// MockCourierAdapter 是开发模式下的承运商，所有预约都成功。
type MockCourierAdapter struct {
	// FailNext 为 true 时下一次预约失败，用来驱动失败路径测试。
	FailNext bool
}

func NewMockCourierAdapter() *MockCourierAdapter {
	return &MockCourierAdapter{}
}

func (a *MockCourierAdapter) BookShipment(ctx context.Context, address port.Address, parcel port.Parcel) (*port.Booking, error) {
	if a.FailNext {
		a.FailNext = false
		return nil, port.ErrBookingFailed
	}
	return &port.Booking{
		Carrier:        "mock-express",
		TrackingNumber: newMockID("TRK"),
		Status:         "booked",
	}, nil
}
