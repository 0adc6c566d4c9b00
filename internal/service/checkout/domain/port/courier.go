// internal/service/checkout/domain/port/courier.go
package port

import (
	"context"

	"github.com/pkg/errors"
)

// ErrBookingFailed 承运商预约失败。
var ErrBookingFailed = errors.New("courier: booking failed")

// Address 是承运商 API 的收件地址格式。
type Address struct {
	Name    string `json:"name"`
	Line1   string `json:"line1"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// Parcel 是包裹的物理参数。
type Parcel struct {
	WeightGrams int `json:"weight_grams"`
	LengthCm    int `json:"length_cm"`
	WidthCm     int `json:"width_cm"`
	HeightCm    int `json:"height_cm"`
}

// Booking 是承运商返回的预约结果。
type Booking struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
	Status         string `json:"status"`
}

// CourierService 抽象承运商 API。
type CourierService interface {
	BookShipment(ctx context.Context, address Address, parcel Parcel) (*Booking, error)
}
