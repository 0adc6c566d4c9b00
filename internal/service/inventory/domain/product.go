// internal/service/inventory/domain/product.go
package domain

// Product 持有权威库存计数。所有库存变更都必须经由 Engine，
// 编排方（下单/退货）不允许直接改动 Stock。
type Product struct {
	ID          int64
	SKU         string
	Name        string
	Description string
	PriceCents  int64
	Active      bool
	Stock       int
}
