// internal/service/inventory/application/seed.go
package application

import (
	"context"

	"github.com/rs/zerolog/log"

	"storefront/internal/service/inventory/domain"
)

// SeedDemoProducts 在内存模式下灌入演示商品目录，方便本地联调。
func SeedDemoProducts(ctx context.Context, engine domain.Engine) error {
	products := []*domain.Product{
		{SKU: "WIDGET-1", Name: "Widget", Description: "Standard widget", PriceCents: 1999, Active: true, Stock: 100},
		{SKU: "GADGET-1", Name: "Gadget", Description: "Deluxe gadget", PriceCents: 4999, Active: true, Stock: 25},
		{SKU: "DOODAD-1", Name: "Doodad", Description: "Limited edition doodad", PriceCents: 12900, Active: true, Stock: 3},
		{SKU: "RETIRED-1", Name: "Retired thing", Description: "No longer for sale", PriceCents: 999, Active: false, Stock: 10},
	}
	for _, p := range products {
		if err := engine.AddProduct(ctx, p); err != nil {
			return err
		}
	}
	log.Info().Int("count", len(products)).Msg("demo products seeded")
	return nil
}
