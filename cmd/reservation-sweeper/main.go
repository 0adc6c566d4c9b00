// cmd/reservation-sweeper/main.go
package main

import (
	"context"
	"flag"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/config"
	"storefront/internal/pkg/database"
	inventoryapp "storefront/internal/service/inventory/application"
	inventoryinfra "storefront/internal/service/inventory/infrastructure"
	inventoryadapter "storefront/internal/service/inventory/infrastructure/adapter"
)

const serviceName = "reservation-sweeper"

// 独立部署的预占清扫进程。checkout-service 自带一个内嵌清扫循环，
// 这个二进制用于把清扫从业务进程里拆出去单独跑的部署形态。
// ExpireOverdue 的状态守卫保证多个清扫者并发也不会双重过期。
func main() {
	configPath := flag.String("config", "", "path to a yaml config file")
	flag.Parse()

	bootstrap.Init(serviceName)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.Service.Name = serviceName

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	// 清扫只做守卫式更新，SKU 级锁用本地实现即可。
	engine := inventoryinfra.NewGormEngine(db, inventoryadapter.NewLocalLocker(), cfg.Inventory.LockTimeout)
	if err := engine.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate inventory tables")
	}

	tracer := otel.Tracer(serviceName)
	sweeper := inventoryapp.NewSweeper(engine, cfg.Inventory.SweepInterval, tracer)

	bootstrap.StartService(cfg, bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.Service.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
		},
		Background: []func(ctx context.Context) error{sweeper.Run},
	})
}
