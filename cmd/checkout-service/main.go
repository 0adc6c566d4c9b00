// cmd/checkout-service/main.go
package main

import (
	"context"
	"flag"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/config"
	"storefront/internal/pkg/database"
	"storefront/internal/pkg/httpclient"
	"storefront/internal/pkg/mq"
	redispkg "storefront/internal/pkg/redis"
	checkoutapp "storefront/internal/service/checkout/application"
	checkoutdomain "storefront/internal/service/checkout/domain"
	checkoutport "storefront/internal/service/checkout/domain/port"
	checkoutinfra "storefront/internal/service/checkout/infrastructure"
	checkoutadapter "storefront/internal/service/checkout/infrastructure/adapter"
	checkoutiface "storefront/internal/service/checkout/interfaces"
	fulfilmentapp "storefront/internal/service/fulfilment/application"
	fulfilmentdomain "storefront/internal/service/fulfilment/domain"
	fulfilmentinfra "storefront/internal/service/fulfilment/infrastructure"
	fulfilmentadapter "storefront/internal/service/fulfilment/infrastructure/adapter"
	fulfilmentiface "storefront/internal/service/fulfilment/interfaces"
	inventoryapp "storefront/internal/service/inventory/application"
	inventorydomain "storefront/internal/service/inventory/domain"
	inventoryport "storefront/internal/service/inventory/domain/port"
	inventoryinfra "storefront/internal/service/inventory/infrastructure"
	inventoryadapter "storefront/internal/service/inventory/infrastructure/adapter"
	ledgerdomain "storefront/internal/service/ledger/domain"
	ledgerinfra "storefront/internal/service/ledger/infrastructure"
	returnsapp "storefront/internal/service/returns/application"
	returnsdomain "storefront/internal/service/returns/domain"
	returnsinfra "storefront/internal/service/returns/infrastructure"
	"storefront/internal/service/returns/infrastructure/rule"
	returnsiface "storefront/internal/service/returns/interfaces"
	"storefront/internal/zookeeper"
)

const serviceName = "checkout-service"

// main 是组装根：创建并组装所有依赖，然后交给 bootstrap 启动。
// STORAGE_BACKEND=mysql 时走 MySQL + 可配置的分布式锁，
// 默认 memory 模式零外部依赖，本地联调直接起。
func main() {
	configPath := flag.String("config", "", "path to a yaml config file")
	flag.Parse()

	bootstrap.Init(serviceName)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.Service.Name = serviceName

	tracer := otel.Tracer(serviceName)
	backend := bootstrap.GetEnv("STORAGE_BACKEND", "memory")

	var (
		engine      inventorydomain.Engine
		ledger      ledgerdomain.Ledger
		orderRepo   checkoutdomain.OrderRepository
		taskRepo    fulfilmentdomain.TaskRepository
		returnRepo  returnsdomain.ReturnRepository
	)
	switch backend {
	case "mysql":
		db, err := database.Open(cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open database")
		}
		engine = buildGormEngine(cfg, db)
		gormLedger := ledgerinfra.NewGormLedger(db)
		if err := gormLedger.Migrate(); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate ledger tables")
		}
		ledger = gormLedger
		orderRepo, err = checkoutinfra.NewGormOrderRepository(db)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize order repository")
		}
		taskRepo, err = fulfilmentinfra.NewGormTaskRepository(db)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize fulfilment repository")
		}
		returnRepo, err = returnsinfra.NewGormReturnRepository(db)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize returns repository")
		}
	case "memory":
		memEngine := inventoryinfra.NewMemoryEngine(cfg.Inventory.LockTimeout)
		if err := inventoryapp.SeedDemoProducts(context.Background(), memEngine); err != nil {
			log.Fatal().Err(err).Msg("failed to seed demo products")
		}
		engine = memEngine
		ledger = ledgerinfra.NewMemoryLedger()
		orderRepo = checkoutinfra.NewMemoryOrderRepository()
		taskRepo = fulfilmentinfra.NewMemoryTaskRepository()
		returnRepo = returnsinfra.NewMemoryReturnRepository()
	default:
		log.Fatal().Str("backend", backend).Msg("unknown STORAGE_BACKEND, want memory or mysql")
	}

	// 支付：配置了网关地址走 HTTP，否则用内置 mock。
	var payment checkoutport.PaymentService
	if gatewayURL := bootstrap.GetEnv("PAYMENT_GATEWAY_URL", ""); gatewayURL != "" {
		payment = checkoutadapter.NewHTTPPaymentAdapter(httpclient.NewClient(tracer), gatewayURL)
	} else {
		payment = checkoutadapter.NewMockPaymentAdapter(cfg.Payment.MockDelay)
	}
	courier := checkoutadapter.NewMockCourierAdapter()

	// 任务事件发到 Kafka，推送网关消费后经 WebSocket 推给工作台。
	taskWriter := mq.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.PackingTopic)
	defer taskWriter.Close()
	publisher := fulfilmentadapter.NewKafkaEventPublisher(taskWriter)

	fulfilmentSvc := fulfilmentapp.NewFulfilmentService(taskRepo, courier, publisher, tracer)
	checkoutSvc := checkoutapp.NewCheckoutService(orderRepo, engine, payment, fulfilmentSvc, ledger, tracer, cfg)

	policy, err := rule.NewCELPolicy(cfg.Returns.EligibilityRule)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to compile return eligibility rule")
	}
	returnSvc := returnsapp.NewReturnService(returnRepo, orderRepo, engine, payment, policy, ledger, tracer, cfg)

	sweeper := inventoryapp.NewSweeper(engine, cfg.Inventory.SweepInterval, tracer)

	bootstrap.StartService(cfg, bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.Service.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			checkoutiface.NewCheckoutHandler(checkoutSvc, engine).RegisterRoutes(appCtx.Mux)
			fulfilmentiface.NewFulfilmentHandler(fulfilmentSvc).RegisterRoutes(appCtx.Mux)
			returnsiface.NewReturnsHandler(returnSvc).RegisterRoutes(appCtx.Mux)
		},
		Background: []func(ctx context.Context) error{sweeper.Run},
	})
}

// buildGormEngine 按配置选择 SKU 临界区的锁后端。
func buildGormEngine(cfg *config.Config, db *gorm.DB) inventorydomain.Engine {
	var locker inventoryport.Locker
	switch cfg.Inventory.LockBackend {
	case "redis":
		redisClient := redispkg.NewClient(cfg.Redis.Addr)
		l, err := inventoryadapter.NewRedisLocker(redisClient)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize redis locker")
		}
		locker = l
	case "zookeeper":
		l, err := zookeeper.NewLocker(cfg.Zookeeper.Servers)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize zookeeper locker")
		}
		locker = l
	case "memory", "":
		locker = inventoryadapter.NewLocalLocker()
	default:
		log.Fatal().Str("backend", cfg.Inventory.LockBackend).Msg("unknown inventory lock backend")
	}

	engine := inventoryinfra.NewGormEngine(db, locker, cfg.Inventory.LockTimeout)
	if err := engine.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate inventory tables")
	}
	return engine
}
