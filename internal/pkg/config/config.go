// internal/pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 汇总了所有服务的可调参数。
// 所有重试/退避/TTL 等数值都必须从这里读取，代码里不允许出现魔法数字。
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Nacos     NacosConfig     `yaml:"nacos"`
	Inventory InventoryConfig `yaml:"inventory"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Payment   PaymentConfig   `yaml:"payment"`
	Returns   ReturnsConfig   `yaml:"returns"`
}

type ServiceConfig struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
}

type ZookeeperConfig struct {
	Servers []string `yaml:"servers"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	PackingTopic string   `yaml:"packing_topic"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type NacosConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServerAddrs string `yaml:"server_addrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

// InventoryConfig 控制预占引擎的行为。
type InventoryConfig struct {
	ReservationTTL time.Duration `yaml:"reservation_ttl"`
	LockTimeout    time.Duration `yaml:"lock_timeout"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	// LockBackend 选择每个 SKU 临界区的串行化机制: "memory" / "redis" / "zookeeper"。
	LockBackend string `yaml:"lock_backend"`
}

// LedgerConfig 控制幂等账本上失败者的有界轮询策略。
type LedgerConfig struct {
	AwaitCeiling time.Duration `yaml:"await_ceiling"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// PaymentConfig 控制对支付网关瞬时错误的有界重试。
type PaymentConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	MockDelay    time.Duration `yaml:"mock_delay"`
}

type ReturnsConfig struct {
	// EligibilityRule 是一个 CEL 表达式，对每个退货行求值，
	// 可用变量: sku, qty, purchased, reason, days_since_order。
	EligibilityRule string `yaml:"eligibility_rule"`
}

// Default 返回带默认值的配置，Load 在其上覆盖文件与环境变量。
func Default() *Config {
	return &Config{
		Service:   ServiceConfig{Name: "checkout-service", Port: 8081},
		Database:  DatabaseConfig{Host: "localhost", Port: 3306, User: "root", Name: "storefront"},
		Redis:     RedisConfig{Addr: "localhost:6379"},
		Zookeeper: ZookeeperConfig{Servers: []string{"localhost:2181"}},
		Kafka:     KafkaConfig{Brokers: []string{"localhost:9092"}, PackingTopic: "fulfilment.packing-tasks"},
		Jaeger:    JaegerConfig{Endpoint: "http://localhost:14268/api/traces"},
		Nacos:     NacosConfig{Group: "DEFAULT_GROUP"},
		Inventory: InventoryConfig{
			ReservationTTL: 15 * time.Minute,
			LockTimeout:    5 * time.Second,
			SweepInterval:  30 * time.Second,
			LockBackend:    "memory",
		},
		Ledger: LedgerConfig{
			AwaitCeiling: 2 * time.Second,
			PollInterval: 50 * time.Millisecond,
		},
		Payment: PaymentConfig{
			MaxRetries:   2,
			RetryBackoff: 100 * time.Millisecond,
			MockDelay:    0,
		},
		Returns: ReturnsConfig{EligibilityRule: "qty <= purchased"},
	}
}

// Load 读取 yaml 配置文件（路径可为空）并应用环境变量覆盖。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv 用环境变量覆盖部署相关的字段。业务参数只走配置文件。
func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("DB_HOST"); ok {
		c.Database.Host = v
	}
	if v, ok := os.LookupEnv("DB_PORT"); ok {
		if p, err := strconv.Atoi(v); err == nil {
			c.Database.Port = p
		}
	}
	if v, ok := os.LookupEnv("DB_USER"); ok {
		c.Database.User = v
	}
	if v, ok := os.LookupEnv("DB_PASSWORD"); ok {
		c.Database.Password = v
	}
	if v, ok := os.LookupEnv("DB_NAME"); ok {
		c.Database.Name = v
	}
	if v, ok := os.LookupEnv("REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := os.LookupEnv("ZK_SERVERS"); ok {
		c.Zookeeper.Servers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
		c.Jaeger.Endpoint = v
	}
	if v, ok := os.LookupEnv("NACOS_SERVER_ADDRS"); ok {
		c.Nacos.ServerAddrs = v
		c.Nacos.Enabled = true
	}
	if v, ok := os.LookupEnv("NACOS_NAMESPACE"); ok {
		c.Nacos.Namespace = v
	}
	if v, ok := os.LookupEnv("NACOS_GROUP"); ok {
		c.Nacos.Group = v
	}
	if v, ok := os.LookupEnv("SERVICE_PORT"); ok {
		if p, err := strconv.Atoi(v); err == nil {
			c.Service.Port = p
		}
	}
}
