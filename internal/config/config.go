package config

import (
	"os"
	"strconv"

	common "github.com/mikeyoung304/plate-order-system-lean-sub009/internal/common/config"
)

// Config KDS引擎配置
type Config struct {
	Database common.DatabaseConfig
	Redis    common.RedisConfig
	Rabbit   common.RabbitConfig
	MQTT     common.MQTTConfig

	Engine struct {
		// 工位目录YAML文件；为空使用内置默认目录
		StationsFile string

		// 聚合间隔（秒）：每个tick用同一个now重算全部派生视图
		AggregationInterval int

		// 轮询兜底间隔（秒）：连接不健康时按此间隔强制拉取
		PollInterval int

		// 单次快照拉取超时（秒）
		FetchTimeout int

		// 重连退避参数
		BackoffInitialMs   int
		BackoffMaxSecs     int
		BackoffMaxAttempts int

		// 订单队列预取数
		Prefetch int

		// 运营告警Webhook（为空时只落日志）
		OperatorWebhookURL string

		// 是否启用MQTT视图推送
		MQTTEnabled bool
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "plateorders")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.Rabbit.Host = getEnv("RABBIT_HOST", "localhost")
	cfg.Rabbit.Port = 5672
	cfg.Rabbit.User = getEnv("RABBIT_USER", "guest")
	cfg.Rabbit.Password = getEnv("RABBIT_PASSWORD", "guest")
	cfg.Rabbit.Queue = getEnv("RABBIT_QUEUE", "kds_orders")
	cfg.Rabbit.LoadFromEnv("RABBIT")

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "kds-engine")
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Engine.StationsFile = getEnv("KDS_STATIONS_FILE", "")
	cfg.Engine.AggregationInterval = getEnvInt("KDS_AGGREGATION_INTERVAL", 1)
	cfg.Engine.PollInterval = getEnvInt("KDS_POLL_INTERVAL", 10)
	cfg.Engine.FetchTimeout = getEnvInt("KDS_FETCH_TIMEOUT", 5)
	cfg.Engine.BackoffInitialMs = getEnvInt("KDS_BACKOFF_INITIAL_MS", 1000)
	cfg.Engine.BackoffMaxSecs = getEnvInt("KDS_BACKOFF_MAX_SECS", 30)
	cfg.Engine.BackoffMaxAttempts = getEnvInt("KDS_BACKOFF_MAX_ATTEMPTS", 8)
	cfg.Engine.Prefetch = getEnvInt("KDS_PREFETCH", 10)
	cfg.Engine.OperatorWebhookURL = getEnv("KDS_OPERATOR_WEBHOOK", "")
	cfg.Engine.MQTTEnabled = getEnv("KDS_MQTT_ENABLED", "false") == "true"

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil && v > 0 {
			return v
		}
	}
	return defaultValue
}
