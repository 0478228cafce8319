package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
// Порт и адрес метрик не имеют общих значений по умолчанию:
// каждый бинарник подставляет свои, когда переменная не задана.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Pubsub struct {
		Name       string        `envconfig:"PUBSUB_NAME" default:"pubsub"`
		SidecarURL string        `envconfig:"DAPR_SIDECAR_URL" default:"http://localhost:3500"`
		DedupTTL   time.Duration `envconfig:"EVENT_DEDUP_TTL" default:"24h"`
	} `envconfig:""`

	AMQP struct {
		URL   string `envconfig:"AMQP_URL"`
		Queue string `envconfig:"AMQP_QUEUE"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
