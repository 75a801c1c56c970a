package config

import (
	"time"

	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr       string
	CRDBDSN        string
	MongoURI       string
	RedisAddr      string
	RabbitURL      string
	GatewayBaseURL string
	GatewayKey     string
	WebhookSecret  string
	JWTSecret      string
	GatewayTimeout time.Duration
	OTLPEndpoint   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	gwTimeout, _ := time.ParseDuration(os.Getenv("GATEWAY_TIMEOUT"))
	if gwTimeout == 0 {
		gwTimeout = 10 * time.Second
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	return &Config{
		HTTPAddr:       addr,
		CRDBDSN:        os.Getenv("CRDB_DSN"),
		MongoURI:       os.Getenv("MONGO_URI"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RabbitURL:      os.Getenv("RABBIT_URL"),
		GatewayBaseURL: os.Getenv("GATEWAY_BASE_URL"),
		GatewayKey:     os.Getenv("GATEWAY_SECRET_KEY"),
		WebhookSecret:  os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		GatewayTimeout: gwTimeout,
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
