package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

// Config - структура для хранения конфигурации приложения
type Config struct {
	DatabaseURL  string `env:"DATABASE_URL"`
	StoreBackend string `env:"STORE_BACKEND" envDefault:"postgres"`
	HTTPPort     string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis Config
	RedisAddr        string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass        string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`
	SnapshotCacheTTL time.Duration `env:"SNAPSHOT_CACHE_TTL" envDefault:"5m"`

	// Webhook Config (канал экстренной службы)
	WebhookURL        string        `env:"WEBHOOK_URL"`
	WebhookSecret     string        `env:"WEBHOOK_SECRET"`
	WebhookTimeout    time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"5s"`
	WebhookMaxRetries int           `env:"WEBHOOK_MAX_RETRIES" envDefault:"5"`
	WebhookBaseDelay  time.Duration `env:"WEBHOOK_BASE_DELAY" envDefault:"1s"`

	// API Keys for authentication
	APIKeys []string `env:"API_KEYS"`
	// Секрет подписи токенов участников (tourist, responder, operator)
	ActorTokenSecret string `env:"ACTOR_TOKEN_SECRET"`

	// Pipeline Config
	LocationTimeout      time.Duration `env:"LOCATION_TIMEOUT" envDefault:"3s"`
	LocationRetries      int           `env:"LOCATION_RETRIES" envDefault:"2"`
	NotifyTimeout        time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`
	NotifyMaxConcurrency int           `env:"NOTIFY_MAX_CONCURRENCY" envDefault:"8"`
	DirectoryTimeout     time.Duration `env:"DIRECTORY_TIMEOUT" envDefault:"3s"`

	// Dispatch Config
	DispatchInitialRadiusKm float64 `env:"DISPATCH_INITIAL_RADIUS_KM" envDefault:"5"`
	DispatchMaxExpansions   int     `env:"DISPATCH_MAX_EXPANSIONS" envDefault:"3"`
	DispatchTopK            int     `env:"DISPATCH_TOP_K" envDefault:"2"`
	DispatchRequeryRounds   int     `env:"DISPATCH_REQUERY_ROUNDS" envDefault:"3"`

	// Store retry Config
	StoreMaxAttempts    int           `env:"STORE_MAX_ATTEMPTS" envDefault:"3"`
	StoreRetryBaseDelay time.Duration `env:"STORE_RETRY_BASE_DELAY" envDefault:"100ms"`

	// Скорости по типам экипажей, км/ч
	ResponderSpeeds map[string]float64 `env:"RESPONDER_SPEEDS"`

	// Получатель, которому всегда уходит оповещение экстренной службы
	EmergencyServiceChannel   string `env:"EMERGENCY_SERVICE_CHANNEL" envDefault:"webhook"`
	EmergencyServiceRecipient string `env:"EMERGENCY_SERVICE_RECIPIENT" envDefault:"emergency-dispatch"`

	// Notification gateways
	SMSGatewayURL   string `env:"SMS_GATEWAY_URL"`
	EmailGatewayURL string `env:"EMAIL_GATEWAY_URL"`
	GatewayAPIKey   string `env:"GATEWAY_API_KEY"`

	// MQTT Config (push)
	MQTTBroker   string `env:"MQTT_BROKER"`
	MQTTClientID string `env:"MQTT_CLIENT_ID" envDefault:"safety-alert-dispatch"`
	MQTTUsername string `env:"MQTT_USERNAME"`
	MQTTPassword string `env:"MQTT_PASSWORD"`

	// NATS Config (события жизненного цикла)
	NATSURL string `env:"NATS_URL"`
}

// LoadConfig загружает конфигурацию из переменных окружения и .env файла
func LoadConfig() (*Config, error) {
	// Загрузка переменных окружения из .env файла (если есть)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("ошибка загрузки файла .env: %w", err)
	}

	cfg := &Config{
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		StoreBackend:              strings.ToLower(getEnv("STORE_BACKEND", StoreBackendPostgres)),
		HTTPPort:                  getEnv("HTTP_PORT", "8080"),
		LogLevel:                  getEnv("LOG_LEVEL", "info"),
		RedisAddr:                 getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:                 os.Getenv("REDIS_PASSWORD"),
		RedisDB:                   getEnvAsInt("REDIS_DB", 0),
		SnapshotCacheTTL:          getEnvAsDuration("SNAPSHOT_CACHE_TTL", 5*time.Minute),
		WebhookURL:                os.Getenv("WEBHOOK_URL"),
		WebhookSecret:             os.Getenv("WEBHOOK_SECRET"),
		WebhookTimeout:            getEnvAsDuration("WEBHOOK_TIMEOUT", 5*time.Second),
		WebhookMaxRetries:         getEnvAsInt("WEBHOOK_MAX_RETRIES", 5),
		WebhookBaseDelay:          getEnvAsDuration("WEBHOOK_BASE_DELAY", time.Second),
		ActorTokenSecret:          os.Getenv("ACTOR_TOKEN_SECRET"),
		LocationTimeout:           getEnvAsDuration("LOCATION_TIMEOUT", 3*time.Second),
		LocationRetries:           getEnvAsInt("LOCATION_RETRIES", 2),
		NotifyTimeout:             getEnvAsDuration("NOTIFY_TIMEOUT", 5*time.Second),
		NotifyMaxConcurrency:      getEnvAsInt("NOTIFY_MAX_CONCURRENCY", 8),
		DirectoryTimeout:          getEnvAsDuration("DIRECTORY_TIMEOUT", 3*time.Second),
		DispatchInitialRadiusKm:   getEnvAsFloat("DISPATCH_INITIAL_RADIUS_KM", 5),
		DispatchMaxExpansions:     getEnvAsInt("DISPATCH_MAX_EXPANSIONS", 3),
		DispatchTopK:              getEnvAsInt("DISPATCH_TOP_K", 2),
		DispatchRequeryRounds:     getEnvAsInt("DISPATCH_REQUERY_ROUNDS", 3),
		StoreMaxAttempts:          getEnvAsInt("STORE_MAX_ATTEMPTS", 3),
		StoreRetryBaseDelay:       getEnvAsDuration("STORE_RETRY_BASE_DELAY", 100*time.Millisecond),
		EmergencyServiceChannel:   getEnv("EMERGENCY_SERVICE_CHANNEL", "webhook"),
		EmergencyServiceRecipient: getEnv("EMERGENCY_SERVICE_RECIPIENT", "emergency-dispatch"),
		SMSGatewayURL:             os.Getenv("SMS_GATEWAY_URL"),
		EmailGatewayURL:           os.Getenv("EMAIL_GATEWAY_URL"),
		GatewayAPIKey:             os.Getenv("GATEWAY_API_KEY"),
		MQTTBroker:                os.Getenv("MQTT_BROKER"),
		MQTTClientID:              getEnv("MQTT_CLIENT_ID", "safety-alert-dispatch"),
		MQTTUsername:              os.Getenv("MQTT_USERNAME"),
		MQTTPassword:              os.Getenv("MQTT_PASSWORD"),
		NATSURL:                   os.Getenv("NATS_URL"),
	}

	// Загрузка API ключей
	apiKeysStr := os.Getenv("API_KEYS")
	if apiKeysStr != "" {
		cfg.APIKeys = strings.Split(apiKeysStr, ",")
		for i, key := range cfg.APIKeys {
			cfg.APIKeys[i] = strings.TrimSpace(key)
		}
	}

	speeds, err := ParseSpeeds(os.Getenv("RESPONDER_SPEEDS"))
	if err != nil {
		return nil, err
	}
	cfg.ResponderSpeeds = speeds

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case StoreBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is required")
		}
	case StoreBackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.DispatchInitialRadiusKm <= 0 {
		return fmt.Errorf("DISPATCH_INITIAL_RADIUS_KM must be positive")
	}
	if c.DispatchTopK < 1 {
		return fmt.Errorf("DISPATCH_TOP_K must be at least 1")
	}
	if c.StoreMaxAttempts < 1 {
		return fmt.Errorf("STORE_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// ParseSpeeds разбирает строку вида "police=40,medical=45" в таблицу скоростей
func ParseSpeeds(raw string) (map[string]float64, error) {
	speeds := make(map[string]float64)
	if strings.TrimSpace(raw) == "" {
		return speeds, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("invalid RESPONDER_SPEEDS entry %q", pair)
		}
		kmh, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || kmh <= 0 {
			return nil, fmt.Errorf("invalid speed for %q in RESPONDER_SPEEDS", name)
		}
		speeds[strings.ToLower(strings.TrimSpace(name))] = kmh
	}
	return speeds, nil
}

// getEnv возвращает значение переменной окружения или значение по умолчанию
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt возвращает значение переменной окружения как int или значение по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsDuration возвращает значение переменной окружения как time.Duration или значение по умолчанию
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}
