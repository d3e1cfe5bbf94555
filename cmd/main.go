package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/shenikar/safety_alert_dispatch/internal/auth"
	"github.com/shenikar/safety_alert_dispatch/internal/config"
	"github.com/shenikar/safety_alert_dispatch/internal/directory"
	"github.com/shenikar/safety_alert_dispatch/internal/events"
	v1 "github.com/shenikar/safety_alert_dispatch/internal/handler/http/v1"
	"github.com/shenikar/safety_alert_dispatch/internal/location"
	"github.com/shenikar/safety_alert_dispatch/internal/metrics"
	"github.com/shenikar/safety_alert_dispatch/internal/models"
	"github.com/shenikar/safety_alert_dispatch/internal/notify"
	"github.com/shenikar/safety_alert_dispatch/internal/repository"
	"github.com/shenikar/safety_alert_dispatch/internal/service"
	"github.com/shenikar/safety_alert_dispatch/internal/webhook"
	"github.com/shenikar/safety_alert_dispatch/pkg/logger"
	mqttclient "github.com/shenikar/safety_alert_dispatch/pkg/mqtt"
	natsclient "github.com/shenikar/safety_alert_dispatch/pkg/nats"
	"github.com/shenikar/safety_alert_dispatch/pkg/postgres"
	redisclient "github.com/shenikar/safety_alert_dispatch/pkg/redis"
	"github.com/sirupsen/logrus"

	_ "github.com/shenikar/safety_alert_dispatch/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const pushTopicPrefix = "tourist_safety/alerts"

// @title Safety Alert Dispatch API
// @version 1.0
// @description Emergency alert lifecycle and dispatch for tourist safety.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func runMigrations(cfg *config.Config, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	migrationURL := cfg.DatabaseURL
	if !strings.HasPrefix(migrationURL, "pgx5://") {
		migrationURL = strings.Replace(migrationURL, "postgres://", "pgx5://", 1)
	}

	m, err := migrate.New(
		"file://migrations",
		migrationURL,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database migrations applied successfully")
	return nil
}

// buildFanout подключает каналы доставки, для которых задана конфигурация.
// Без внешних шлюзов оповещения пишутся в лог, чтобы каждая попытка все равно дала запись.
func buildFanout(cfg *config.Config, log *logrus.Logger, m *metrics.Metrics, alertQueue *webhook.RedisQueue) (*notify.Fanout, func()) {
	fanout := notify.NewFanout(cfg.NotifyTimeout, cfg.NotifyMaxConcurrency, m, log)
	logSink := notify.NewLogSink(log)
	cleanup := func() {}

	if cfg.SMSGatewayURL != "" {
		fanout.Register(models.ChannelSMS, notify.NewGatewaySink(cfg.SMSGatewayURL, cfg.GatewayAPIKey, "/v1/sms", cfg.NotifyTimeout))
	} else {
		fanout.Register(models.ChannelSMS, logSink)
	}
	if cfg.EmailGatewayURL != "" {
		fanout.Register(models.ChannelEmail, notify.NewGatewaySink(cfg.EmailGatewayURL, cfg.GatewayAPIKey, "/v1/email", cfg.NotifyTimeout))
	} else {
		fanout.Register(models.ChannelEmail, logSink)
	}

	fanout.Register(models.ChannelPush, logSink)
	if cfg.MQTTBroker != "" {
		client, err := mqttclient.NewClient(mqttclient.Config{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		})
		if err != nil {
			log.WithError(err).Warn("MQTT broker unavailable, push notifications go to log")
		} else {
			fanout.Register(models.ChannelPush, notify.NewPushSink(client, pushTopicPrefix))
			cleanup = client.Disconnect
			log.Info("Successfully connected to MQTT broker")
		}
	}

	if alertQueue != nil {
		fanout.Register(models.ChannelWebhook, notify.NewWebhookSink(alertQueue))
	} else {
		fanout.Register(models.ChannelWebhook, logSink)
	}
	return fanout, cleanup
}

func main() {
	// Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	log := logger.New(cfg.LogLevel)

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Хранилище инцидентов, справочник и контакты
	var (
		store    service.IncidentStore
		contacts service.ContactBook
		dbpool   *pgxpool.Pool
	)
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		if err := runMigrations(cfg, log); err != nil {
			log.Fatalf("Failed to run database migrations: %v", err)
		}
		dbpool, err = postgres.NewPostgresDB(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		defer dbpool.Close()
		log.Info("Successfully connected to PostgreSQL")
		store = repository.NewPostgresIncidentStore(dbpool)
		contacts = repository.NewPostgresContactBook(dbpool)
	default:
		log.Warn("Using in-memory incident store, incidents are lost on restart")
		store = repository.NewMemoryIncidentStore()
		contacts = repository.NewStaticContactBook()
	}

	responders := directory.NewDirectory(directory.MergeSpeeds(cfg.ResponderSpeeds), log)
	roster := directory.DefaultRoster()
	if dbpool != nil {
		loaded, err := repository.NewPostgresRoster(dbpool).Load(ctx)
		switch {
		case err != nil:
			log.WithError(err).Warn("Failed to load responder roster, using default roster")
		case len(loaded) > 0:
			roster = loaded
		}
	}
	if err := responders.Seed(roster); err != nil {
		log.Fatalf("Failed to seed responder directory: %v", err)
	}

	// Redis необязателен: без него нет кэша снимков и очереди вебхуков
	var (
		redisClient *goredis.Client
		cache       service.SnapshotCache
		alertQueue  *webhook.RedisQueue
	)
	if cfg.RedisAddr != "" {
		redisClient, err = redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, snapshot cache and webhook queue disabled")
		} else {
			defer redisClient.Close()
			log.Info("Successfully connected to Redis")
			cache = repository.NewRedisSnapshotCache(redisClient, cfg.SnapshotCacheTTL)

			// Очередь оповещений экстренной службы и ее воркер
			alertQueue = webhook.NewRedisQueue(redisClient)
			webhook.NewWorker(alertQueue, log, cfg).Start(ctx)
		}
	}

	// Метрики
	appMetrics := metrics.New(prometheus.DefaultRegisterer)

	fanout, closeFanout := buildFanout(cfg, log, appMetrics, alertQueue)
	defer closeFanout()

	// События жизненного цикла
	var publisher service.EventPublisher = events.NopPublisher{}
	if cfg.NATSURL != "" {
		conn, err := natsclient.NewConnection(cfg.NATSURL, "safety-alert-dispatch", log)
		if err != nil {
			log.WithError(err).Warn("NATS unavailable, lifecycle events disabled")
		} else {
			defer conn.Drain()
			publisher = events.NewNATSPublisher(conn)
			log.Info("Successfully connected to NATS")
		}
	}

	// Инициализация оркестратора
	orchestrator := service.NewOrchestrator(service.Dependencies{
		Store:     store,
		Directory: responders,
		Fanout:    fanout,
		Resolver:  location.NewResolver(location.DefaultFallbackTable(), location.DefaultRegion),
		Contacts:  contacts,
		Identity:  auth.NewTokenResolver(cfg.ActorTokenSecret),
		Events:    publisher,
		Cache:     cache,
		Metrics:   appMetrics,
	}, cfg, log)

	// Инициализация хэндлеров
	handler := v1.NewHandler(orchestrator, log, cfg)

	// Настройка Gin роутера
	router := gin.Default()
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	// Метрики и Swagger UI
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Запуск HTTP-сервера
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	// Запуск сервера в горутине
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Error starting HTTP server: %v", err)
		}
	}()
	log.Infof("HTTP server started on port %s", cfg.HTTPPort)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Received shutdown signal, shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// Конвейеры останавливаются после HTTP: новых вызовов уже нет
	orchestrator.Close()
	cancel()

	log.Info("Server gracefully stopped")
}
