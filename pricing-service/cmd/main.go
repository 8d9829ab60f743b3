package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Qirrat098/ShopSmart/pkg/logger"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/bootstrap"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/config"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/handler"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/processor"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/service"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/util"
)

const serviceName = "pricing-service"

func main() {
	// === ИНИЦИАЛИЗАЦИЯ КОНФИГУРАЦИИ ===
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load config")
	}

	logger.Init(serviceName, cfg.Log.Level)
	if cfg.Log.LogstashAddr != "" {
		if err := logger.InitLogstash(cfg.Log.LogstashAddr, serviceName, cfg.Log.Level); err != nil {
			logger.Warn().Err(err).Msg("Failed to connect to Logstash, using stdout only")
		} else {
			logger.Info().Str("logstash_addr", cfg.Log.LogstashAddr).Msg("Connected to Logstash")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === ХРАНИЛИЩА ===
	// Магазины в PostgreSQL (GORM), товары в MongoDB или PostgreSQL (pgx)
	storage, err := bootstrap.OpenStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer storage.Close()

	// === REDIS ===
	// Кеш представлений необязателен: без Redis запросы идут в хранилище
	var cache util.ViewCache
	redisClient, err := util.NewRedisClient(cfg.Redis.Address(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, view cache disabled")
	} else {
		defer redisClient.Close()
		cache = redisClient
		logger.Info().Str("addr", cfg.Redis.Address()).Msg("Connected to Redis")
	}

	// === KAFKA PRODUCER ===
	// PRICE_UPDATED / PRICE_REMOVED / ITEM_DELETED в топик price_events
	var publisher util.MessagePublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer := util.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		defer kafkaProducer.Close()
		publisher = kafkaProducer
		logger.Info().Str("topic", cfg.Kafka.EventsTopic).Msg("Kafka producer initialized")
	}

	// === СЕРВИСЫ ===
	priceService := service.NewPriceService(storage.Items, storage.Stores, cache, publisher)
	queryService := service.NewQueryService(storage.Items, storage.Stores, cache, cfg.Cache.TTL)
	catalogService := service.NewCatalogService(storage.Stores, storage.Items, cache, publisher)

	// === KAFKA CONSUMER ===
	// Наблюдения цен от внешних источников
	var consumer *processor.KafkaConsumer
	if cfg.Kafka.ConsumerEnabled {
		consumer = processor.NewKafkaConsumer(
			cfg.Kafka.Brokers,
			cfg.Kafka.ObservationsTopic,
			cfg.Kafka.GroupID,
			cfg.Kafka.MinBytes,
			cfg.Kafka.MaxBytes,
			priceService,
		)
		consumer.Start(ctx)
	}

	// === CRON ===
	// Периодическая сверка сохраненных метрик с ценами
	scheduler := processor.NewCronScheduler(priceService)
	if cfg.Cron.ReconcileSchedule != "" {
		if err := scheduler.Start(ctx, cfg.Cron.ReconcileSchedule); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start cron scheduler")
		}
	} else {
		logger.Info().Msg("Reconcile schedule is empty, cron disabled")
	}

	// === HTTP ===
	pricingHandler := handler.NewPricingHandler(priceService, queryService, catalogService)
	authMiddleware := handler.NewAuthMiddleware(cfg.JWT.Secret)
	router := handler.SetupRoutes(pricingHandler, authMiddleware)

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Address()).Msg("Starting Pricing Service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// === GRACEFUL SHUTDOWN ===
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down Pricing Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	scheduler.Stop()
	if consumer != nil {
		consumer.Stop()
	}
	cancel()

	logger.Info().Msg("Pricing Service stopped gracefully")
}
