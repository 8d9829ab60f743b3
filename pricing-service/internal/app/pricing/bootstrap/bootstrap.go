package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/Qirrat098/ShopSmart/pkg/logger"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/config"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/entity"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const connectAttempts = 10

// Storage - открытые подключения к хранилищам сервиса
type Storage struct {
	Stores repository.StoreRepository
	Items  repository.ItemRepository
	close  []func()
}

// Close закрывает подключения в обратном порядке
func (s *Storage) Close() {
	for i := len(s.close) - 1; i >= 0; i-- {
		s.close[i]()
	}
}

// OpenStorage подключает PostgreSQL для магазинов и хранилище товаров по ITEM_STORAGE
func OpenStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	storage := &Storage{}

	db, err := ConnectGorm(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&entity.Store{}); err != nil {
		return nil, fmt.Errorf("failed to migrate stores: %w", err)
	}
	storage.close = append(storage.close, func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	storage.Stores = repository.NewStoreRepository(db)
	logger.Info().Str("host", cfg.Database.Host).Msg("Connected to PostgreSQL (stores)")

	switch cfg.Storage.ItemBackend {
	case config.StoragePostgres:
		pool, err := ConnectPgxPool(ctx, cfg.Database)
		if err != nil {
			storage.Close()
			return nil, err
		}
		storage.close = append(storage.close, pool.Close)
		if err := repository.MigratePostgres(ctx, pool); err != nil {
			storage.Close()
			return nil, err
		}
		storage.Items = repository.NewPostgresItemRepository(pool)
		logger.Info().Msg("Item storage: PostgreSQL")
	default:
		client, err := ConnectMongoDB(cfg.MongoDB)
		if err != nil {
			storage.Close()
			return nil, err
		}
		storage.close = append(storage.close, func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := client.Disconnect(disconnectCtx); err != nil {
				logger.Error().Err(err).Msg("Error disconnecting from MongoDB")
			}
		})
		storage.Items = repository.NewMongoItemRepository(client.Database(cfg.MongoDB.Database))
		logger.Info().Str("database", cfg.MongoDB.Database).Msg("Item storage: MongoDB")
	}

	return storage, nil
}

func ConnectGorm(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}

	var db *gorm.DB
	var err error

	for i := 0; i < connectAttempts; i++ {
		db, err = gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
		if err == nil {
			sqlDB, sqlErr := db.DB()
			if sqlErr != nil {
				err = sqlErr
			} else if err = sqlDB.Ping(); err == nil {
				sqlDB.SetMaxOpenConns(10)
				sqlDB.SetMaxIdleConns(2)
				sqlDB.SetConnMaxLifetime(5 * time.Minute)
				return db, nil
			}
		}
		logger.Warn().
			Int("attempt", i+1).
			Err(err).
			Msg("Failed to connect to database, retrying...")
		time.Sleep(3 * time.Second)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", connectAttempts, err)
}

func ConnectPgxPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	var pool *pgxpool.Pool
	for i := 0; i < connectAttempts; i++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		logger.Warn().
			Int("attempt", i+1).
			Err(err).
			Msg("Failed to connect to PostgreSQL pool, retrying...")
		time.Sleep(3 * time.Second)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", connectAttempts, err)
}

func ConnectMongoDB(cfg config.MongoDBConfig) (*mongo.Client, error) {
	clientOptions := options.Client().ApplyURI(cfg.URI)

	var client *mongo.Client
	var err error

	for i := 0; i < connectAttempts; i++ {
		client, err = connectMongoOnce(clientOptions)
		if err == nil {
			return client, nil
		}
		logger.Warn().
			Int("attempt", i+1).
			Err(err).
			Msg("Failed to connect to MongoDB, retrying...")
		time.Sleep(3 * time.Second)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", connectAttempts, err)
}

func connectMongoOnce(clientOptions *options.ClientOptions) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}
