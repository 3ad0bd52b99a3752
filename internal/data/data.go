package data

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/chaindrop/chaindrop-backend/internal/chain"
	"github.com/chaindrop/chaindrop-backend/internal/conf"
	filedata "github.com/chaindrop/chaindrop-backend/internal/file/data"
	paymentdata "github.com/chaindrop/chaindrop-backend/internal/payment/data"
	"github.com/chaindrop/chaindrop-backend/internal/storage"
	"github.com/chaindrop/chaindrop-backend/internal/swap"
)

// Data bundles the shared infrastructure clients.
type Data struct {
	DB          *gorm.DB
	RedisClient *redis.Client
	Store       storage.ContentStore
	Chain       *chain.Client
	Swap        *swap.Client
	Logger      *zap.Logger
}

func NewData(config *conf.Config, log *zap.Logger) (*Data, func(), error) {
	db, err := initDB(config, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init database: %w", err)
	}

	redisClient := initRedis(config)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	store, err := storage.New(config.Storage, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init content storage: %w", err)
	}

	chainClient, err := chain.New(config.Chain, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init chain client: %w", err)
	}

	d := &Data{
		DB:          db,
		RedisClient: redisClient,
		Store:       store,
		Chain:       chainClient,
		Swap:        swap.New(config.Swap, log),
		Logger:      log,
	}

	cleanup := func() {
		log.Info("cleaning up data resources")

		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}

		if redisClient != nil {
			redisClient.Close()
		}

		chainClient.Close()
	}

	return d, cleanup, nil
}

func initDB(config *conf.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(config.Database.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&filedata.FilePO{},
		&filedata.DownloadEventPO{},
		&paymentdata.OrderPO{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	log.Info("database initialized successfully")
	return db, nil
}

func initRedis(config *conf.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Redis.Host, config.Redis.Port),
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
}
