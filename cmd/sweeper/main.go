// The sweeper reconciles payment orders in the background: it polls the
// swap provider for every open order and retries the on-chain settlement
// record for settled orders whose earlier write failed. A Redis lock keeps
// concurrent sweeper instances from double-polling.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chaindrop/chaindrop-backend/internal/conf"
	"github.com/chaindrop/chaindrop-backend/internal/data"
	filedata "github.com/chaindrop/chaindrop-backend/internal/file/data"
	paymentbiz "github.com/chaindrop/chaindrop-backend/internal/payment/biz"
	paymentdata "github.com/chaindrop/chaindrop-backend/internal/payment/data"
	"github.com/chaindrop/chaindrop-backend/internal/pkg/logger"
)

const (
	sweepLockKey = "sweeper:lock"
	sweepWorkers = 8
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
)

func main() {
	flag.Parse()

	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:            config.Log.Level,
		Format:           config.Log.Format,
		Output:           config.Log.Output,
		EnableCaller:     config.Log.EnableCaller,
		EnableStacktrace: config.Log.EnableStacktrace,
		File: logger.FileConfig{
			Filename:   config.Log.File.Filename,
			MaxSize:    config.Log.File.MaxSize,
			MaxAge:     config.Log.File.MaxAge,
			MaxBackups: config.Log.File.MaxBackups,
			Compress:   config.Log.File.Compress,
		},
	})
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	d, cleanup, err := data.NewData(config, log.Logger)
	if err != nil {
		log.Fatal("failed to initialize data layer", zap.Error(err))
	}
	defer cleanup()

	fileRepo := filedata.NewFileRepo(d.DB)
	orderRepo := paymentdata.NewOrderRepo(d.DB)
	reconciler := paymentbiz.NewReconciler(orderRepo, fileRepo, d.Swap, d.Chain,
		config.Swap.SettleAsset, config.Swap.SettleNetwork, log.Logger)

	pool, err := ants.NewPool(sweepWorkers)
	if err != nil {
		log.Fatal("failed to create worker pool", zap.Error(err))
	}
	defer pool.Release()

	sweeper := &sweeper{
		repo:       orderRepo,
		reconciler: reconciler,
		rdb:        d.RedisClient,
		pool:       pool,
		lockTTL:    config.Swap.SweepInterval * 2,
		logger:     log.Logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("sweeper started",
		zap.Duration("interval", config.Swap.SweepInterval),
		zap.Int("workers", sweepWorkers),
	)

	ticker := time.NewTicker(config.Swap.SweepInterval)
	defer ticker.Stop()

	sweeper.run(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper exiting")
			return
		case <-ticker.C:
			sweeper.run(ctx)
		}
	}
}

type sweeper struct {
	repo       paymentbiz.OrderRepo
	reconciler *paymentbiz.Reconciler
	rdb        *redis.Client
	pool       *ants.Pool
	lockTTL    time.Duration
	logger     *zap.Logger
}

// run performs one sweep if this instance wins the lock.
func (s *sweeper) run(ctx context.Context) {
	locked, err := s.rdb.SetNX(ctx, sweepLockKey, "1", s.lockTTL).Result()
	if err != nil {
		s.logger.Warn("sweep lock unavailable", zap.Error(err))
		return
	}
	if !locked {
		return
	}
	defer s.rdb.Del(ctx, sweepLockKey)

	open, err := s.repo.ListUnsettled(ctx)
	if err != nil {
		s.logger.Error("listing open orders failed", zap.Error(err))
		return
	}

	var wg sync.WaitGroup
	for _, order := range open {
		orderID := order.OrderID
		wg.Add(1)
		if err := s.pool.Submit(func() {
			defer wg.Done()
			if _, err := s.reconciler.PollStatus(ctx, orderID); err != nil {
				s.logger.Warn("order reconciliation failed",
					zap.String("order_id", orderID),
					zap.Error(err),
				)
			}
		}); err != nil {
			wg.Done()
			s.logger.Warn("pool submit failed", zap.Error(err))
		}
	}
	wg.Wait()

	unrecorded, err := s.repo.ListSettledUnrecorded(ctx)
	if err != nil {
		s.logger.Error("listing unrecorded settlements failed", zap.Error(err))
		return
	}
	for _, order := range unrecorded {
		s.reconciler.RecordSettlement(ctx, order)
	}

	if len(open) > 0 || len(unrecorded) > 0 {
		s.logger.Info("sweep complete",
			zap.Int("polled", len(open)),
			zap.Int("settlement_retries", len(unrecorded)),
		)
	}
}
