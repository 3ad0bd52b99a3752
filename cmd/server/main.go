package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chaindrop/chaindrop-backend/internal/conf"
	"github.com/chaindrop/chaindrop-backend/internal/data"
	filebiz "github.com/chaindrop/chaindrop-backend/internal/file/biz"
	filedata "github.com/chaindrop/chaindrop-backend/internal/file/data"
	fileservice "github.com/chaindrop/chaindrop-backend/internal/file/service"
	paymentbiz "github.com/chaindrop/chaindrop-backend/internal/payment/biz"
	paymentdata "github.com/chaindrop/chaindrop-backend/internal/payment/data"
	paymentservice "github.com/chaindrop/chaindrop-backend/internal/payment/service"
	"github.com/chaindrop/chaindrop-backend/internal/pkg/logger"
	"github.com/chaindrop/chaindrop-backend/internal/server"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
)

func main() {
	flag.Parse()

	// Load configuration
	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger with config
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

	log.Info("config loaded successfully")

	// Initialize data layer
	d, cleanup, err := data.NewData(config, log.Logger)
	if err != nil {
		log.Fatal("failed to initialize data layer", zap.Error(err))
	}
	defer cleanup()

	// Initialize repositories
	fileRepo := filedata.NewCachedFileRepo(filedata.NewFileRepo(d.DB), d.RedisClient, log.Logger)
	orderRepo := paymentdata.NewOrderRepo(d.DB)

	// Initialize use cases
	tokens := filebiz.NewTokenIssuer(config.Auth.ViewTokenSecret, config.Auth.ViewTokenTTL)
	fileUseCase := filebiz.NewFileUseCase(fileRepo, d.Store, d.Chain, filebiz.NewPreviewer(),
		config.Server.FrontendURL, log.Logger)
	accessGate := filebiz.NewAccessGate(fileRepo, d.Chain, tokens, log.Logger)
	downloadUseCase := filebiz.NewDownloadUseCase(fileRepo, d.Store, d.Chain, log.Logger)
	reconciler := paymentbiz.NewReconciler(orderRepo, fileRepo, d.Swap, d.Chain,
		config.Swap.SettleAsset, config.Swap.SettleNetwork, log.Logger)

	// Initialize services
	fileService := fileservice.NewFileService(fileUseCase, accessGate, downloadUseCase, log.Logger)
	orderService := paymentservice.NewOrderService(reconciler, log.Logger)

	// Initialize HTTP server
	httpServer := server.NewHTTPServer(config, log.Logger, fileService, orderService)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	log.Info("server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
