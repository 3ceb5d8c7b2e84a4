package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/storefront/gateway"
	"github.com/example/storefront/pkg/analytics"
	"github.com/example/storefront/pkg/audit"
	"github.com/example/storefront/pkg/auth"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/discovery"
	"github.com/example/storefront/pkg/grpc"
	"github.com/example/storefront/pkg/logging"
	"github.com/example/storefront/pkg/orders"
	"github.com/example/storefront/pkg/repository"
	"go.uber.org/zap"
)

// @title                       Storefront API
// @version                     1.0
// @description                 Order lifecycle, catalog and admin analytics for the storefront.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Setup logger
	logger, err := logging.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting storefront",
		zap.String("name", cfg.Server.Name),
		zap.String("address", cfg.Server.Addr()),
		zap.String("stock_policy", string(cfg.Orders.StockPolicy)))

	ctx := context.Background()

	// MongoDB
	mongoRepo, err := repository.NewMongoRepository(&cfg.MongoDB)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	if err := mongoRepo.Ping(ctx); err != nil {
		logger.Warn("MongoDB ping failed", zap.Error(err))
	} else if err := mongoRepo.EnsureIndexes(ctx); err != nil {
		logger.Warn("Failed to ensure indexes", zap.Error(err))
	} else {
		logger.Info("MongoDB connected successfully")
	}

	// Redis
	redisRepo := repository.NewRedisRepository(&cfg.Redis)
	if err := redisRepo.Ping(ctx); err != nil {
		logger.Warn("Redis connection failed, idempotency keys disabled until it recovers", zap.Error(err))
	} else {
		logger.Info("Redis connected successfully")
	}

	productRepo := repository.NewProductRepository(mongoRepo)
	orderRepo := repository.NewOrderRepository(mongoRepo)
	cartRepo := repository.NewCartRepository(mongoRepo)
	userRepo := repository.NewUserRepository(mongoRepo)

	recorder := audit.NewRecorder(mongoRepo, cfg.Server.Name, logger)

	orderSvc := orders.NewService(cfg.Orders, orders.Deps{
		Ledger:  orderRepo,
		Catalog: productRepo,
		Carts:   cartRepo,
		Users:   userRepo,
		Audit:   recorder,
		History: mongoRepo,
	}, logger)

	stats := analytics.NewAggregator(orderRepo, userRepo, productRepo, logger,
		analytics.WithLocation(cfg.Analytics.Location()))

	gw := gateway.NewGateway(cfg, logger, gateway.Services{
		Auth:        auth.NewService(cfg.Auth.JWTSecret),
		Orders:      orderSvc,
		Stats:       stats,
		Catalog:     productRepo,
		Carts:       cartRepo,
		Users:       userRepo,
		Idempotency: redisRepo,
		Readiness: map[string]gateway.CheckFunc{
			"mongodb": mongoRepo.Ping,
			"redis":   redisRepo.Ping,
		},
	})
	gw.SetupRoutes()

	serverErr := make(chan error, 2)
	go func() {
		if err := gw.Start(); err != nil {
			serverErr <- err
		}
	}()

	// gRPC health
	var healthSrv *grpc.HealthServer
	if cfg.GRPC.Enabled {
		healthSrv = grpc.NewHealthServer(&cfg.GRPC, cfg.Server.Name, logger, map[string]grpc.Check{
			"mongodb": mongoRepo.Ping,
		})
		go func() {
			if err := healthSrv.Start(); err != nil {
				serverErr <- err
			}
		}()
	}

	// Service discovery is optional
	var sd *discovery.ServiceDiscovery
	instance := &discovery.ServiceInstance{
		Name: cfg.Server.Name,
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}
	if len(cfg.Etcd.Endpoints) > 0 {
		sd, err = discovery.NewServiceDiscovery(&cfg.Etcd, logger)
		if err != nil {
			logger.Warn("Failed to connect to etcd, continuing without service discovery", zap.Error(err))
		} else if err := sd.Register(ctx, instance); err != nil {
			logger.Warn("Failed to register service", zap.Error(err))
		} else {
			logger.Info("Service registered in etcd", zap.String("address", instance.Addr()))
		}
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("Received shutdown signal")
	case err := <-serverErr:
		logger.Error("Server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if sd != nil {
		if err := sd.Deregister(shutdownCtx, instance); err != nil {
			logger.Error("Failed to deregister service", zap.Error(err))
		}
		sd.Close()
	}
	if err := gw.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	if healthSrv != nil {
		healthSrv.Close()
	}
	// Drain pending audit entries before the database goes away.
	if err := recorder.Close(); err != nil {
		logger.Error("Audit recorder shutdown failed", zap.Error(err))
	}
	if err := redisRepo.Close(); err != nil {
		logger.Error("Redis close failed", zap.Error(err))
	}
	if err := mongoRepo.Close(shutdownCtx); err != nil {
		logger.Error("MongoDB close failed", zap.Error(err))
	}

	logger.Info("Storefront stopped")
}
