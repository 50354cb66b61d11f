package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/lensshop/gateway"
	"github.com/example/lensshop/pkg/admin"
	"github.com/example/lensshop/pkg/catalog"
	"github.com/example/lensshop/pkg/checkout"
	"github.com/example/lensshop/pkg/config"
	"github.com/example/lensshop/pkg/discovery"
	"github.com/example/lensshop/pkg/grpc"
	"github.com/example/lensshop/pkg/identity"
	"github.com/example/lensshop/pkg/logger"
	"github.com/example/lensshop/pkg/metrics"
	"github.com/example/lensshop/pkg/repository"
	"github.com/example/lensshop/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Setup logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting storefront gateway",
		zap.Int("port", cfg.Gateway.Port),
		zap.String("host", cfg.Gateway.Host))

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewStorefront(reg)

	// Setup service discovery
	var resolver grpc.Resolver
	if len(cfg.Etcd.Endpoints) > 0 {
		sd, err := discovery.NewServiceDiscovery(&cfg.Etcd, log)
		if err != nil {
			log.Warn("Failed to connect to etcd, continuing without service discovery", zap.Error(err))
		} else {
			defer sd.Close()
			resolver = sd
		}
	}

	// Backend connection
	ctx := context.Background()
	backends := grpc.NewClientManager(cfg.Backend, resolver, m, log)
	if err := backends.Connect(ctx); err != nil {
		log.Fatal("Failed to connect to storefront backend", zap.Error(err))
	}
	defer backends.Close()
	backend := backends.Client()

	provider, err := identity.NewJWTProvider(cfg.Identity)
	if err != nil {
		log.Fatal("Failed to create identity provider", zap.Error(err))
	}

	// Session storage
	redisRepo := repository.NewRedisRepository(&cfg.Redis)
	defer redisRepo.Close()
	pingCtx, cancelPing := context.WithTimeout(ctx, cfg.Backend.DialTimeout)
	storage := session.NewStorage(pingCtx, redisRepo, cfg.Storefront.SessionTTL, log)
	cancelPing()

	sessionDeps := session.Deps{
		Storage:    storage,
		Backend:    backend,
		Provider:   provider,
		Storefront: cfg.Storefront,
		Metrics:    m,
		Logger:     log,
	}
	system := actor.NewActorSystem()
	sessions := session.NewManager(system, sessionDeps.Builder(), session.Options{
		Idle:           cfg.Storefront.SessionIdle,
		RequestTimeout: cfg.Storefront.SessionTimeout,
		Metrics:        m,
		Logger:         log,
	})

	cat := catalog.New(backend, cfg.Storefront.CatalogTTL, log)

	// Create gateway
	gw := gateway.NewGateway(gateway.Deps{
		Config:   cfg,
		Sessions: sessions,
		Catalog:  cat,
		Checkout: checkout.New(backend, cat, log),
		Admin:    admin.New(backend, cat, log),
		Account:  backend,
		Gatherer: reg,
		Metrics:  m,
		Logger:   log,
	})

	// Start gateway in goroutine
	gwErr := make(chan error, 1)
	go func() {
		if err := gw.Start(); err != nil {
			gwErr <- err
		}
	}()

	log.Info("Gateway started successfully")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("Received shutdown signal")
	case err := <-gwErr:
		log.Error("Gateway error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gw.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down gateway", zap.Error(err))
	}
	sessions.Shutdown()
	system.Shutdown()

	log.Info("Gateway stopped")
}
