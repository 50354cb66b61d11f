package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/lensshop/pkg/config"
	"github.com/example/lensshop/pkg/discovery"
	"github.com/example/lensshop/pkg/grpc"
	"github.com/example/lensshop/pkg/identity"
	"github.com/example/lensshop/pkg/logger"
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

	log.Info("Starting storefront backend",
		zap.String("name", cfg.Server.Name),
		zap.Int("port", cfg.Server.Port))

	provider, err := identity.NewJWTProvider(cfg.Identity)
	if err != nil {
		log.Fatal("Failed to create identity provider", zap.Error(err))
	}

	// Create server
	server, err := grpc.OpenBackendServer(cfg, log)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}
	defer server.Close()

	instance := &discovery.ServiceInstance{
		Name: cfg.Backend.ServiceName,
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}

	// Register with etcd when it is configured
	ctx := context.Background()
	var sd *discovery.ServiceDiscovery
	if len(cfg.Etcd.Endpoints) > 0 {
		sd, err = discovery.NewServiceDiscovery(&cfg.Etcd, log)
		if err != nil {
			log.Fatal("Failed to connect to etcd", zap.Error(err))
		}
		defer sd.Close()

		if err := sd.Register(ctx, instance); err != nil {
			log.Fatal("Failed to register service", zap.Error(err))
		}
		log.Info("Service registered in etcd",
			zap.String("name", instance.Name),
			zap.String("address", instance.Address()))
	}

	srv := grpc.NewGRPCServer(server, provider, log)

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		if err := grpc.Serve(srv, fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), log); err != nil {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("Received shutdown signal")
	case err := <-serverErr:
		log.Error("Server error", zap.Error(err))
	}

	// Deregister service
	if sd != nil {
		if err := sd.Deregister(ctx, instance); err != nil {
			log.Error("Failed to deregister service", zap.Error(err))
		}
	}
	srv.GracefulStop()

	log.Info("Service stopped")
}
