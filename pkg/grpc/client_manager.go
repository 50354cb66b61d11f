package grpc

import (
	"context"
	"fmt"
	"time"

	"github.com/example/lensshop/pkg/config"
	"github.com/example/lensshop/pkg/discovery"
	"github.com/example/lensshop/pkg/metrics"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Resolver finds running instances of a named service.
type Resolver interface {
	Discover(ctx context.Context, serviceName string) ([]*discovery.ServiceInstance, error)
}

// ClientManager owns the gateway's connection to the storefront backend.
type ClientManager struct {
	config   config.BackendConfig
	resolver Resolver
	metrics  *metrics.Storefront
	logger   *zap.Logger

	conn   *grpc.ClientConn
	client *Client
}

// NewClientManager creates a manager. resolver may be nil, in which case
// the configured target is always used.
func NewClientManager(cfg config.BackendConfig, resolver Resolver, m *metrics.Storefront, logger *zap.Logger) *ClientManager {
	return &ClientManager{
		config:   cfg,
		resolver: resolver,
		metrics:  m,
		logger:   logger,
	}
}

// Target picks the backend address, preferring a discovered instance.
func (m *ClientManager) Target(ctx context.Context) string {
	target := m.config.Target
	if m.resolver == nil {
		return target
	}

	timeout := m.config.DialTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	instances, err := m.resolver.Discover(ctx, m.config.ServiceName)
	if err == nil && len(instances) > 0 {
		target = instances[0].Address()
		m.logger.Info("Discovered storefront backend", zap.String("address", target))
	} else {
		m.logger.Info("Using default address for storefront backend",
			zap.String("address", target), zap.Error(err))
	}
	return target
}

// Connect establishes the backend connection. The connection is lazy; a
// backend that is down surfaces as Unavailable on the first call.
func (m *ClientManager) Connect(ctx context.Context) error {
	target := m.Target(ctx)
	m.logger.Info("Connecting to storefront backend", zap.String("target", target))

	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to storefront backend: %w", err)
	}

	m.conn = conn
	m.client = NewClient(conn, ClientOptions{
		CallTimeout:    m.config.CallTimeout,
		BreakerTimeout: m.config.BreakerTimeout,
		BreakerTrips:   m.config.BreakerTrips,
		Metrics:        m.metrics,
		Logger:         m.logger,
	})
	return nil
}

// Client returns the storefront client. Nil until Connect succeeds.
func (m *ClientManager) Client() *Client {
	return m.client
}

func (m *ClientManager) Close() error {
	if m.conn == nil {
		return nil
	}
	return m.conn.Close()
}
