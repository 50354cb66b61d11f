package grpc

import (
	"context"
	"time"

	"github.com/example/lensshop/pkg/identity"
	"github.com/example/lensshop/pkg/metrics"
	"github.com/example/lensshop/pkg/models"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const authorizationHeader = "authorization"

type ClientOptions struct {
	CallTimeout    time.Duration
	BreakerTimeout time.Duration
	BreakerTrips   uint32
	Metrics        *metrics.Storefront
	Logger         *zap.Logger
}

// Client calls the storefront service on behalf of the identity found in
// each call's context. Every call goes through one circuit breaker so a
// dead backend fails fast instead of tying up sessions.
type Client struct {
	conn    grpc.ClientConnInterface
	breaker *gobreaker.CircuitBreaker[struct{}]
	timeout time.Duration
	metrics *metrics.Storefront
	logger  *zap.Logger
}

func NewClient(conn grpc.ClientConnInterface, opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("backend-client")

	trips := opts.BreakerTrips
	if trips == 0 {
		trips = 5
	}
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    ServiceName,
		Timeout: opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trips
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !transportFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Backend circuit breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		conn:    conn,
		breaker: breaker,
		timeout: opts.CallTimeout,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// transportFailure reports whether err means the backend could not answer,
// as opposed to answering with a refusal.
func transportFailure(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Unknown, codes.ResourceExhausted:
		return true
	}
	return false
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	if id, ok := identity.FromContext(ctx); ok {
		ctx = metadata.AppendToOutgoingContext(ctx, authorizationHeader, "Bearer "+id.Token)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.conn.Invoke(ctx, fullMethod(method), in, out, grpc.CallContentSubtype(codecName))
	})
	c.metrics.ObserveBackendCall(method, time.Since(start), err)
	if err != nil {
		c.logger.Debug("Backend call failed", zap.String("method", method), zap.Error(err))
	}
	return err
}

func (c *Client) GetAllProducts(ctx context.Context) ([]models.Product, error) {
	var out ProductList
	if err := c.invoke(ctx, MethodGetAllProducts, &Empty{}, &out); err != nil {
		return nil, err
	}
	return out.Products, nil
}

func (c *Client) GetProductsByCategory(ctx context.Context, category models.Category) ([]models.Product, error) {
	var out ProductList
	if err := c.invoke(ctx, MethodGetProductsByCategory, &CategoryRequest{Category: category}, &out); err != nil {
		return nil, err
	}
	return out.Products, nil
}

func (c *Client) GetProduct(ctx context.Context, id string) (models.Product, error) {
	var out models.Product
	err := c.invoke(ctx, MethodGetProduct, &ProductRequest{ID: id}, &out)
	return out, err
}

func (c *Client) SaveProfile(ctx context.Context, profile models.UserProfile) error {
	return c.invoke(ctx, MethodSaveCallerUserProfile, &profile, &Empty{})
}

// GetCallerUserProfile returns nil when the caller has not saved a profile.
func (c *Client) GetCallerUserProfile(ctx context.Context) (*models.UserProfile, error) {
	var out ProfileResponse
	if err := c.invoke(ctx, MethodGetCallerUserProfile, &Empty{}, &out); err != nil {
		return nil, err
	}
	return out.Profile, nil
}

func (c *Client) RequestPhoneCode(ctx context.Context, phone string) error {
	return c.invoke(ctx, MethodRequestPhoneVerification, &PhoneRequest{Phone: phone}, &Empty{})
}

func (c *Client) VerifyPhoneCode(ctx context.Context, phone, code string) (bool, error) {
	var out BoolResponse
	err := c.invoke(ctx, MethodVerifyPhoneVerificationCode, &VerifyCodeRequest{Phone: phone, Code: code}, &out)
	return out.Value, err
}

func (c *Client) IsPhoneVerified(ctx context.Context, phone string) (bool, error) {
	var out BoolResponse
	err := c.invoke(ctx, MethodIsPhoneVerified, &PhoneRequest{Phone: phone}, &out)
	return out.Value, err
}

func (c *Client) CreateOrder(ctx context.Context, items []models.OrderItem) (string, error) {
	var out OrderIDResponse
	err := c.invoke(ctx, MethodCreateOrder, &CreateOrderRequest{Items: items}, &out)
	return out.ID, err
}

func (c *Client) GetOrder(ctx context.Context, id string) (models.Order, error) {
	var out models.Order
	err := c.invoke(ctx, MethodGetOrder, &OrderRequest{ID: id}, &out)
	return out, err
}

func (c *Client) GetCallerOrders(ctx context.Context) ([]models.Order, error) {
	var out OrderList
	if err := c.invoke(ctx, MethodGetCallerOrders, &Empty{}, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

func (c *Client) IsCallerAdmin(ctx context.Context) (bool, error) {
	var out BoolResponse
	err := c.invoke(ctx, MethodIsCallerAdmin, &Empty{}, &out)
	return out.Value, err
}

func (c *Client) AdminGetAllProducts(ctx context.Context) ([]models.Product, error) {
	var out ProductList
	if err := c.invoke(ctx, MethodAdminGetAllProducts, &Empty{}, &out); err != nil {
		return nil, err
	}
	return out.Products, nil
}

func (c *Client) AdminCreateProduct(ctx context.Context, p models.Product) error {
	return c.invoke(ctx, MethodAdminCreateProduct, &p, &Empty{})
}

func (c *Client) AdminUpdateProduct(ctx context.Context, p models.Product) error {
	return c.invoke(ctx, MethodAdminUpdateProduct, &p, &Empty{})
}

func (c *Client) AdminSetProductPublishStatus(ctx context.Context, id string, published bool) error {
	return c.invoke(ctx, MethodAdminSetProductPublishStatus, &PublishRequest{ID: id, Published: published}, &Empty{})
}

func (c *Client) InitializeShop(ctx context.Context) error {
	return c.invoke(ctx, MethodInitializeShop, &Empty{}, &Empty{})
}
