package grpc

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/example/lensshop/pkg/config"
	"github.com/example/lensshop/pkg/identity"
	"github.com/example/lensshop/pkg/models"
	"github.com/example/lensshop/pkg/repository"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const adminPrincipal = "admin-principal"

type recordingSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (s *recordingSender) SendCode(_ context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codes == nil {
		s.codes = make(map[string]string)
	}
	s.codes[phone] = code
	return nil
}

func (s *recordingSender) last(phone string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[phone]
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) CreateAuditLog(_ context.Context, log *repository.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, log.Action)
	return nil
}

func (a *recordingAudit) has(action string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, got := range a.actions {
		if got == action {
			return true
		}
	}
	return false
}

type backendHarness struct {
	client   *Client
	provider *identity.JWTProvider
	sender   *recordingSender
	audit    *recordingAudit
	db       *gorm.DB
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newBackendHarness(t *testing.T) *backendHarness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	mr := miniredis.RunT(t)
	redisRepo := repository.NewRedisRepositoryFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = redisRepo.Close() })

	db := openTestDB(t)
	sender := &recordingSender{}
	audit := &recordingAudit{}
	backend, err := NewBackendServer(BackendDeps{
		DB:      db,
		Redis:   redisRepo,
		Audit:   audit,
		Sender:  sender,
		Admins:  []string{adminPrincipal},
		CodeTTL: time.Minute,
		Logger:  logger,
	})
	require.NoError(t, err)

	provider, err := identity.NewJWTProvider(config.IdentityConfig{Secret: "test-secret", Issuer: "test"})
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(backend, provider, logger)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &backendHarness{
		client:   NewClient(conn, ClientOptions{CallTimeout: 5 * time.Second, Logger: logger}),
		provider: provider,
		sender:   sender,
		audit:    audit,
		db:       db,
	}
}

func (h *backendHarness) as(t *testing.T, principal string) context.Context {
	t.Helper()
	token, err := h.provider.Mint(principal)
	require.NoError(t, err)
	return identity.NewContext(context.Background(), identity.Identity{Principal: principal, Token: token})
}

func (h *backendHarness) seed(t *testing.T) {
	t.Helper()
	require.NoError(t, h.client.InitializeShop(h.as(t, adminPrincipal)))
}

func (h *backendHarness) stock(t *testing.T, id string) int64 {
	t.Helper()
	var p models.Product
	require.NoError(t, h.db.Where("id = ?", id).First(&p).Error)
	return p.Stock
}

func TestCatalogOverGRPC(t *testing.T) {
	h := newBackendHarness(t)
	ctx := context.Background()

	products, err := h.client.GetAllProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)

	h.seed(t)
	h.seed(t) // second call is a no-op

	products, err = h.client.GetAllProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 6)
	for i := 1; i < len(products); i++ {
		assert.Less(t, products[i-1].ID, products[i].ID)
	}

	decor, err := h.client.GetProductsByCategory(ctx, models.CategoryHomeDecor)
	require.NoError(t, err)
	assert.Len(t, decor, 3)
	for _, p := range decor {
		assert.Equal(t, models.CategoryHomeDecor, p.Category)
	}

	_, err = h.client.GetProductsByCategory(ctx, models.Category("garden"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	p, err := h.client.GetProduct(ctx, "cmf-earbuds")
	require.NoError(t, err)
	assert.Equal(t, int64(2499), p.Price)

	_, err = h.client.GetProduct(ctx, "missing")
	st, _ := status.FromError(err)
	assert.Equal(t, codes.NotFound, st.Code())
	assert.Equal(t, "Product not found", st.Message())
}

func TestAdminGates(t *testing.T) {
	h := newBackendHarness(t)

	err := h.client.InitializeShop(context.Background())
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	err = h.client.InitializeShop(h.as(t, "shopper"))
	st, _ := status.FromError(err)
	assert.Equal(t, codes.PermissionDenied, st.Code())
	assert.Contains(t, st.Message(), "Only admins")

	_, err = h.client.AdminGetAllProducts(h.as(t, "shopper"))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	isAdmin, err := h.client.IsCallerAdmin(h.as(t, "shopper"))
	require.NoError(t, err)
	assert.False(t, isAdmin)

	isAdmin, err = h.client.IsCallerAdmin(h.as(t, adminPrincipal))
	require.NoError(t, err)
	assert.True(t, isAdmin)

	isAdmin, err = h.client.IsCallerAdmin(context.Background())
	require.NoError(t, err)
	assert.False(t, isAdmin)
}

func TestInvalidTokenIsRejected(t *testing.T) {
	h := newBackendHarness(t)
	ctx := identity.NewContext(context.Background(), identity.Identity{Principal: "forged", Token: "not-a-jwt"})

	_, err := h.client.GetAllProducts(ctx)
	st, _ := status.FromError(err)
	assert.Equal(t, codes.Unauthenticated, st.Code())
	assert.Contains(t, st.Message(), "invalid identity token")
}

func TestAdminProductLifecycle(t *testing.T) {
	h := newBackendHarness(t)
	admin := h.as(t, adminPrincipal)
	shopper := h.as(t, "shopper")

	lamp := models.Product{
		ID:       "floor-lamp",
		Name:     "Floor Lamp",
		Price:    5999,
		Stock:    3,
		Category: models.CategoryHomeDecor,
	}
	require.NoError(t, h.client.AdminCreateProduct(admin, lamp))

	err := h.client.AdminCreateProduct(admin, lamp)
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	bad := lamp
	bad.ID = "bad"
	bad.Price = -1
	err = h.client.AdminCreateProduct(admin, bad)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	// unpublished products are admin-only
	_, err = h.client.GetProduct(shopper, "floor-lamp")
	assert.Equal(t, codes.NotFound, status.Code(err))
	_, err = h.client.GetProduct(admin, "floor-lamp")
	require.NoError(t, err)

	all, err := h.client.AdminGetAllProducts(admin)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, h.client.AdminSetProductPublishStatus(admin, "floor-lamp", true))
	got, err := h.client.GetProduct(shopper, "floor-lamp")
	require.NoError(t, err)
	assert.True(t, got.Published)

	lamp.Price = 4999
	lamp.Published = true
	require.NoError(t, h.client.AdminUpdateProduct(admin, lamp))
	got, err = h.client.GetProduct(shopper, "floor-lamp")
	require.NoError(t, err)
	assert.Equal(t, int64(4999), got.Price)

	lamp.ID = "ghost"
	err = h.client.AdminUpdateProduct(admin, lamp)
	assert.Equal(t, codes.NotFound, status.Code(err))

	err = h.client.AdminSetProductPublishStatus(admin, "ghost", true)
	assert.Equal(t, codes.NotFound, status.Code(err))

	assert.Eventually(t, func() bool { return h.audit.has("create_product") && h.audit.has("update_product") },
		time.Second, 10*time.Millisecond)
}

func TestProfileAndPhoneVerification(t *testing.T) {
	h := newBackendHarness(t)
	ctx := h.as(t, "shopper")
	const phone = "+91 98765 43210"

	profile, err := h.client.GetCallerUserProfile(ctx)
	require.NoError(t, err)
	assert.Nil(t, profile)

	err = h.client.RequestPhoneCode(ctx, phone)
	st, _ := status.FromError(err)
	assert.Equal(t, codes.FailedPrecondition, st.Code())
	assert.Equal(t, "Profile not found", st.Message())

	// claiming verification without proof is ignored
	require.NoError(t, h.client.SaveProfile(ctx, models.UserProfile{Name: " Asha ", Email: "asha@example.com", Phone: phone, PhoneVerified: true}))
	profile, err = h.client.GetCallerUserProfile(ctx)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "Asha", profile.Name)
	assert.False(t, profile.PhoneVerified)

	err = h.client.RequestPhoneCode(ctx, "+91 11111 11111")
	st, _ = status.FromError(err)
	assert.Equal(t, codes.FailedPrecondition, st.Code())
	assert.Equal(t, "You can only verify the phone number in your profile", st.Message())

	require.NoError(t, h.client.RequestPhoneCode(ctx, phone))
	code := h.sender.last(phone)
	require.Len(t, code, phoneCodeLength)

	wrong := "0000"
	if code == wrong {
		wrong = "1111"
	}
	ok, err := h.client.VerifyPhoneCode(ctx, phone, wrong)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = h.client.VerifyPhoneCode(ctx, phone, code)
	require.NoError(t, err)
	assert.True(t, ok)

	// codes are single use
	ok, err = h.client.VerifyPhoneCode(ctx, phone, code)
	require.NoError(t, err)
	assert.False(t, ok)

	verified, err := h.client.IsPhoneVerified(ctx, phone)
	require.NoError(t, err)
	assert.True(t, verified)

	require.NoError(t, h.client.SaveProfile(ctx, models.UserProfile{Name: "Asha", Email: "asha@example.com", Phone: phone, PhoneVerified: true}))
	profile, err = h.client.GetCallerUserProfile(ctx)
	require.NoError(t, err)
	assert.True(t, profile.PhoneVerified)

	other := h.as(t, "someone-else")
	verified, err = h.client.IsPhoneVerified(other, phone)
	require.NoError(t, err)
	assert.False(t, verified)

	_, err = h.client.GetCallerUserProfile(context.Background())
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestOrders(t *testing.T) {
	h := newBackendHarness(t)
	h.seed(t)
	shopper := h.as(t, "shopper")

	id, err := h.client.CreateOrder(shopper, []models.OrderItem{
		{ProductID: "cmf-earbuds", Quantity: 2},
		{ProductID: "ceramic-vase", Quantity: 1},
		{ProductID: "cmf-earbuds", Quantity: 1},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	order, err := h.client.GetOrder(shopper, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2499*3+1299), order.Total)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, []models.OrderItem{
		{ProductID: "cmf-earbuds", Quantity: 3},
		{ProductID: "ceramic-vase", Quantity: 1},
	}, order.Items)
	assert.Equal(t, int64(22), h.stock(t, "cmf-earbuds"))

	_, err = h.client.GetOrder(h.as(t, "stranger"), id)
	assert.Equal(t, codes.NotFound, status.Code(err))
	_, err = h.client.GetOrder(h.as(t, adminPrincipal), id)
	require.NoError(t, err)

	orders, err := h.client.GetCallerOrders(shopper)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	assert.Eventually(t, func() bool { return h.audit.has("create_order") }, time.Second, 10*time.Millisecond)
}

func TestCreateOrderIsAllOrNothing(t *testing.T) {
	h := newBackendHarness(t)
	h.seed(t)
	shopper := h.as(t, "shopper")

	_, err := h.client.CreateOrder(shopper, []models.OrderItem{
		{ProductID: "ceramic-vase", Quantity: 1},
		{ProductID: "jute-rug", Quantity: 100},
	})
	st, _ := status.FromError(err)
	assert.Equal(t, codes.FailedPrecondition, st.Code())
	assert.Equal(t, "Insufficient stock for Jute Rug", st.Message())
	assert.Equal(t, int64(12), h.stock(t, "ceramic-vase"))

	_, err = h.client.CreateOrder(shopper, nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.CreateOrder(shopper, []models.OrderItem{{ProductID: "cmf-earbuds", Quantity: 0}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.CreateOrder(shopper, []models.OrderItem{{ProductID: "missing", Quantity: 1}})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = h.client.CreateOrder(context.Background(), []models.OrderItem{{ProductID: "cmf-earbuds", Quantity: 1}})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	orders, err := h.client.GetCallerOrders(shopper)
	require.NoError(t, err)
	assert.Empty(t, orders)
}
