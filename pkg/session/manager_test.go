package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/lensshop/pkg/cart"
	"github.com/example/lensshop/pkg/config"
	"github.com/example/lensshop/pkg/identity"
	"github.com/example/lensshop/pkg/models"
	"github.com/example/lensshop/pkg/usererr"
	"github.com/example/lensshop/pkg/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type nopBackend struct{}

func (nopBackend) SaveProfile(context.Context, models.UserProfile) error { return nil }
func (nopBackend) RequestPhoneCode(context.Context, string) error        { return nil }
func (nopBackend) VerifyPhoneCode(context.Context, string, string) (bool, error) {
	return true, nil
}

type nopProvider struct{}

func (nopProvider) Authenticate(context.Context, string) (identity.Identity, error) {
	return identity.Identity{}, identity.ErrInvalidCredential
}

var earbuds = models.Product{ID: "cmf-earbuds", Name: "CMF Buds", Price: 2499, Stock: 25}

func storefrontConfig() config.StorefrontConfig {
	return config.StorefrontConfig{
		CartKey:            "the-lens-cart",
		PhoneDraftKey:      "login_phone_draft",
		DefaultPhonePrefix: "+91 ",
		ResendCooldown:     30 * time.Second,
		ResendNotice:       3 * time.Second,
		CodeLength:         4,
		ContinuePath:       "/",
	}
}

func newManager(t *testing.T, storage Storage, idle time.Duration) *Manager {
	t.Helper()
	logger := zaptest.NewLogger(t)
	deps := Deps{
		Storage:    storage,
		Backend:    nopBackend{},
		Provider:   nopProvider{},
		Storefront: storefrontConfig(),
		Logger:     logger,
	}
	m := NewManager(actor.NewActorSystem(), deps.Builder(), Options{
		Idle:           idle,
		RequestTimeout: 2 * time.Second,
		Logger:         logger,
	})
	t.Cleanup(m.Shutdown)
	return m
}

func TestCartCommands(t *testing.T) {
	m := newManager(t, NewMemoryStorage(), time.Minute)
	ctx := context.Background()

	c, err := m.Cart(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	_, err = m.AddItem(ctx, "s1", earbuds, 2)
	require.NoError(t, err)
	c, err = m.AddItem(ctx, "s1", earbuds, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), c.Quantity("cmf-earbuds"))

	c, err = m.SetQuantity(ctx, "s1", "cmf-earbuds", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2499), c.Subtotal())

	c, err = m.RemoveItem(ctx, "s1", "cmf-earbuds")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	_, err = m.AddItem(ctx, "s1", earbuds, 1)
	require.NoError(t, err)
	c, err = m.ClearCart(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, 1, m.Len())
}

func TestSessionsAreIsolated(t *testing.T) {
	m := newManager(t, NewMemoryStorage(), time.Minute)
	ctx := context.Background()

	_, err := m.AddItem(ctx, "a", earbuds, 1)
	require.NoError(t, err)

	c, err := m.Cart(ctx, "b")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, 2, m.Len())

	fa, err := m.Flow(ctx, "a")
	require.NoError(t, err)
	fb, err := m.Flow(ctx, "b")
	require.NoError(t, err)
	assert.NotSame(t, fa, fb)

	again, err := m.Flow(ctx, "a")
	require.NoError(t, err)
	assert.Same(t, fa, again)
}

func TestConcurrentCommandsAreSerialized(t *testing.T) {
	m := newManager(t, NewMemoryStorage(), time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.AddItem(ctx, "busy", earbuds, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := m.Cart(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, int64(50), c.Quantity("cmf-earbuds"))
	require.Len(t, c.Items, 1)
}

func TestIdleSessionStopsAndRehydrates(t *testing.T) {
	storage := NewMemoryStorage()
	m := newManager(t, storage, 50*time.Millisecond)
	ctx := context.Background()

	_, err := m.AddItem(ctx, "idle", earbuds, 2)
	require.NoError(t, err)
	flow, err := m.Flow(ctx, "idle")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return m.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	// the stopped actor closed its flow
	assert.ErrorIs(t, flow.SignIn(ctx, "token"), verification.ErrClosed)

	c, err := m.Cart(ctx, "idle")
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Quantity("cmf-earbuds"))

	fresh, err := m.Flow(ctx, "idle")
	require.NoError(t, err)
	assert.NotSame(t, flow, fresh)
}

func TestWithCartRunsInsideActor(t *testing.T) {
	m := newManager(t, NewMemoryStorage(), time.Minute)
	ctx := context.Background()

	_, err := m.AddItem(ctx, "w", earbuds, 2)
	require.NoError(t, err)

	v, err := m.WithCart(ctx, "w", func(s *cart.Store) (any, error) {
		total := s.Subtotal()
		s.Clear(ctx)
		return total, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4998), v)

	boom := errors.New("boom")
	_, err = m.WithCart(ctx, "w", func(*cart.Store) (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	c, err := m.Cart(ctx, "w")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestBusySessionIsReportedUnavailable(t *testing.T) {
	logger := zaptest.NewLogger(t)
	deps := Deps{
		Storage:    NewMemoryStorage(),
		Backend:    nopBackend{},
		Provider:   nopProvider{},
		Storefront: storefrontConfig(),
		Logger:     logger,
	}
	m := NewManager(actor.NewActorSystem(), deps.Builder(), Options{
		Idle:           time.Minute,
		RequestTimeout: 50 * time.Millisecond,
		Logger:         logger,
	})
	t.Cleanup(m.Shutdown)
	ctx := context.Background()

	_, err := m.WithCart(ctx, "slow", func(*cart.Store) (any, error) {
		time.Sleep(200 * time.Millisecond)
		return nil, nil
	})
	require.Error(t, err)
	assert.Equal(t, usererr.KindServiceUnavailable, usererr.KindOf(err))
	assert.ErrorIs(t, err, actor.ErrTimeout)

	assert.Eventually(t, func() bool {
		_, err := m.Cart(ctx, "slow")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStopAndShutdown(t *testing.T) {
	m := newManager(t, NewMemoryStorage(), time.Minute)
	ctx := context.Background()

	_, err := m.Cart(ctx, "x")
	require.NoError(t, err)
	_, err = m.Cart(ctx, "y")
	require.NoError(t, err)

	m.Stop("x")
	assert.Eventually(t, func() bool { return m.Len() == 1 }, time.Second, 10*time.Millisecond)

	m.Shutdown()
	assert.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 10*time.Millisecond)
}
