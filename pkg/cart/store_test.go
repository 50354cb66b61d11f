package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/example/lensshop/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const key = "the-lens-cart"

type failingStore struct {
	repository.Store
	setErr error
}

func (f failingStore) Set(context.Context, string, string) error {
	return f.setErr
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	carts := map[string]Cart{
		"empty": Empty(),
		"one":   Empty().Add(product("a", 100), 1),
		"many":  Empty().Add(product("a", 100), 2).Add(product("b", 250), 1).Add(product("c", 5), 9),
	}

	for name, c := range carts {
		t.Run(name, func(t *testing.T) {
			storage := repository.NewMemoryStore()
			require.NoError(t, Save(ctx, storage, key, c))

			got := Load(ctx, storage, key, zaptest.NewLogger(t))

			assert.Equal(t, c, got)
		})
	}
}

func TestLoadRecoversFromCorruptStorage(t *testing.T) {
	ctx := context.Background()
	for name, raw := range map[string]string{
		"not json":   "{items: nope",
		"wrong type": `{"items": "abc"}`,
		"array":      `[1,2,3]`,
	} {
		t.Run(name, func(t *testing.T) {
			storage := repository.NewMemoryStore()
			require.NoError(t, storage.Set(ctx, key, raw))

			got := Load(ctx, storage, key, zaptest.NewLogger(t))

			assert.True(t, got.IsEmpty())
		})
	}
}

func TestLoadMissingIsEmpty(t *testing.T) {
	got := Load(context.Background(), repository.NewMemoryStore(), key, zaptest.NewLogger(t))
	assert.Equal(t, Empty(), got)
}

func TestLoadDropsInvalidLines(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemoryStore()
	raw := `{"items":[
		{"product":{"id":"a","price":10},"quantity":2},
		{"product":{"id":"b","price":10},"quantity":0},
		{"product":{"id":"a","price":10},"quantity":1}
	]}`
	require.NoError(t, storage.Set(ctx, key, raw))

	got := Load(ctx, storage, key, zaptest.NewLogger(t))

	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(3), got.Items[0].Quantity)
}

func TestStorePersistsEveryMutation(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemoryStore()
	s := NewStore(ctx, storage, key, zaptest.NewLogger(t))

	s.AddItem(ctx, product("a", 100), 2)
	s.AddItem(ctx, product("b", 250), 1)
	assert.Equal(t, s.Cart(), Load(ctx, storage, key, zaptest.NewLogger(t)))

	s.SetQuantity(ctx, "a", 5)
	assert.Equal(t, int64(5), Load(ctx, storage, key, zaptest.NewLogger(t)).Quantity("a"))

	s.RemoveItem(ctx, "b")
	s.Clear(ctx)
	assert.True(t, Load(ctx, storage, key, zaptest.NewLogger(t)).IsEmpty())
	assert.Equal(t, int64(0), s.ItemCount())
}

func TestStoreHydratesOnce(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemoryStore()
	require.NoError(t, Save(ctx, storage, key, Empty().Add(product("a", 100), 2)))

	s := NewStore(ctx, storage, key, zaptest.NewLogger(t))

	assert.Equal(t, int64(200), s.Subtotal())
}

func TestStoreAddDefaultsToOne(t *testing.T) {
	ctx := context.Background()
	s := NewStore(ctx, repository.NewMemoryStore(), key, zaptest.NewLogger(t))

	c := s.AddItem(ctx, product("a", 100), 0)

	assert.Equal(t, int64(1), c.Quantity("a"))
}

func TestStoreKeepsStateWhenPersistenceFails(t *testing.T) {
	ctx := context.Background()
	storage := failingStore{Store: repository.NewMemoryStore(), setErr: errors.New("quota exceeded")}
	s := NewStore(ctx, storage, key, zaptest.NewLogger(t))

	c := s.AddItem(ctx, product("a", 100), 2)

	assert.Equal(t, int64(2), c.ItemCount())
	assert.Equal(t, int64(200), s.Subtotal())
}
