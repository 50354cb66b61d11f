package cart

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/example/lensshop/pkg/metrics"
	"github.com/example/lensshop/pkg/models"
	"github.com/example/lensshop/pkg/repository"
	"go.uber.org/zap"
)

// Store owns the current cart of one session and writes it through to
// durable storage after every mutation. Storage failures are logged and
// never roll back the in-memory cart.
type Store struct {
	storage repository.Store
	key     string
	logger  *zap.Logger
	metrics *metrics.Storefront

	mu   sync.Mutex
	cart Cart
}

type Option func(*Store)

func WithMetrics(m *metrics.Storefront) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// NewStore hydrates the cart from storage once.
func NewStore(ctx context.Context, storage repository.Store, key string, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		storage: storage,
		key:     key,
		logger:  logger.Named("cart"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cart = Load(ctx, storage, key, s.logger)
	return s
}

// Load reads the persisted cart. A missing or unreadable value yields an
// empty cart.
func Load(ctx context.Context, storage repository.Store, key string, logger *zap.Logger) Cart {
	raw, err := storage.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.Warn("Failed to read cart from storage", zap.String("key", key), zap.Error(err))
		}
		return Empty()
	}

	var c Cart
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		logger.Warn("Discarding unreadable cart", zap.String("key", key), zap.Error(err))
		return Empty()
	}
	return c.normalize()
}

// Save writes c under key. The error is returned for callers that care;
// the Store itself only logs it.
func Save(ctx context.Context, storage repository.Store, key string, c Cart) error {
	if c.Items == nil {
		c = Empty()
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return storage.Set(ctx, key, string(data))
}

func (s *Store) Cart() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart
}

// AddItem adds quantity units of p. A quantity below one adds a single unit.
func (s *Store) AddItem(ctx context.Context, p models.Product, quantity int64) Cart {
	if quantity <= 0 {
		quantity = 1
	}
	return s.apply(ctx, "add", func(c Cart) Cart { return c.Add(p, quantity) })
}

func (s *Store) RemoveItem(ctx context.Context, productID string) Cart {
	return s.apply(ctx, "remove", func(c Cart) Cart { return c.Remove(productID) })
}

func (s *Store) SetQuantity(ctx context.Context, productID string, quantity int64) Cart {
	return s.apply(ctx, "set_quantity", func(c Cart) Cart { return c.SetQuantity(productID, quantity) })
}

func (s *Store) Clear(ctx context.Context) Cart {
	return s.apply(ctx, "clear", func(Cart) Cart { return Empty() })
}

func (s *Store) Subtotal() int64 {
	return s.Cart().Subtotal()
}

func (s *Store) ItemCount() int64 {
	return s.Cart().ItemCount()
}

func (s *Store) apply(ctx context.Context, op string, fn func(Cart) Cart) Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart = fn(s.cart)
	s.metrics.CartOp(op)
	if err := Save(ctx, s.storage, s.key, s.cart); err != nil {
		s.logger.Warn("Failed to persist cart",
			zap.String("op", op),
			zap.String("key", s.key),
			zap.Error(err))
	}
	return s.cart
}
