package session

import (
	"context"
	"sync"
	"time"

	"github.com/example/lensshop/pkg/cart"
	"github.com/example/lensshop/pkg/config"
	"github.com/example/lensshop/pkg/identity"
	"github.com/example/lensshop/pkg/metrics"
	"github.com/example/lensshop/pkg/repository"
	"github.com/example/lensshop/pkg/verification"
	"go.uber.org/zap"
)

// State is everything one browser session owns.
type State struct {
	ID   string
	Cart *cart.Store
	Flow *verification.Flow
}

// Builder creates the state of a session when its actor starts.
type Builder func(ctx context.Context, id string) *State

// Storage hands out the two stores a session uses: durable storage for
// the cart and short-lived session storage for the login draft.
type Storage interface {
	Local(id string) repository.Store
	Session(id string) repository.Store
}

type RedisStorage struct {
	Repo       *repository.RedisRepository
	SessionTTL time.Duration
}

func (s RedisStorage) Local(id string) repository.Store {
	return s.Repo.Scoped("local:"+id, 0)
}

func (s RedisStorage) Session(id string) repository.Store {
	return s.Repo.Scoped("session:"+id, s.SessionTTL)
}

// NewStorage picks Redis when it answers a ping and falls back to process
// memory otherwise. Carts held in memory are lost when the gateway exits.
func NewStorage(ctx context.Context, repo *repository.RedisRepository, sessionTTL time.Duration, logger *zap.Logger) Storage {
	if err := repo.Ping(ctx); err != nil {
		logger.Warn("Redis unavailable, keeping sessions in memory", zap.Error(err))
		return NewMemoryStorage()
	}
	logger.Info("Redis connected successfully")
	return RedisStorage{Repo: repo, SessionTTL: sessionTTL}
}

// MemoryStorage keeps every session's stores in process memory.
type MemoryStorage struct {
	mu      sync.Mutex
	local   map[string]*repository.MemoryStore
	session map[string]*repository.MemoryStore
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		local:   make(map[string]*repository.MemoryStore),
		session: make(map[string]*repository.MemoryStore),
	}
}

func (s *MemoryStorage) Local(id string) repository.Store {
	return s.get(s.local, id)
}

func (s *MemoryStorage) Session(id string) repository.Store {
	return s.get(s.session, id)
}

func (s *MemoryStorage) get(m map[string]*repository.MemoryStore, id string) *repository.MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := m[id]
	if !ok {
		st = repository.NewMemoryStore()
		m[id] = st
	}
	return st
}

type Deps struct {
	Storage    Storage
	Backend    verification.Backend
	Provider   identity.Provider
	Storefront config.StorefrontConfig
	Scheduler  verification.Scheduler
	Metrics    *metrics.Storefront
	Logger     *zap.Logger
}

// Builder wires a cart store and a login flow for each new session.
func (d Deps) Builder() Builder {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	flowCfg := verification.ConfigFrom(d.Storefront)
	return func(ctx context.Context, id string) *State {
		l := logger.With(zap.String("session", id))
		opts := []verification.Option{verification.WithMetrics(d.Metrics)}
		if d.Scheduler != nil {
			opts = append(opts, verification.WithScheduler(d.Scheduler))
		}
		return &State{
			ID:   id,
			Cart: cart.NewStore(ctx, d.Storage.Local(id), d.Storefront.CartKey, l, cart.WithMetrics(d.Metrics)),
			Flow: verification.New(ctx, flowCfg, d.Backend, d.Provider, d.Storage.Session(id), l, opts...),
		}
	}
}
