// Package session runs one actor per browser session. The actor owns the
// session's cart store and login flow; it is spawned on first use and
// stops itself after a period without messages.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/lensshop/pkg/cart"
	"github.com/example/lensshop/pkg/metrics"
	"github.com/example/lensshop/pkg/models"
	"github.com/example/lensshop/pkg/usererr"
	"github.com/example/lensshop/pkg/verification"
	"go.uber.org/zap"
)

var ErrUnexpectedReply = errors.New("session: unexpected reply")

type Options struct {
	// Idle is how long a session actor lives without messages.
	Idle time.Duration
	// RequestTimeout bounds every request to a session actor.
	RequestTimeout time.Duration
	Metrics        *metrics.Storefront
	Logger         *zap.Logger
}

type Manager struct {
	system  *actor.ActorSystem
	build   Builder
	idle    time.Duration
	timeout time.Duration
	metrics *metrics.Storefront
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*actor.PID
}

func NewManager(system *actor.ActorSystem, build Builder, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Manager{
		system:   system,
		build:    build,
		idle:     opts.Idle,
		timeout:  timeout,
		metrics:  opts.Metrics,
		logger:   logger.Named("session"),
		sessions: make(map[string]*actor.PID),
	}
}

// Len is the number of live session actors.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) pid(id string) (*actor.PID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pid, ok := m.sessions[id]; ok {
		return pid, nil
	}

	props := actor.PropsFromProducer(func() actor.Actor {
		return &sessionActor{
			id:      id,
			build:   m.build,
			idle:    m.idle,
			onStop:  func(self *actor.PID) { m.forget(id, self) },
			logger:  m.logger.With(zap.String("session", id)),
			metrics: m.metrics,
		}
	})
	pid, err := m.system.Root.SpawnNamed(props, "session/"+id)
	if err != nil && !errors.Is(err, actor.ErrNameExists) {
		return nil, fmt.Errorf("failed to spawn session actor: %w", err)
	}
	m.sessions[id] = pid
	return pid, nil
}

func (m *Manager) forget(id string, pid *actor.PID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[id]; ok && pid != nil && cur.Id == pid.Id {
		delete(m.sessions, id)
	}
}

func (m *Manager) request(id string, msg any) (any, error) {
	for attempt := 0; ; attempt++ {
		pid, err := m.pid(id)
		if err != nil {
			return nil, err
		}
		res, err := m.system.Root.RequestFuture(pid, msg, m.timeout).Result()
		if errors.Is(err, actor.ErrDeadLetter) && attempt == 0 {
			// the actor stopped between lookup and send
			m.forget(id, pid)
			continue
		}
		if errors.Is(err, actor.ErrTimeout) {
			m.logger.Warn("Session actor did not answer in time", zap.String("session", id), zap.Duration("timeout", m.timeout))
			return nil, usererr.Wrap(usererr.KindServiceUnavailable, fmt.Errorf("session %s: %w", id, err), usererr.MsgServiceUnavailable)
		}
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", id, err)
		}
		return res, nil
	}
}

func (m *Manager) cartReply(res any, err error) (cart.Cart, error) {
	if err != nil {
		return cart.Cart{}, err
	}
	c, ok := res.(cart.Cart)
	if !ok {
		return cart.Cart{}, ErrUnexpectedReply
	}
	return c, nil
}

func (m *Manager) Cart(_ context.Context, id string) (cart.Cart, error) {
	return m.cartReply(m.request(id, &getCart{}))
}

func (m *Manager) command(ctx context.Context, id string, apply func(context.Context, *cart.Store) cart.Cart) (cart.Cart, error) {
	return m.cartReply(m.request(id, &cartCommand{ctx: context.WithoutCancel(ctx), apply: apply}))
}

func (m *Manager) AddItem(ctx context.Context, id string, p models.Product, quantity int64) (cart.Cart, error) {
	return m.command(ctx, id, func(ctx context.Context, s *cart.Store) cart.Cart {
		return s.AddItem(ctx, p, quantity)
	})
}

func (m *Manager) RemoveItem(ctx context.Context, id, productID string) (cart.Cart, error) {
	return m.command(ctx, id, func(ctx context.Context, s *cart.Store) cart.Cart {
		return s.RemoveItem(ctx, productID)
	})
}

func (m *Manager) SetQuantity(ctx context.Context, id, productID string, quantity int64) (cart.Cart, error) {
	return m.command(ctx, id, func(ctx context.Context, s *cart.Store) cart.Cart {
		return s.SetQuantity(ctx, productID, quantity)
	})
}

func (m *Manager) ClearCart(ctx context.Context, id string) (cart.Cart, error) {
	return m.command(ctx, id, func(ctx context.Context, s *cart.Store) cart.Cart {
		return s.Clear(ctx)
	})
}

// WithCart runs fn inside the session actor, so no other cart command of
// the session interleaves with it.
func (m *Manager) WithCart(_ context.Context, id string, fn func(*cart.Store) (any, error)) (any, error) {
	res, err := m.request(id, &cartTask{run: fn})
	if err != nil {
		return nil, err
	}
	r, ok := res.(*taskResult)
	if !ok {
		return nil, ErrUnexpectedReply
	}
	return r.value, r.err
}

// Flow returns the session's login flow. The flow is safe for concurrent
// use; its calls do not go through the actor.
func (m *Manager) Flow(_ context.Context, id string) (*verification.Flow, error) {
	res, err := m.request(id, &getFlow{})
	if err != nil {
		return nil, err
	}
	f, ok := res.(*verification.Flow)
	if !ok {
		return nil, ErrUnexpectedReply
	}
	return f, nil
}

// Stop passivates one session now.
func (m *Manager) Stop(id string) {
	m.mu.Lock()
	pid, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		_ = m.system.Root.StopFuture(pid).Wait()
	}
}

// Shutdown stops every session actor and waits for them to finish.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	pids := make([]*actor.PID, 0, len(m.sessions))
	for _, pid := range m.sessions {
		pids = append(pids, pid)
	}
	m.mu.Unlock()

	for _, pid := range pids {
		_ = m.system.Root.StopFuture(pid).Wait()
	}
	m.logger.Info("Session actors stopped", zap.Int("count", len(pids)))
}
