package session

import (
	"context"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/lensshop/pkg/cart"
	"github.com/example/lensshop/pkg/metrics"
	"go.uber.org/zap"
)

// Messages
type getCart struct{}

type cartCommand struct {
	ctx   context.Context
	apply func(context.Context, *cart.Store) cart.Cart
}

type cartTask struct {
	run func(*cart.Store) (any, error)
}

type taskResult struct {
	value any
	err   error
}

type getFlow struct{}

// sessionActor owns one session's state. Cart commands are handled one at
// a time; the flow is handed out because it guards itself.
type sessionActor struct {
	id      string
	build   Builder
	idle    time.Duration
	onStop  func(self *actor.PID)
	logger  *zap.Logger
	metrics *metrics.Storefront

	state *State
}

func (a *sessionActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		a.state = a.build(context.Background(), a.id)
		if a.idle > 0 {
			ctx.SetReceiveTimeout(a.idle)
		}
		a.metrics.SessionStarted()
		a.logger.Debug("Session actor started")

	case *actor.ReceiveTimeout:
		a.logger.Debug("Session idle, stopping", zap.Duration("idle", a.idle))
		ctx.Stop(ctx.Self())

	case *getCart:
		ctx.Respond(a.state.Cart.Cart())

	case *cartCommand:
		ctx.Respond(msg.apply(msg.ctx, a.state.Cart))

	case *cartTask:
		v, err := msg.run(a.state.Cart)
		ctx.Respond(&taskResult{value: v, err: err})

	case *getFlow:
		ctx.Respond(a.state.Flow)

	case *actor.Stopping:
		if a.state != nil {
			a.state.Flow.Close()
		}

	case *actor.Stopped:
		a.metrics.SessionStopped()
		a.onStop(ctx.Self())
		a.logger.Debug("Session actor stopped")
	}
}

var _ actor.Actor = (*sessionActor)(nil)
