// Package router decides which webhook targets receive an inbound event and
// turns their outcomes into a single acknowledgement.
package router

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/youmna-rabie/socket-relay/internal/delivery"
	"github.com/youmna-rabie/socket-relay/internal/types"
)

const defaultFanoutLimit = 8

// Deliverer sends one event to one target.
type Deliverer interface {
	Deliver(ctx context.Context, ev types.InboundEvent, target *types.Target) types.Outcome
}

// Slots holds the four routing slots. A nil slot is not configured.
type Slots struct {
	CommandProd  *types.Target
	CommandDev   *types.Target
	CallbackProd *types.Target
	CallbackDev  *types.Target
}

// Targets returns the configured targets for kind in priority order.
func (s Slots) Targets(kind types.Kind) []*types.Target {
	var ordered []*types.Target
	switch kind {
	case types.KindCommand:
		ordered = []*types.Target{s.CommandProd, s.CommandDev}
	case types.KindCallback, types.KindInteraction:
		ordered = []*types.Target{s.CallbackProd, s.CallbackDev}
	}

	targets := make([]*types.Target, 0, len(ordered))
	for _, t := range ordered {
		if t != nil {
			targets = append(targets, t)
		}
	}
	return targets
}

// All returns every configured target, commands first.
func (s Slots) All() []*types.Target {
	return append(s.Targets(types.KindCommand), s.Targets(types.KindCallback)...)
}

// Option configures a Router.
type Option func(*Router)

// WithFallthrough controls whether a failed command target hands over to the
// next one. Enabled by default.
func WithFallthrough(enabled bool) Option {
	return func(r *Router) { r.fallThrough = enabled }
}

// WithFanoutLimit caps concurrent deliveries within one fire-and-forget event.
func WithFanoutLimit(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.fanoutLimit = n
		}
	}
}

// WithLogger sets the router's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Router is immutable after New and safe for concurrent use.
type Router struct {
	slots       Slots
	exec        Deliverer
	fallThrough bool
	fanoutLimit int
	logger      *slog.Logger
}

// New creates a Router over the given slots.
func New(slots Slots, exec Deliverer, opts ...Option) *Router {
	r := &Router{
		slots:       slots,
		exec:        exec,
		fallThrough: true,
		fanoutLimit: defaultFanoutLimit,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Slots returns the routing slots the router was built with.
func (r *Router) Slots() Slots {
	return r.slots
}

// Dispatch delivers ev and returns its acknowledgement together with every
// outcome produced along the way. Kinds that expect a reply always get
// exactly one reply acknowledgement.
func (r *Router) Dispatch(ctx context.Context, ev types.InboundEvent) (types.Acknowledgement, []types.Outcome) {
	targets := r.slots.Targets(ev.Kind)
	if ev.Kind.ExpectsReply() {
		return r.firstSuccess(ctx, ev, targets)
	}
	return types.NoReply, r.fanout(ctx, ev, targets)
}

// firstSuccess tries targets one at a time and stops at the first delivered
// outcome, or at the first failure when fall-through is off.
func (r *Router) firstSuccess(ctx context.Context, ev types.InboundEvent, targets []*types.Target) (types.Acknowledgement, []types.Outcome) {
	if len(targets) == 0 {
		r.logger.WarnContext(ctx, "no webhook target configured", "event_id", ev.ID, "kind", ev.Kind)
		return types.ReplyText(delivery.NoBackendText), nil
	}

	outcomes := make([]types.Outcome, 0, len(targets))
	for _, t := range targets {
		out := r.exec.Deliver(ctx, ev, t)
		outcomes = append(outcomes, out)
		r.logOutcome(ctx, ev, out)

		if out.Delivered() || !r.fallThrough {
			break
		}
	}

	last := outcomes[len(outcomes)-1]
	return types.ReplyText(delivery.ReplyText(last)), outcomes
}

// fanout delivers to every target concurrently and waits for all of them.
func (r *Router) fanout(ctx context.Context, ev types.InboundEvent, targets []*types.Target) []types.Outcome {
	if len(targets) == 0 {
		r.logger.DebugContext(ctx, "no webhook target configured", "event_id", ev.ID, "kind", ev.Kind)
		return nil
	}

	outcomes := make([]types.Outcome, len(targets))
	var g errgroup.Group
	g.SetLimit(r.fanoutLimit)
	for i, t := range targets {
		g.Go(func() error {
			outcomes[i] = r.exec.Deliver(ctx, ev, t)
			r.logOutcome(ctx, ev, outcomes[i])
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (r *Router) logOutcome(ctx context.Context, ev types.InboundEvent, out types.Outcome) {
	if out.Delivered() {
		r.logger.InfoContext(ctx, "webhook delivered",
			"event_id", ev.ID,
			"kind", ev.Kind,
			"target", out.Target,
			"status", out.StatusCode,
			"latency_ms", out.Latency.Milliseconds(),
		)
		return
	}
	r.logger.WarnContext(ctx, "webhook delivery failed",
		"event_id", ev.ID,
		"kind", ev.Kind,
		"target", out.Target,
		"status", out.StatusCode,
		"latency_ms", out.Latency.Milliseconds(),
		"error", out.Message(),
	)
}
