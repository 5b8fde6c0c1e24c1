// Package ingress is the entry point the real-time transport calls once per
// inbound event.
package ingress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/youmna-rabie/socket-relay/internal/delivery"
	"github.com/youmna-rabie/socket-relay/internal/event"
	"github.com/youmna-rabie/socket-relay/internal/types"
)

// Dispatcher routes one event to its targets.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev types.InboundEvent) (types.Acknowledgement, []types.Outcome)
}

// Handler turns inbound events into acknowledgements and keeps a log of
// recent dispatches.
type Handler struct {
	dispatcher Dispatcher
	store      event.Store
	logger     *slog.Logger
}

// NewHandler creates a Handler. store may be nil.
func NewHandler(d Dispatcher, store event.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{dispatcher: d, store: store, logger: logger}
}

// HandleEvent dispatches ev and returns its acknowledgement. For kinds that
// expect a reply the acknowledgement always carries non-empty text, even if
// dispatch panics.
func (h *Handler) HandleEvent(ctx context.Context, ev types.InboundEvent) (ack types.Acknowledgement) {
	start := time.Now()
	h.logger.DebugContext(ctx, "event received", "event_id", ev.ID, "kind", ev.Kind)

	var outcomes []types.Outcome
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.ErrorContext(ctx, "panic while dispatching event",
				"event_id", ev.ID, "kind", ev.Kind, "error", rec)
			ack = types.NoReply
			if ev.Kind.ExpectsReply() {
				ack = types.ReplyText(delivery.InternalErrText)
			}
			outcomes = []types.Outcome{{Target: "relay", Err: fmt.Errorf("panic: %v", rec)}}
		}
		h.record(ctx, ev, ack, outcomes, time.Since(start))
	}()

	ack, outcomes = h.dispatcher.Dispatch(ctx, ev)

	if !ev.Kind.ExpectsReply() {
		for _, out := range outcomes {
			if !out.Delivered() {
				h.logger.WarnContext(ctx, "failed to forward event",
					"event_id", ev.ID,
					"kind", ev.Kind,
					"target", out.Target,
					"error", out.Message(),
				)
			}
		}
	}
	return ack
}

func (h *Handler) record(ctx context.Context, ev types.InboundEvent, ack types.Acknowledgement, outcomes []types.Outcome, took time.Duration) {
	if h.store == nil {
		return
	}

	rec := types.Record{
		ID:         ev.ID,
		Kind:       ev.Kind,
		ReceivedAt: ev.ReceivedAt,
		Duration:   took,
		Status:     recordStatus(ev.Kind, outcomes),
		Reply:      ack.Text,
		Outcomes:   make([]types.OutcomeBrief, 0, len(outcomes)),
	}
	for _, out := range outcomes {
		rec.Outcomes = append(rec.Outcomes, out.Brief())
	}

	if err := h.store.Save(rec); err != nil {
		h.logger.ErrorContext(ctx, "failed to save dispatch record", "event_id", ev.ID, "error", err)
	}
}

func recordStatus(kind types.Kind, outcomes []types.Outcome) types.RecordStatus {
	if len(outcomes) == 0 {
		return types.RecordStatusUnrouted
	}
	if kind.ExpectsReply() {
		if outcomes[len(outcomes)-1].Delivered() {
			return types.RecordStatusReplied
		}
		return types.RecordStatusFailed
	}
	for _, out := range outcomes {
		if !out.Delivered() {
			return types.RecordStatusFailed
		}
	}
	return types.RecordStatusCompleted
}
