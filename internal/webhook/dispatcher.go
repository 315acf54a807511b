package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kj800x/cicd-controller/internal/apperr"
	"github.com/kj800x/cicd-controller/internal/metrics"
)

// Handler is the capability set every concrete webhook handler implements:
// the Dispatcher does not care what a handler is, only which methods it
// exposes. Handlers that don't care about a given family implement a
// no-op for it.
type Handler interface {
	Name() string
	OnPush(ctx context.Context, payload PushPayload) error
	OnCheckRun(ctx context.Context, payload CheckRunPayload) error
	OnCheckSuite(ctx context.Context, payload CheckSuitePayload) error
	OnDelete(ctx context.Context, payload DeletePayload) error
	OnUnknown(ctx context.Context, eventType string, payload json.RawMessage) error
}

// Dispatcher holds an ordered list of handlers and fans decoded events out
// to all of them in registration order, isolating each handler's failure so
// one bad handler never stops the rest from seeing the event.
type Dispatcher struct {
	handlers []Handler
	logger   *slog.Logger
}

// NewDispatcher builds a Dispatcher over handlers, invoked in the given
// order for every event.
func NewDispatcher(logger *slog.Logger, handlers ...Handler) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{handlers: handlers, logger: logger}
}

// Dispatch decodes ev's payload according to its event_type and invokes the
// matching method on every handler in order, logging (not propagating) a
// handler's failure — including a recovered panic — before moving to the
// next handler.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	switch ev.EventType {
	case EventConnPing:
		return // liveness frame, not a dispatchable event
	case EventPush:
		var payload PushPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			metrics.WebhookEventsTotal.WithLabelValues("push", "decode_error").Inc()
			d.logger.Error("decode push payload failed", "error", apperr.FormatChain(apperr.Wrap(apperr.KindWebhook, "decode push", err)))
			return
		}
		metrics.WebhookEventsTotal.WithLabelValues("push", "dispatched").Inc()
		for _, h := range d.handlers {
			d.invoke(ctx, h, "push", func() error { return h.OnPush(ctx, payload) })
		}
	case EventCheckRun:
		var payload CheckRunPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			metrics.WebhookEventsTotal.WithLabelValues("check_run", "decode_error").Inc()
			d.logger.Error("decode check_run payload failed", "error", apperr.FormatChain(apperr.Wrap(apperr.KindWebhook, "decode check_run", err)))
			return
		}
		metrics.WebhookEventsTotal.WithLabelValues("check_run", "dispatched").Inc()
		for _, h := range d.handlers {
			d.invoke(ctx, h, "check_run", func() error { return h.OnCheckRun(ctx, payload) })
		}
	case EventCheckSuite:
		var payload CheckSuitePayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			metrics.WebhookEventsTotal.WithLabelValues("check_suite", "decode_error").Inc()
			d.logger.Error("decode check_suite payload failed", "error", apperr.FormatChain(apperr.Wrap(apperr.KindWebhook, "decode check_suite", err)))
			return
		}
		metrics.WebhookEventsTotal.WithLabelValues("check_suite", "dispatched").Inc()
		for _, h := range d.handlers {
			d.invoke(ctx, h, "check_suite", func() error { return h.OnCheckSuite(ctx, payload) })
		}
	case EventDelete:
		var payload DeletePayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			metrics.WebhookEventsTotal.WithLabelValues("delete", "decode_error").Inc()
			d.logger.Error("decode delete payload failed", "error", apperr.FormatChain(apperr.Wrap(apperr.KindWebhook, "decode delete", err)))
			return
		}
		metrics.WebhookEventsTotal.WithLabelValues("delete", "dispatched").Inc()
		for _, h := range d.handlers {
			d.invoke(ctx, h, "delete", func() error { return h.OnDelete(ctx, payload) })
		}
	default:
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "dispatched").Inc()
		for _, h := range d.handlers {
			eventType, payload := string(ev.EventType), ev.Payload
			d.invoke(ctx, h, "unknown", func() error { return h.OnUnknown(ctx, eventType, payload) })
		}
	}
}

// invoke calls fn, recovering a panic as an error so one misbehaving
// handler can never take down the transport, and logs any failure with its
// full cause chain without returning it to the caller.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, event string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.WebhookHandlerErrorsTotal.WithLabelValues(h.Name(), event).Inc()
			d.logger.Error("webhook handler panicked",
				"handler", h.Name(), "panic", fmt.Sprintf("%v", r))
		}
	}()
	if err := fn(); err != nil {
		metrics.WebhookHandlerErrorsTotal.WithLabelValues(h.Name(), event).Inc()
		d.logger.Error("webhook handler failed",
			"handler", h.Name(), "error", apperr.FormatChain(err))
	}
}
