package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kj800x/cicd-controller/internal/apperr"
	"github.com/kj800x/cicd-controller/internal/metrics"
)

const (
	pingInterval     = 10 * time.Second
	watchdogInterval = 20 * time.Second
	watchdogTimeout  = 10 * time.Second
	reconnectDelay   = 10 * time.Second
)

var pingFrame = Event{EventType: EventConnPing, Payload: json.RawMessage(`{}`)}

// Transport is the long-lived duplex client to the upstream event relay.
// Run blocks until ctx is cancelled, cycling through
// Disconnecting -> Connecting -> Connected and back on any fault.
// Connection state is never exposed upward; the Dispatcher only sees a
// stream of decoded events.
type Transport struct {
	url          string
	bearerToken  string
	dispatcher   *Dispatcher
	logger       *slog.Logger
	dialer       *websocket.Dialer
}

// NewTransport builds a Transport dialing url with an Authorization: Bearer
// bearerToken header, dispatching decoded events to dispatcher.
func NewTransport(url, bearerToken string, dispatcher *Dispatcher, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		url:         url,
		bearerToken: bearerToken,
		dispatcher:  dispatcher,
		logger:      logger,
		dialer:      websocket.DefaultDialer,
	}
}

// Run implements the Disconnecting -> Connecting -> Connected state machine
// until ctx is cancelled.
func (t *Transport) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := t.connectAndServe(ctx); err != nil {
			metrics.TransportReconnectsTotal.WithLabelValues(reconnectReason(err)).Inc()
			t.logger.Warn("webhook transport disconnected", "error", apperr.FormatChain(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// connectAndServe dials once, then runs the Pinger/Reader/Watchdog race
// until one of them exits, tearing the other two down.
func (t *Transport) connectAndServe(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+t.bearerToken)

	conn, _, err := t.dialer.DialContext(ctx, t.url, header)
	if err != nil {
		return apperr.Wrap(apperr.KindWebhook, "dial upstream event relay", err)
	}
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var lastActivity activityClock
	lastActivity.touch()

	var wg sync.WaitGroup
	errs := make(chan error, 3)

	wg.Add(3)
	go func() { defer wg.Done(); errs <- t.pinger(connCtx, conn) }()
	go func() { defer wg.Done(); errs <- t.reader(connCtx, conn, &lastActivity) }()
	go func() { defer wg.Done(); errs <- t.watchdog(connCtx, &lastActivity) }()

	// First task to finish wins: its error (possibly nil, for a clean
	// ctx-cancellation exit) tears down the connection and the other two
	// tasks via cancel(), then we wait for them to actually return.
	first := <-errs
	cancel()
	wg.Wait()

	return first
}

func (t *Transport) pinger(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			data, err := json.Marshal(pingFrame)
			if err != nil {
				return apperr.Wrap(apperr.KindWebhook, "marshal ping frame", err)
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return apperr.Wrap(apperr.KindWebhook, "send ping frame", err)
			}
		}
	}
}

func (t *Transport) reader(ctx context.Context, conn *websocket.Conn, activity *activityClock) error {
	type readResult struct {
		data []byte
		err  error
	}
	reads := make(chan readResult, 1)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			reads <- readResult{data, err}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-reads:
			if r.err != nil {
				return apperr.Wrap(apperr.KindWebhook, "read frame", r.err)
			}
			activity.touch()

			var ev Event
			if err := json.Unmarshal(r.data, &ev); err != nil {
				t.logger.Warn("discarding undecodable webhook frame", "error", err)
				continue
			}
			if ev.EventType == EventConnPing {
				continue // heartbeat reply, recorded via activity.touch() above but not dispatched
			}
			t.dispatcher.Dispatch(ctx, ev)
		}
	}
}

func (t *Transport) watchdog(ctx context.Context, activity *activityClock) error {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if time.Since(activity.last()) > watchdogTimeout {
				return apperr.New(apperr.KindWebhook, fmt.Sprintf("no frame received in over %s, tearing down", watchdogTimeout))
			}
		}
	}
}

// activityClock is the shared "last-activity" timestamp: the Reader writes
// it, the Watchdog reads it. Held only for a single store or load, never
// across an I/O suspension point.
type activityClock struct {
	mu sync.RWMutex
	at time.Time
}

func (a *activityClock) touch() {
	a.mu.Lock()
	a.at = time.Now()
	a.mu.Unlock()
}

func (a *activityClock) last() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.at
}

// reconnectReason classifies why connectAndServe tore down, for the
// TransportReconnectsTotal label. Falls back to "other" for anything that
// doesn't match one of the three known exit paths.
func reconnectReason(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no frame received"):
		return "watchdog_timeout"
	case strings.Contains(msg, "read frame"):
		return "read_error"
	case strings.Contains(msg, "dial upstream event relay"):
		return "dial_error"
	default:
		return "other"
	}
}
