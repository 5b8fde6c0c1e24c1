package delivery

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"github.com/youmna-rabie/socket-relay/internal/types"
)

const (
	maxResponseBody = 1 << 20 // 1 MiB
	userAgent       = "socket-relay/1.0"

	defaultTimeout     = 10 * time.Second
	defaultMaxInFlight = 64
)

var (
	ErrEncode       = errors.New("encode payload")
	ErrTransport    = errors.New("send request")
	ErrResponseBody = errors.New("read response")
)

// StatusError is recorded when a target answers outside the 2xx range.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// Config holds executor settings.
type Config struct {
	// DefaultTimeout applies to targets that carry no timeout of their own.
	DefaultTimeout time.Duration
	// MaxInFlight bounds concurrent requests across all events.
	MaxInFlight int
}

// Executor POSTs event payloads to webhook targets. It keeps no per-event
// state and is safe for concurrent use.
type Executor struct {
	secure   *http.Client
	insecure *http.Client
	sem      *semaphore.Weighted
	timeout  time.Duration
	logger   *slog.Logger
}

// NewExecutor builds the shared HTTP clients and the in-flight limiter.
func NewExecutor(cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultTimeout
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	return &Executor{
		secure:   newHTTPClient(false),
		insecure: newHTTPClient(true),
		sem:      semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		timeout:  cfg.DefaultTimeout,
		logger:   logger,
	}
}

// newHTTPClient has no client-level timeout; each call is bounded by its
// target's timeout through the request context.
func newHTTPClient(skipVerify bool) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if skipVerify {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per target for internal endpoints
	}
	return &http.Client{Transport: tr}
}

// Deliver sends the event payload to target and reports what happened.
// Failures never escape as errors; they are carried in the Outcome.
func (e *Executor) Deliver(ctx context.Context, ev types.InboundEvent, target *types.Target) (out types.Outcome) {
	out.Target = target.Name

	body, err := json.Marshal(ev.Payload)
	if err != nil {
		out.Err = fmt.Errorf("%w: %v", ErrEncode, err)
		return out
	}

	timeout := target.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	defer func() { out.Latency = time.Since(start) }()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		out.Err = fmt.Errorf("%w: waiting for a delivery slot: %v", ErrTransport, err)
		return out
	}
	defer e.sem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		out.Err = fmt.Errorf("%w: %v", ErrTransport, err)
		return out
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Relay-Event-ID", ev.ID.String())
	req.Header.Set("X-Relay-Event-Kind", string(ev.Kind))

	e.logger.DebugContext(ctx, "sending event to webhook",
		"event_id", ev.ID, "target", target.Name, "bytes", len(body))

	resp, err := e.client(target).Do(req)
	if err != nil {
		out.Err = fmt.Errorf("%w: %v", ErrTransport, err)
		return out
	}
	defer resp.Body.Close()

	out.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		out.Err = &StatusError{Code: resp.StatusCode}
		return out
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	switch {
	case err != nil:
		out.Err = fmt.Errorf("%w: %v", ErrResponseBody, err)
	case len(respBody) > maxResponseBody:
		out.Err = fmt.Errorf("%w: body exceeds 1MiB", ErrResponseBody)
	case !utf8.Valid(respBody):
		out.Err = fmt.Errorf("%w: body is not valid UTF-8", ErrResponseBody)
	default:
		out.Body = string(respBody)
	}
	return out
}

func (e *Executor) client(target *types.Target) *http.Client {
	if target.InsecureSkipVerify {
		return e.insecure
	}
	return e.secure
}
