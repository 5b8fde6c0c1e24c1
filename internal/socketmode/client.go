// Package socketmode keeps a socket-mode connection to the chat platform and
// feeds each inbound envelope to a Handler.
package socketmode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/youmna-rabie/socket-relay/internal/types"
)

const (
	DefaultOpenURL        = "https://slack.com/api/apps.connections.open"
	defaultReconnectDelay = 5 * time.Second
	handshakeTimeout      = 10 * time.Second
)

var errDisconnectRequested = errors.New("disconnect requested by server")

// Handler receives one inbound event and returns its acknowledgement.
type Handler interface {
	HandleEvent(ctx context.Context, ev types.InboundEvent) types.Acknowledgement
}

// Config holds socket-mode connection settings.
type Config struct {
	Token          string
	OpenURL        string
	ReconnectDelay time.Duration
	HTTPClient     *http.Client
}

// Client manages the socket-mode connection.
type Client struct {
	cfg     Config
	handler Handler
	dialer  *websocket.Dialer
	logger  *slog.Logger

	wg sync.WaitGroup
}

// NewClient creates a socket-mode client.
func NewClient(cfg Config, h Handler, logger *slog.Logger) *Client {
	if cfg.OpenURL == "" {
		cfg.OpenURL = DefaultOpenURL
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: handshakeTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:     cfg,
		handler: h,
		dialer:  &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		logger:  logger,
	}
}

// Open asks the platform for a fresh socket URL.
func (c *Client) Open(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OpenURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("open connection: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("open connection: status %d: %s", resp.StatusCode, string(body))
	}

	var res openResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if !res.OK {
		return "", fmt.Errorf("open connection: %s", res.Error)
	}
	if res.URL == "" {
		return "", errors.New("open connection: empty socket url")
	}
	return res.URL, nil
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	url, err := c.Open(ctx)
	if err != nil {
		return nil, err
	}
	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial socket: %w", err)
	}
	c.logger.InfoContext(ctx, "socket connected")
	return conn, nil
}

// Run connects and serves envelopes until ctx is cancelled. Failing to
// establish the first connection is returned as an error; later drops are
// re-listened after the reconnect delay. Run waits for in-flight handlers
// before returning.
func (c *Client) Run(ctx context.Context) error {
	defer c.wg.Wait()

	conn, err := c.connect(ctx)
	if err != nil {
		return fmt.Errorf("socket mode listen: %w", err)
	}

	for {
		err := c.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.WarnContext(ctx, "socket connection lost, re-listening", "error", err)

		conn, err = c.reconnect(ctx)
		if err != nil {
			return nil // ctx cancelled while waiting
		}
	}
}

func (c *Client) reconnect(ctx context.Context) (*websocket.Conn, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.ReconnectDelay):
		}

		conn, err := c.connect(ctx)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.WarnContext(ctx, "reconnect failed", "error", err)
	}
}

// serve reads envelopes from conn until it fails, the server asks for a
// disconnect, or ctx is cancelled. Handlers run on their own goroutines so
// the read loop is never blocked by delivery.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	w := &connWriter{conn: conn}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.WarnContext(ctx, "invalid envelope", "error", err)
			continue
		}

		switch env.Type {
		case typeHello:
			c.logger.DebugContext(ctx, "socket hello", "connections", env.NumConnections)
		case typeDisconnect:
			c.logger.InfoContext(ctx, "socket disconnect requested", "reason", env.Reason)
			return errDisconnectRequested
		case typeSlashCommands:
			c.spawn(ctx, w, env, types.KindCommand)
		case typeEventsAPI:
			c.spawn(ctx, w, env, types.KindCallback)
		case typeInteractive:
			c.spawn(ctx, w, env, types.KindInteraction)
		default:
			c.logger.DebugContext(ctx, "ignoring envelope", "type", env.Type)
			if env.EnvelopeID != "" {
				if err := w.ack(ack{EnvelopeID: env.EnvelopeID}); err != nil {
					c.logger.WarnContext(ctx, "failed to acknowledge envelope", "type", env.Type, "error", err)
				}
			}
		}
	}
}

func (c *Client) spawn(ctx context.Context, w *connWriter, env envelope, kind types.Kind) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		// Detached so a dropped socket or shutdown lets deliveries finish
		// within their own timeouts.
		c.handle(context.WithoutCancel(ctx), w, env, kind)
	}()
}

func (c *Client) handle(ctx context.Context, w *connWriter, env envelope, kind types.Kind) {
	ev := types.NewInboundEvent(kind, env.Payload)
	if env.RetryAttempt > 0 {
		c.logger.DebugContext(ctx, "envelope redelivered",
			"event_id", ev.ID, "attempt", env.RetryAttempt, "reason", env.RetryReason)
	}

	if !kind.ExpectsReply() {
		if err := w.ack(ack{EnvelopeID: env.EnvelopeID}); err != nil {
			c.logger.WarnContext(ctx, "failed to acknowledge envelope", "event_id", ev.ID, "error", err)
		}
		c.handler.HandleEvent(ctx, ev)
		return
	}

	reply := c.handler.HandleEvent(ctx, ev)
	a := ack{EnvelopeID: env.EnvelopeID}
	if reply.Reply {
		a.Payload = commandResponse{Text: reply.Text}
	}
	if err := w.ack(a); err != nil {
		c.logger.WarnContext(ctx, "failed to send command reply", "event_id", ev.ID, "error", err)
	}
}

// connWriter serializes writes; gorilla connections allow one concurrent
// writer.
type connWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *connWriter) ack(a ack) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(a)
}
