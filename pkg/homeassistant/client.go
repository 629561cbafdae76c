// Package homeassistant talks to a Home Assistant instance over its
// WebSocket API. A single authenticated connection carries registry
// queries, event subscriptions, service calls and conversation requests.
package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/fallback/pkg/errorsx"
	"github.com/harunnryd/fallback/pkg/logging"
	"github.com/harunnryd/fallback/pkg/resilience"
)

const (
	DefaultRequestTimeout = 10 * time.Second
	websocketPath         = "/api/websocket"

	cmdSubscribeEvents   = "subscribe_events"
	cmdUnsubscribeEvents = "unsubscribe_events"
)

// ErrClosed is returned for calls on a closed or broken connection.
var ErrClosed = errors.New("homeassistant: connection closed")

type Config struct {
	// URL is the instance base URL (http://host:8123) or the full websocket URL.
	URL            string
	Token          string
	RequestTimeout time.Duration
	DialRetries    int
	DialBackoff    time.Duration
	Logger         *slog.Logger
	Dialer         *websocket.Dialer
}

// APIError is an unsuccessful command result.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("homeassistant: %s: %s", e.Code, e.Message)
}

type message struct {
	ID        int64           `json:"id,omitempty"`
	Type      string          `json:"type"`
	Success   bool            `json:"success,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *APIError       `json:"error,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
	HAVersion string          `json:"ha_version,omitempty"`
	Message   string          `json:"message,omitempty"`
}

type Client struct {
	cfg     Config
	logger  *slog.Logger
	conn    *websocket.Conn
	version string

	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan message
	subs    map[int64]func(json.RawMessage)
	err     error

	done      chan struct{}
	closeOnce sync.Once
	closing   atomic.Bool

	reg *registryState
}

// Dial connects and authenticates, retrying transient failures. Auth
// rejections are not retried.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	wsURL, err := websocketURL(cfg.URL)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonHAConnect)
	}
	logger := logging.NewComponentLogger(cfg.Logger, "homeassistant")

	policy := resilience.NewRetryPolicy(cfg.DialRetries, cfg.DialBackoff)
	policy.Retryable = func(err error) bool { return !errorsx.Permanent(errorsx.Reason(err)) }

	var c *Client
	err = policy.Do(ctx, func(ctx context.Context) error {
		conn, version, err := connect(ctx, cfg, wsURL)
		if err != nil {
			logger.Warn("ha_dial_failed", "url", wsURL, "reason", errorsx.Reason(err), "error", err)
			return err
		}
		c = newClient(cfg, logger, conn, version)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("ha_connected", "url", wsURL, "ha_version", c.version)
	go c.readLoop()
	return c, nil
}

func newClient(cfg Config, logger *slog.Logger, conn *websocket.Conn, version string) *Client {
	c := &Client{
		cfg:     cfg,
		logger:  logger,
		conn:    conn,
		version: version,
		pending: make(map[int64]chan message),
		subs:    make(map[int64]func(json.RawMessage)),
		done:    make(chan struct{}),
	}
	c.reg = newRegistryState(c)
	return c
}

func connect(ctx context.Context, cfg Config, wsURL string) (*websocket.Conn, string, error) {
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: cfg.RequestTimeout}
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, "", errorsx.Wrap(err, errorsx.ReasonHAConnect)
	}
	_ = conn.SetReadDeadline(time.Now().Add(cfg.RequestTimeout))
	version, err := authenticate(conn, cfg.Token)
	if err != nil {
		_ = conn.Close()
		return nil, "", err
	}
	_ = conn.SetReadDeadline(time.Time{})
	return conn, version, nil
}

func authenticate(conn *websocket.Conn, token string) (string, error) {
	var hello message
	if err := conn.ReadJSON(&hello); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonHAConnect)
	}
	if hello.Type != "auth_required" {
		return "", errorsx.Wrap(fmt.Errorf("unexpected handshake message %q", hello.Type), errorsx.ReasonHAConnect)
	}
	if err := conn.WriteJSON(map[string]any{"type": "auth", "access_token": token}); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonHAConnect)
	}
	var reply message
	if err := conn.ReadJSON(&reply); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonHAConnect)
	}
	switch reply.Type {
	case "auth_ok":
		return reply.HAVersion, nil
	case "auth_invalid":
		return "", errorsx.Wrap(fmt.Errorf("auth rejected: %s", reply.Message), errorsx.ReasonHAAuth)
	default:
		return "", errorsx.Wrap(fmt.Errorf("unexpected auth reply %q", reply.Type), errorsx.ReasonHAConnect)
	}
}

func websocketURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("home assistant url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, websocketPath) {
		u.Path = strings.TrimRight(u.Path, "/") + websocketPath
	}
	return u.String(), nil
}

// Version is the server version reported during auth.
func (c *Client) Version() string { return c.version }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Call sends one command and decodes its result into out, which may be nil.
func (c *Client) Call(ctx context.Context, typ string, payload map[string]any, out any) error {
	id, ch, err := c.send(typ, payload)
	if err != nil {
		return err
	}
	reply, err := c.wait(ctx, typ, id, ch)
	if err != nil {
		return err
	}
	if out == nil || len(reply.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(reply.Result, out); err != nil {
		return errorsx.WrapOp(fmt.Errorf("decode result: %w", err), errorsx.ReasonHACommand, typ)
	}
	return nil
}

// Subscribe starts an event subscription. fn runs on the reader goroutine
// and must not block.
func (c *Client) Subscribe(ctx context.Context, eventType string, fn func(event json.RawMessage)) (func(), error) {
	payload := map[string]any{}
	if eventType != "" {
		payload["event_type"] = eventType
	}
	id, ch, err := c.send(cmdSubscribeEvents, payload)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.subs[id] = fn
	c.mu.Unlock()
	if _, err := c.wait(ctx, cmdSubscribeEvents, id, ch); err != nil {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			if _, _, err := c.send(cmdUnsubscribeEvents, map[string]any{"subscription": id}); err != nil {
				c.logger.Debug("ha_unsubscribe_failed", "subscription", id, "error", err)
			}
		})
	}, nil
}

func (c *Client) send(typ string, payload map[string]any) (int64, chan message, error) {
	id := c.nextID.Add(1)
	msg := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		msg[k] = v
	}
	msg["id"] = id
	msg["type"] = typ

	ch := make(chan message, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return 0, nil, err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return 0, nil, errorsx.WrapOp(err, errorsx.ReasonHAConnect, typ)
	}
	return id, ch, nil
}

func (c *Client) wait(ctx context.Context, typ string, id int64, ch chan message) (message, error) {
	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case reply, ok := <-ch:
		if !ok {
			return message{}, errorsx.WrapOp(ErrClosed, errorsx.ReasonHAConnect, typ)
		}
		if !reply.Success {
			apiErr := reply.Error
			if apiErr == nil {
				apiErr = &APIError{Code: "unknown_error", Message: "command failed"}
			}
			return message{}, errorsx.WrapOp(apiErr, errorsx.ReasonHACommand, typ)
		}
		return reply, nil
	case <-ctx.Done():
		c.forget(id)
		return message{}, ctx.Err()
	case <-timer.C:
		c.forget(id)
		return message{}, errorsx.WrapOp(fmt.Errorf("command %d timed out", id), errorsx.ReasonHACommand, typ)
	}
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	defer c.shutdown(ErrClosed)
	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if !c.closing.Load() {
				c.logger.Warn("ha_connection_lost", "error", err)
			}
			return
		}
		switch msg.Type {
		case "result":
			c.mu.Lock()
			ch := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.mu.Unlock()
			if ch != nil {
				ch <- msg
			}
		case "event":
			c.mu.Lock()
			fn := c.subs[msg.ID]
			c.mu.Unlock()
			if fn != nil {
				fn(msg.Event)
			}
		case "pong":
		default:
			c.logger.Debug("ha_message_ignored", "type", msg.Type)
		}
	}
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = errorsx.Wrap(err, errorsx.ReasonHAConnect)
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.subs = make(map[int64]func(json.RawMessage))
		c.mu.Unlock()
		close(c.done)
	})
}

// Close ends the connection and waits for the reader goroutine to exit.
func (c *Client) Close() error {
	c.closing.Store(true)
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}
