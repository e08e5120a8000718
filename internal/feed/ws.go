// Package feed provides the WebSocket tick ingest for the pipeline. It
// connects to a JSON tick server (e.g. cmd/tickserver) and hands every
// parsed tick to a submit callback.
//
// The expected wire format is identical to model.Tick:
//
//	{"symbol":"R_100","epoch_ms":1700000000000,"price":101.52}
package feed

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"time"

	"tradepulse/internal/model"

	"github.com/gorilla/websocket"
)

// Config holds configuration for the WS tick client.
type Config struct {
	// URL of the tick WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// SubmitFunc receives every parsed tick. Implementations must not block;
// the pipeline's per-symbol queues absorb bursts downstream.
type SubmitFunc func(model.Tick)

// Client connects to a plain-JSON WebSocket tick server and forwards ticks
// to a SubmitFunc. Reconnects automatically with exponential backoff.
type Client struct {
	cfg    Config
	submit SubmitFunc

	// Optional hooks.
	OnReconnect    func()
	OnConnected    func()
	OnDisconnected func()
}

// New creates a new Client. Returns an error if the URL is unparseable.
func New(cfg Config, submit SubmitFunc) (*Client, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, submit: submit}, nil
}

// Run connects to the WebSocket and streams ticks into the submit func.
// Blocks until ctx is cancelled. Reconnects automatically on disconnect,
// resetting the backoff after each successful connection.
func (c *Client) Run(ctx context.Context) error {
	delay := c.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		connected, err := c.runOnce(ctx)
		if err == nil {
			// Context cancelled cleanly
			return nil
		}
		if connected {
			delay = c.cfg.ReconnectDelay
		}

		log.Printf("[feed] disconnected (%v), reconnecting in %s...", err, delay)
		if c.OnReconnect != nil {
			c.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		// Exponential backoff
		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or
// ctx cancel. The bool reports whether the dial succeeded.
func (c *Client) runOnce(ctx context.Context) (bool, error) {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	log.Printf("[feed] connected to %s", c.cfg.URL)
	if c.OnConnected != nil {
		c.OnConnected()
	}
	if c.OnDisconnected != nil {
		defer c.OnDisconnected()
	}

	// Async context watcher — closes the connection when ctx is cancelled.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return true, nil
			default:
			}
			return true, err
		}

		var tick model.Tick
		if err := json.Unmarshal(raw, &tick); err != nil {
			log.Printf("[feed] parse error: %v (raw: %s)", err, raw)
			continue
		}

		// Malformed ticks are counted and rejected inside the pipeline;
		// only skip here what can't even be routed.
		if tick.Symbol == "" {
			log.Printf("[feed] skipping tick with empty symbol")
			continue
		}

		c.submit(tick)
	}
}
