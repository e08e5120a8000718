// Package redis publishes pipeline events to Redis for live consumers:
// streams for history tails, latest keys for dashboards, pub/sub for
// push updates. One writer goroutine consumes the event bus.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"tradepulse/internal/model"
)

const (
	// Stream trimming: roughly 3h of 5s candles plus buffer.
	candleStreamMaxLen = 2400
	signalStreamMaxLen = 500
	tradeStreamMaxLen  = 500
	defaultLatestTTL   = 30 * time.Minute
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer writes candles, snapshots, signals and trades to Redis.
type Writer struct {
	client *goredis.Client

	// OnWrite is called with the elapsed time of each write (optional).
	OnWrite func(d time.Duration)
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// Run consumes bus events and writes them out. Blocks until ctx is
// cancelled or events is closed.
func (w *Writer) Run(ctx context.Context, events <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			start := time.Now()
			w.write(ctx, ev)
			if w.OnWrite != nil {
				w.OnWrite(time.Since(start))
			}
		}
	}
}

// write performs the pipelined XADD + SET + PUBLISH for one event.
func (w *Writer) write(ctx context.Context, ev model.Event) {
	var (
		jsonData  string
		streamKey string
		latestKey string
		pubsubCh  string
		maxLen    int64
	)

	switch p := ev.Payload.(type) {
	case model.Candle:
		jsonData = string(p.JSON())
		suffix := itoa(p.TF) + "s:" + p.Symbol
		streamKey = "candle:" + suffix
		latestKey = "candle:latest:" + suffix
		pubsubCh = "pub:candle:" + suffix
		maxLen = candleStreamMaxLen
	case model.IndicatorSnapshot:
		jsonData = string(p.JSON())
		suffix := itoa(p.TF) + "s:" + p.Symbol
		latestKey = "ind:latest:" + suffix
		pubsubCh = "pub:ind:" + suffix
		// Latest + pub/sub only; snapshot history is recomputable from
		// stored candles.
	case model.Signal:
		jsonData = string(p.JSON())
		streamKey = "signal:" + p.Symbol
		latestKey = "signal:latest:" + p.Symbol
		pubsubCh = "pub:signal:" + p.Symbol
		maxLen = signalStreamMaxLen
	case model.SimulatedTrade:
		jsonData = string(p.JSON())
		pubsubCh = "pub:trade:" + p.Symbol
		if ev.Kind == model.EventTradeClosed {
			streamKey = "trade:" + p.Symbol
			latestKey = "trade:latest:" + p.Symbol
			maxLen = tradeStreamMaxLen
		}
	default:
		return
	}

	pipe := w.client.Pipeline()
	if streamKey != "" {
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: streamKey,
			MaxLen: maxLen,
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
	}
	if latestKey != "" {
		pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	}
	pipe.Publish(ctx, pubsubCh, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] pipeline error kind=%s sym=%s: %v", ev.Kind, ev.Symbol, err)
	}
}

// Close closes the client.
func (w *Writer) Close() error { return w.client.Close() }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
