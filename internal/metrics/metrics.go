// Package metrics exposes Prometheus metrics and a /healthz endpoint
// for the tick-to-trade pipeline.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradepulse/internal/model"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	TicksTotal     prometheus.Counter
	TicksRejected  prometheus.Counter
	TicksCoalesced prometheus.Counter
	FeedReconnects prometheus.Counter

	CandlesTotal    *prometheus.CounterVec // labels: tf
	SnapshotsTotal  prometheus.Counter
	SignalsTotal    *prometheus.CounterVec // labels: direction
	SignalsFiltered *prometheus.CounterVec // labels: reason
	TradesOpened    prometheus.Counter
	TradesClosed    *prometheus.CounterVec // labels: status

	BusDropsTotal *prometheus.CounterVec // labels: subscriber
	QueueDepth    *prometheus.GaugeVec   // labels: symbol

	RedisWriteDur   prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram
}

// NewMetrics registers and returns all pipeline metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradepulse_ticks_total",
			Help: "Total ticks received from the feed",
		}),
		TicksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradepulse_ticks_rejected_total",
			Help: "Ticks dropped (malformed or out of order)",
		}),
		TicksCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradepulse_ticks_coalesced_total",
			Help: "Ticks merged under queue backpressure",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradepulse_feed_reconnects_total",
			Help: "WebSocket feed reconnections",
		}),
		CandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepulse_candles_total",
			Help: "Closed candles emitted (by timeframe)",
		}, []string{"tf"}),
		SnapshotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradepulse_indicator_snapshots_total",
			Help: "Indicator snapshots emitted",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepulse_signals_total",
			Help: "Signals created (by direction)",
		}, []string{"direction"}),
		SignalsFiltered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepulse_signals_filtered_total",
			Help: "Candidate signals suppressed (by reason)",
		}, []string{"reason"}),
		TradesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradepulse_trades_opened_total",
			Help: "Paper trades filled",
		}),
		TradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepulse_trades_closed_total",
			Help: "Paper trades closed (by terminal status)",
		}, []string{"status"}),
		BusDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepulse_bus_drops_total",
			Help: "Events dropped for slow bus subscribers",
		}, []string{"subscriber"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradepulse_queue_depth",
			Help: "Per-symbol tick queue occupancy",
		}, []string{"symbol"}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradepulse_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradepulse_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.TicksRejected,
		m.TicksCoalesced,
		m.FeedReconnects,
		m.CandlesTotal,
		m.SnapshotsTotal,
		m.SignalsTotal,
		m.SignalsFiltered,
		m.TradesOpened,
		m.TradesClosed,
		m.BusDropsTotal,
		m.QueueDepth,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
	)

	return m
}

// Observe consumes bus events and counts them. Run on its own
// subscription so metric accounting never slows the stores.
func (m *Metrics) Observe(ctx context.Context, events <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch p := ev.Payload.(type) {
			case model.Candle:
				m.CandlesTotal.WithLabelValues(itoa(p.TF)).Inc()
			case model.IndicatorSnapshot:
				m.SnapshotsTotal.Inc()
			case model.Signal:
				m.SignalsTotal.WithLabelValues(string(p.Direction)).Inc()
			case model.SimulatedTrade:
				if ev.Kind == model.EventTradeOpened {
					m.TradesOpened.Inc()
				} else if p.Status.Terminal() {
					m.TradesClosed.WithLabelValues(string(p.Status)).Inc()
				}
			}
		}
	}
}

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

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastTickTime   time.Time `json:"last_tick_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	Symbols        []string  `json:"symbols"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetSymbols(symbols []string) {
	h.mu.Lock()
	h.Symbols = symbols
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial probe and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.FeedConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		FeedConnected   bool     `json:"feed_connected"`
		LastTickTime    string   `json:"last_tick_time"`
		TickAge         string   `json:"tick_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		Symbols         []string `json:"symbols"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Symbols:         h.Symbols,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
