// cmd/pipeline — the tick-to-trade engine.
//
// Wires the full flow: WebSocket tick feed → per-symbol pipeline workers
// (candles → indicators → structure → signals → paper trades) → event bus
// → Redis / SQLite / metrics / alerts.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tradepulse/config"
	"tradepulse/internal/bus"
	"tradepulse/internal/feed"
	"tradepulse/internal/indicator"
	"tradepulse/internal/logger"
	"tradepulse/internal/metrics"
	"tradepulse/internal/model"
	"tradepulse/internal/notification"
	"tradepulse/internal/pipeline"
	"tradepulse/internal/risk"
	sigeval "tradepulse/internal/signal"
	"tradepulse/internal/structure"
	redisstore "tradepulse/internal/store/redis"
	sqlitestore "tradepulse/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[pipeline] starting...")

	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		log.Println("[pipeline] loaded .env")
	}

	logger.Init("pipeline", slog.LevelInfo)

	cfg := config.Load()
	symbols := cfg.ParseSymbols()
	tfs := cfg.ParseTFs()
	if len(symbols) == 0 {
		log.Fatalf("[pipeline] no symbols configured via SYMBOLS")
	}
	if len(tfs) == 0 {
		log.Fatalf("[pipeline] no timeframes configured via ENABLED_TFS")
	}
	log.Printf("[pipeline] symbols=%v TFs=%v seconds", symbols, tfs)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetSymbols(symbols)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Graceful shutdown context ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite writer (off hot path) ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[pipeline] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	sqlWriter.OnCommit = func(d time.Duration) {
		prom.SQLiteCommitDur.Observe(d.Seconds())
	}
	health.SetSQLiteOK(true)
	log.Println("[pipeline] sqlite writer ready")

	// ---- Redis writer ----
	redisWriter, err := redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Printf("[pipeline] WARNING: redis init failed: %v (continuing without redis)", err)
		health.SetRedisConnected(false)
	} else {
		redisWriter.OnWrite = func(d time.Duration) {
			prom.RedisWriteDur.Observe(d.Seconds())
		}
		health.SetRedisConnected(true)
		log.Println("[pipeline] redis writer ready")
	}

	// ---- Periodic liveness checks ----
	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	// ---- Event bus fan-out ----
	fanout := bus.New(5000)
	fanout.OnDrop = func(subscriberIdx int) {
		prom.BusDropsTotal.WithLabelValues(strconv.Itoa(subscriberIdx)).Inc()
	}

	sqliteCh := fanout.Subscribe()
	var redisCh <-chan model.Event
	if redisWriter != nil {
		redisCh = fanout.Subscribe()
	}
	metricsCh := fanout.Subscribe()

	notifiers := buildNotifiers(cfg)
	alertCh := fanout.Subscribe()

	go fanout.Run(ctx)
	go sqlWriter.Run(ctx, sqliteCh)
	if redisWriter != nil {
		go redisWriter.Run(ctx, redisCh)
	}
	go prom.Observe(ctx, metricsCh)
	alerter := notification.NewAlerter(notifiers...)
	go alerter.Run(ctx, alertCh)
	log.Printf("[pipeline] alerting via %d notifier(s)", len(notifiers))

	// ---- Per-symbol pipeline workers ----
	pcfg := pipeline.Config{
		TFs:      tfs,
		QueueCap: cfg.QueueCap,
		Indicator: indicator.Config{
			EMAFastPeriod: cfg.EMAFastPeriod,
			EMASlowPeriod: cfg.EMASlowPeriod,
			RSIPeriod:     cfg.RSIPeriod,
		},
		Structure: structure.Config{
			Window:               structure.DefaultConfig().Window,
			Lookback:             cfg.StructureLookback,
			TolerancePct:         cfg.LevelTolerancePct,
			MaxLevels:            cfg.MaxLevels,
			BreakoutMult:         cfg.BreakoutMult,
			ATRPeriod:            cfg.ATRPeriod,
			ConsolidationCandles: cfg.ConsolidationCandles,
			ConsolidationMult:    cfg.ConsolidationMult,
		},
		Signal: sigeval.Config{
			MinConfirmations: cfg.MinConfirmations,
			RRRatio:          cfg.RRRatio,
			RSIOversold:      cfg.RSIOversold,
			RSIOverbought:    cfg.RSIOverbought,
			MinStopPct:       cfg.MinStopPct,
			CooldownBars:     cfg.CooldownBars,
			Band:             risk.Band{Min: cfg.RRBandMin, Max: cfg.RRBandMax},
			AvgRangePeriod:   cfg.ConsolidationCandles,
			OnFiltered: func(reason string) {
				prom.SignalsFiltered.WithLabelValues(reason).Inc()
			},
		},
		MaxTradeDuration: cfg.MaxTradeDuration,
		OnReject:         prom.TicksRejected.Inc,
		OnCoalesce:       prom.TicksCoalesced.Inc,
	}
	if !pcfg.Signal.Band.Validate(pcfg.Signal.RRRatio) {
		log.Fatalf("[pipeline] RR ratio %.2f outside acceptance band %s",
			pcfg.Signal.RRRatio, pcfg.Signal.Band)
	}

	mgr := pipeline.NewManager(pcfg, fanout)
	mgr.Start(ctx)
	mgr.Track(symbols...)

	// Queue depth gauge scrape.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for sym, depth := range mgr.QueueDepths() {
					prom.QueueDepth.WithLabelValues(sym).Set(float64(depth))
				}
			}
		}
	}()

	// ---- Tick feed ----
	client, err := feed.New(feed.Config{URL: cfg.FeedURL}, func(t model.Tick) {
		prom.TicksTotal.Inc()
		health.SetLastTickTime(t.TS())
		mgr.Submit(t)
	})
	if err != nil {
		log.Fatalf("[pipeline] feed init failed: %v", err)
	}
	client.OnConnected = func() { health.SetFeedConnected(true) }
	client.OnDisconnected = func() { health.SetFeedConnected(false) }
	client.OnReconnect = prom.FeedReconnects.Inc

	go func() {
		if err := client.Run(ctx); err != nil {
			log.Printf("[pipeline] feed error: %v", err)
		}
	}()

	log.Println("[pipeline] ╔══════════════════════════════════════════════════════════╗")
	log.Println("[pipeline] ║  TradePulse — tick-to-trade engine                       ║")
	log.Println("[pipeline] ║                                                          ║")
	log.Println("[pipeline] ║  [Feed WS] → [Candles] → [Indicators] → [Structure]      ║")
	log.Println("[pipeline] ║            → [Signals] → [Paper Trades] → [Redis/SQLite] ║")
	log.Printf("[pipeline] ║  Symbols: %-46v ║", symbols)
	log.Printf("[pipeline] ║  TFs: %-50v ║", tfs)
	log.Println("[pipeline] ╚══════════════════════════════════════════════════════════╝")

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[pipeline] shutdown signal received, cleaning up...")

	// Stop workers first so live trades expire and final events reach
	// the bus before the consumers wind down.
	mgr.Stop()
	time.Sleep(500 * time.Millisecond)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	if redisWriter != nil {
		redisWriter.Close()
	}

	log.Println("[pipeline] shutdown complete.")
}

// buildNotifiers assembles the alert sinks: structured log always, plus
// webhook and Telegram when configured.
func buildNotifiers(cfg *config.Config) []notification.Notifier {
	out := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		out = append(out, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		out = append(out, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	return out
}
