// cmd/tickserver — Demo WebSocket tick server.
// Broadcasts simulated random-walk ticks for testing the pipeline without
// a live market feed.
//
// Tick JSON shape is identical to model.Tick:
//
//	{"symbol":"R_100","epoch_ms":1700000000000,"price":101.52}
//
// Config (env vars):
//
//	TICK_SERVER_ADDR  — listen address  (default: ":9001")
//	TICK_SYMBOLS      — comma-separated SYMBOL:STARTPRICE pairs (default: "R_100:100.0")
//	TICK_INTERVAL_MS  — broadcast interval milliseconds (default: "250")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// tickMsg mirrors model.Tick for JSON serialisation.
type tickMsg struct {
	Symbol  string  `json:"symbol"`
	EpochMS int64   `json:"epoch_ms"`
	Price   float64 `json:"price"`
}

// instrument holds per-symbol simulation state.
type instrument struct {
	Symbol string
	Price  float64 // current simulated price
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client — drop tick
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[tickserver] upgrade error: %v", err)
			return
		}
		log.Printf("[tickserver] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[tickserver] client disconnected: %s", r.RemoteAddr)
		}()

		// Write pump: sends tick JSON to this client.
		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Tick generator ──────────────────────────────────────────────────────────

// walkPrice applies a tiny random walk (±0.1%) to simulate price movement.
func walkPrice(price float64) float64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	newPrice := price * (1 + pct)
	if newPrice < 0.01 {
		newPrice = 0.01
	}
	return newPrice
}

func runGenerator(h *hub, instruments []instrument, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now().UTC()
		for i := range instruments {
			instruments[i].Price = walkPrice(instruments[i].Price)
			msg := tickMsg{
				Symbol:  instruments[i].Symbol,
				EpochMS: now.UnixMilli(),
				Price:   instruments[i].Price,
			}
			b, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			h.broadcast(b)
		}
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[tickserver] starting demo tick server...")

	// Config
	addr := envOrDefault("TICK_SERVER_ADDR", ":9001")
	symbolsEnv := envOrDefault("TICK_SYMBOLS", "R_100:100.0")
	intervalMs := envIntOrDefault("TICK_INTERVAL_MS", 250)

	// Parse SYMBOL:STARTPRICE pairs
	instruments := parseInstruments(symbolsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[tickserver] no instruments configured via TICK_SYMBOLS")
	}
	log.Printf("[tickserver] instruments: %+v", instruments)
	log.Printf("[tickserver] broadcast interval: %dms", intervalMs)

	h := newHub()

	// Start tick generator
	go runGenerator(h, instruments, intervalMs)

	// HTTP routes
	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"tickserver"}`)
	})

	log.Printf("[tickserver] listening on %s  (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[tickserver] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func parseInstruments(s string) []instrument {
	var result []instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		seg := strings.SplitN(part, ":", 2)
		sym := strings.TrimSpace(seg[0])
		if sym == "" {
			log.Printf("[tickserver] skipping invalid symbol spec: %q", part)
			continue
		}
		price := 100.0
		if len(seg) == 2 {
			if p, err := strconv.ParseFloat(strings.TrimSpace(seg[1]), 64); err == nil && p > 0 {
				price = p
			}
		}
		result = append(result, instrument{Symbol: sym, Price: price})
	}
	return result
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
