package pipeline

import (
	"context"
	"log"
	"sync"

	"tradepulse/internal/model"
)

// Manager routes ticks to per-symbol workers and owns their lifecycle.
// Symbols run fully independently; there is no shared mutable state
// between them beyond the downstream sink.
type Manager struct {
	cfg  Config
	sink model.Sink

	mu      sync.Mutex
	workers map[string]*managedWorker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

type managedWorker struct {
	worker *Worker
	cancel context.CancelFunc
}

// NewManager creates a manager; workers spawn lazily per symbol.
func NewManager(cfg Config, snk model.Sink) *Manager {
	return &Manager{
		cfg:     cfg,
		sink:    snk,
		workers: make(map[string]*managedWorker),
	}
}

// Start binds the manager to a context. Must be called before Submit.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.started = true
}

// Submit routes a tick to its symbol's worker, spawning one on first
// sight of the symbol. Never blocks.
func (m *Manager) Submit(t model.Tick) {
	if !t.Valid() {
		log.Printf("[pipeline] rejected malformed tick sym=%q ts=%d price=%v", t.Symbol, t.EpochMS, t.Price)
		return
	}

	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	mw, ok := m.workers[t.Symbol]
	if !ok {
		mw = m.spawnLocked(t.Symbol)
	}
	m.mu.Unlock()

	mw.worker.Submit(t)
}

// Track pre-spawns workers for a known symbol set so lanes warm up in a
// predictable order at startup.
func (m *Manager) Track(symbols ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	for _, sym := range symbols {
		if _, ok := m.workers[sym]; !ok {
			m.spawnLocked(sym)
		}
	}
}

func (m *Manager) spawnLocked(symbol string) *managedWorker {
	ctx, cancel := context.WithCancel(m.ctx)
	w := NewWorker(symbol, m.cfg, m.sink)
	mw := &managedWorker{worker: w, cancel: cancel}
	m.workers[symbol] = mw

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		w.Run(ctx)
	}()
	return mw
}

// Remove tears down one symbol's worker: its queue drains and any live
// trade expires. The drain happens on the worker goroutine; Stop waits
// for all of them.
func (m *Manager) Remove(symbol string) {
	m.mu.Lock()
	mw, ok := m.workers[symbol]
	if ok {
		delete(m.workers, symbol)
	}
	m.mu.Unlock()
	if ok {
		mw.cancel()
	}
}

// Symbols returns the currently tracked symbols.
func (m *Manager) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.workers))
	for sym := range m.workers {
		out = append(out, sym)
	}
	return out
}

// QueueDepths reports each tracked symbol's queued tick count, for
// gauge scraping.
func (m *Manager) QueueDepths() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.workers))
	for sym, mw := range m.workers {
		out[sym] = mw.worker.queue.Len()
	}
	return out
}

// Stop tears down all workers and waits for them to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.started = false
	cancel := m.cancel
	m.workers = make(map[string]*managedWorker)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}
