// Package connectivity tracks online/offline state for the sync engine.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pedidolist/backend/internal/logging"
)

// Transition is one settled online/offline change.
type Transition struct {
	Online bool
	At     time.Time
}

// Monitor is the single source of truth for online/offline state. Raw
// observations go through a debounce window so a flapping link publishes
// one settled transition instead of a burst; every settled transition to
// online is delivered exactly once per subscriber.
type Monitor struct {
	mu       sync.Mutex
	online   bool // settled state
	observed bool // latest raw observation
	debounce time.Duration
	timer    *time.Timer
	subs     []chan Transition

	probeURL string
	interval time.Duration
	client   *http.Client
	stopCh   chan struct{}
	wg       sync.WaitGroup
	running  bool
}

// Config configures a Monitor.
type Config struct {
	// ProbeURL is fetched periodically to observe reachability. Empty
	// disables the probe loop; state is then driven via SetOnline only.
	ProbeURL string
	// ProbeInterval is how often the probe runs.
	ProbeInterval time.Duration
	// Debounce is the quiet period before a transition is settled.
	Debounce time.Duration
	// InitialOnline is the assumed state before the first observation.
	InitialOnline bool
}

// NewMonitor creates a Monitor.
func NewMonitor(cfg Config) *Monitor {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 30 * time.Second
	}
	return &Monitor{
		online:   cfg.InitialOnline,
		observed: cfg.InitialOnline,
		debounce: cfg.Debounce,
		probeURL: cfg.ProbeURL,
		interval: cfg.ProbeInterval,
		client:   &http.Client{Timeout: 5 * time.Second},
		stopCh:   make(chan struct{}),
	}
}

// IsOnline returns the settled state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe returns a channel receiving settled transitions. The channel is
// buffered; a slow subscriber drops transitions rather than blocking the
// monitor.
func (m *Monitor) Subscribe() <-chan Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Transition, 4)
	m.subs = append(m.subs, ch)
	return ch
}

// SetOnline feeds a raw observation. The transition is published only after
// the state holds for the debounce window.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.observed = online

	if online == m.online {
		// Flapped back to the settled state inside the window
		if m.timer != nil {
			m.timer.Stop()
			m.timer = nil
		}
		return
	}

	if m.timer != nil {
		// Already counting down toward this state
		return
	}

	m.timer = time.AfterFunc(m.debounce, m.settle)
}

// settle commits the observed state if it still differs from the settled one.
func (m *Monitor) settle() {
	m.mu.Lock()
	m.timer = nil
	if m.observed == m.online {
		m.mu.Unlock()
		return
	}
	m.online = m.observed
	t := Transition{Online: m.online, At: time.Now()}
	subs := make([]chan Transition, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	logging.Info("Connectivity transition settled", map[string]interface{}{
		"online": t.Online,
	})

	for _, ch := range subs {
		select {
		case ch <- t:
		default:
		}
	}
}

// Start runs the probe loop when a probe URL is configured.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running || m.probeURL == "" {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.probeLoop(ctx)
}

// Stop stops the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()
}

func (m *Monitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		return
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.SetOnline(false)
		return
	}
	resp.Body.Close()
	// Any HTTP response means the link is up, even an error status
	m.SetOnline(true)
}
