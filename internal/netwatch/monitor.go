package netwatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultInterval is the time between probes.
	DefaultInterval = 15 * time.Second

	// DefaultTimeout bounds a single probe.
	DefaultTimeout = 5 * time.Second
)

// Listener receives the connectivity status.
type Listener func(online bool)

// Monitor fans reachability transitions out to listeners.
//
// Probing runs only while at least one listener is subscribed: the first
// Subscribe starts it and the last unsubscribe stops it.
//
// Listeners are invoked synchronously, one at a time, in subscription
// order. A listener may call Online or an unsubscribe func but must not call
// Subscribe.
//
// Thread-safety: safe for concurrent use.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	gauge    prometheus.Gauge

	// notifyMu serialises listener invocation so transitions are delivered
	// in order.
	notifyMu sync.Mutex

	mu        sync.Mutex
	online    bool
	nextID    int
	listeners map[int]Listener
	order     []int
	cancel    context.CancelFunc
	probes    int
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the probe interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		m.interval = d
	}
}

// WithTimeout sets the per-probe timeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		m.timeout = d
	}
}

// WithInitialStatus sets the status reported before the first probe
// completes. The default is online.
func WithInitialStatus(online bool) Option {
	return func(m *Monitor) {
		m.online = online
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = l
	}
}

// WithRegisterer exports the current status as the rollbook_online gauge.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Monitor) {
		m.gauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rollbook_online",
			Help: "1 when the remote system is reachable, 0 otherwise.",
		})
		reg.MustRegister(m.gauge)
	}
}

// New creates a monitor. It does nothing until the first Subscribe.
func New(prober Prober, opts ...Option) *Monitor {
	m := &Monitor{
		prober:    prober,
		interval:  DefaultInterval,
		timeout:   DefaultTimeout,
		online:    true,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.setGauge(m.online)
	return m
}

// Online returns the last known status.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Probing reports whether the probe loop is running.
func (m *Monitor) Probing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Probes returns the number of completed probes.
func (m *Monitor) Probes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.probes
}

// Subscribe registers l and invokes it with the current status before
// returning. The returned func unsubscribes; calling it again is a no-op.
func (m *Monitor) Subscribe(l Listener) func() {
	m.notifyMu.Lock()
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.order = append(m.order, id)
	online := m.online
	start := m.cancel == nil
	var ctx context.Context
	if start {
		ctx, m.cancel = context.WithCancel(context.Background())
	}
	m.mu.Unlock()

	l(online)
	m.notifyMu.Unlock()

	if start {
		m.logger.Debug("connectivity probing started", "interval", m.interval)
		go m.run(ctx)
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.unsubscribe(id) })
	}
}

func (m *Monitor) unsubscribe(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if len(m.listeners) == 0 && m.cancel != nil {
		m.cancel()
		m.cancel = nil
		m.logger.Debug("connectivity probing stopped")
	}
}

// Check probes once, applies the result and returns the new status.
// It works with or without subscribers.
func (m *Monitor) Check(ctx context.Context) bool {
	online := m.probe(ctx)
	m.apply(ctx, online)
	return online
}

// run probes immediately, then on every tick until ctx is cancelled.
func (m *Monitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		m.apply(ctx, m.probe(ctx))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	err := m.prober.Probe(pctx)
	if err != nil {
		m.logger.Debug("connectivity probe failed", "error", err)
	}
	return err == nil
}

// apply records a probe result and notifies listeners on a transition.
// Results from a cancelled loop are discarded.
func (m *Monitor) apply(ctx context.Context, online bool) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	m.probes++
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	targets := make([]Listener, 0, len(m.order))
	for _, id := range m.order {
		targets = append(targets, m.listeners[id])
	}
	m.mu.Unlock()

	m.setGauge(online)
	m.logger.Info("connectivity changed", "online", online)
	for _, l := range targets {
		l(online)
	}
}

func (m *Monitor) setGauge(online bool) {
	if m.gauge == nil {
		return
	}
	if online {
		m.gauge.Set(1)
	} else {
		m.gauge.Set(0)
	}
}
