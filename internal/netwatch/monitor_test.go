package netwatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// switchProber reports whatever status it was last set to.
type switchProber struct {
	up atomic.Bool
}

func newSwitchProber(up bool) *switchProber {
	p := &switchProber{}
	p.up.Store(up)
	return p
}

func (p *switchProber) Probe(ctx context.Context) error {
	if p.up.Load() {
		return nil
	}
	return errors.New("unreachable")
}

// recorder collects listener invocations.
type recorder struct {
	mu  sync.Mutex
	got []bool
}

func (r *recorder) listen(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, online)
}

func (r *recorder) calls() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.got...)
}

// settle waits for the probe loop's immediate probe so later Check calls
// are the only source of transitions.
func settle(t *testing.T, m *Monitor) {
	t.Helper()
	require.Eventually(t, func() bool { return m.Probes() >= 1 }, time.Second, time.Millisecond)
}

func TestMonitor_SubscribeDeliversCurrentStatus(t *testing.T) {
	p := newSwitchProber(false)
	m := New(p, WithInterval(time.Hour), WithInitialStatus(false))

	var rec recorder
	unsubscribe := m.Subscribe(rec.listen)
	defer unsubscribe()

	// Delivered synchronously, before any probe result
	assert.Equal(t, []bool{false}, rec.calls())
}

func TestMonitor_OnlyTransitionsAreDelivered(t *testing.T) {
	p := newSwitchProber(true)
	m := New(p, WithInterval(time.Hour))

	var rec recorder
	unsubscribe := m.Subscribe(rec.listen)
	defer unsubscribe()
	settle(t, m)

	ctx := context.Background()
	m.Check(ctx) // online again, no transition
	p.up.Store(false)
	m.Check(ctx)
	m.Check(ctx) // still offline, no transition
	p.up.Store(true)
	m.Check(ctx)

	assert.Equal(t, []bool{true, false, true}, rec.calls())
	assert.True(t, m.Online())
}

func TestMonitor_ImmediateProbeOnStart(t *testing.T) {
	p := newSwitchProber(false)
	m := New(p, WithInterval(time.Hour))

	var rec recorder
	unsubscribe := m.Subscribe(rec.listen)
	defer unsubscribe()

	require.Eventually(t, func() bool {
		return len(rec.calls()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{true, false}, rec.calls())
}

func TestMonitor_PeriodicProbing(t *testing.T) {
	p := newSwitchProber(true)
	m := New(p, WithInterval(5*time.Millisecond))

	var rec recorder
	unsubscribe := m.Subscribe(rec.listen)
	defer unsubscribe()

	p.up.Store(false)
	require.Eventually(t, func() bool { return !m.Online() }, time.Second, 5*time.Millisecond)
	p.up.Store(true)
	require.Eventually(t, func() bool { return m.Online() }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []bool{true, false, true}, rec.calls())
}

func TestMonitor_LastUnsubscribeStopsProbing(t *testing.T) {
	m := New(newSwitchProber(true), WithInterval(time.Hour))
	assert.False(t, m.Probing())

	first := m.Subscribe(func(bool) {})
	second := m.Subscribe(func(bool) {})
	assert.True(t, m.Probing())

	first()
	assert.True(t, m.Probing())
	first() // no-op
	assert.True(t, m.Probing())

	second()
	assert.False(t, m.Probing())

	// Probing restarts on the next subscriber
	third := m.Subscribe(func(bool) {})
	defer third()
	assert.True(t, m.Probing())
}

func TestMonitor_UnsubscribedListenerNotCalled(t *testing.T) {
	p := newSwitchProber(true)
	m := New(p, WithInterval(time.Hour))

	var kept, dropped recorder
	defer m.Subscribe(kept.listen)()
	settle(t, m)
	unsubscribe := m.Subscribe(dropped.listen)
	unsubscribe()

	p.up.Store(false)
	m.Check(context.Background())

	assert.Equal(t, []bool{true, false}, kept.calls())
	assert.Equal(t, []bool{true}, dropped.calls())
}

func TestMonitor_ProbeTimeoutIsOffline(t *testing.T) {
	slow := ProberFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	m := New(slow, WithInterval(time.Hour), WithTimeout(10*time.Millisecond))

	assert.False(t, m.Check(context.Background()))
	assert.False(t, m.Online())
}

func TestMonitor_Gauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := newSwitchProber(false)
	m := New(p, WithInterval(time.Hour), WithRegisterer(reg))

	assert.Equal(t, 1.0, promtest.ToFloat64(m.gauge))
	m.Check(context.Background())
	assert.Equal(t, 0.0, promtest.ToFloat64(m.gauge))
}

func TestHTTPProber(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNoContent)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	p := HTTPProber{URL: srv.URL}
	require.NoError(t, p.Probe(context.Background()))

	status.Store(http.StatusServiceUnavailable)
	assert.Error(t, p.Probe(context.Background()))

	srv.Close()
	assert.Error(t, p.Probe(context.Background()))
}
