package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/rollbook/internal/cache"
	"github.com/roach88/rollbook/internal/domain"
	"github.com/roach88/rollbook/internal/remote"
)

// Result summarises one drain.
type Result struct {
	// Processed counts actions the remote confirmed; they left the queue.
	Processed int

	// Failed counts actions that stay queued: remote failures and actions
	// blocked on a temporary id that is not resolved yet.
	Failed int

	// Skipped counts actions of unknown types, left untouched.
	Skipped int
}

// Reconciler drains the pending-action queue.
//
// Thread-safety: concurrent Drain calls are collapsed into one in-flight
// drain whose result every caller receives.
type Reconciler struct {
	cache   *cache.Cache
	remote  remote.Remote
	logger  *slog.Logger
	metrics *metrics
	group   singleflight.Group

	// carried holds resolutions whose queue rewrite is not persisted yet.
	// Only the single in-flight drain touches it.
	carried map[string]string
}

// Option configures a Reconciler.
type Option func(*config)

type config struct {
	logger *slog.Logger
	reg    prometheus.Registerer
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithRegisterer registers the drain metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.reg = reg
	}
}

// New creates a reconciler over c and r.
func New(c *cache.Cache, r remote.Remote, opts ...Option) *Reconciler {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Reconciler{
		cache:   c,
		remote:  r,
		logger:  cfg.logger,
		metrics: newMetrics(cfg.reg),
	}
}

// Drain replays the queue once.
//
// Remote failures never abort the pass; they are counted in Result.Failed.
// The returned error reports local persistence failures only.
func (r *Reconciler) Drain(ctx context.Context) (Result, error) {
	v, err, shared := r.group.Do("drain", func() (any, error) {
		return r.drain(ctx)
	})
	if shared {
		r.logger.Debug("joined in-flight drain")
	}
	res, _ := v.(Result)
	return res, err
}

// pass is the state of one drain.
type pass struct {
	// resolved maps temporary ids to the ids the remote assigned.
	resolved map[string]string

	// unresolved holds temporary ids whose creating action is still queued.
	unresolved map[string]bool

	consumed []string
	errs     []error
	result   Result
}

func (r *Reconciler) drain(ctx context.Context) (Result, error) {
	start := time.Now()
	defer func() {
		r.metrics.drain.Observe(time.Since(start).Seconds())
	}()

	actions := r.cache.PendingActions(ctx)
	domain.SortActions(actions)
	if len(actions) == 0 {
		r.carried = nil
		return Result{}, nil
	}

	p := &pass{
		resolved:   make(map[string]string, len(r.carried)),
		unresolved: make(map[string]bool),
	}
	for from, to := range r.carried {
		p.resolved[from] = to
	}
	for _, a := range actions {
		if temp := a.TempID(); temp != "" && isCreate(a.Type) && p.resolved[temp] == "" {
			p.unresolved[temp] = true
		}
	}

	r.logger.Info("draining pending actions", "count", len(actions))
	for _, a := range actions {
		if ctx.Err() != nil {
			// Everything not yet attempted stays queued.
			p.result.Failed++
			continue
		}
		r.step(ctx, p, a)
	}

	if len(p.consumed) > 0 || len(p.resolved) > 0 {
		// Rewriting again is a no-op where the remap already did it.
		if err := r.cache.SettlePendingActions(ctx, p.consumed, p.resolved); err != nil {
			p.errs = append(p.errs, err)
			r.carried = p.resolved
		} else {
			r.carried = nil
		}
	}

	r.logger.Info("drain finished",
		"processed", p.result.Processed,
		"failed", p.result.Failed,
		"skipped", p.result.Skipped,
		"duration", time.Since(start))

	if len(p.errs) > 0 {
		return p.result, fmt.Errorf("drain: %w", errors.Join(p.errs...))
	}
	return p.result, nil
}

// step handles one action and records its outcome in p.
func (r *Reconciler) step(ctx context.Context, p *pass, a domain.PendingAction) {
	// Earlier creations in this pass may have resolved ids a references.
	for from, to := range p.resolved {
		a, _ = a.RewriteRefs(from, to)
	}

	if temp := a.TempID(); temp != "" && isCreate(a.Type) && p.resolved[temp] != "" {
		// Confirmed by an earlier pass whose queue write failed.
		p.consumed = append(p.consumed, a.ID)
		p.result.Processed++
		r.count(a, outcomeProcessed)
		return
	}

	h, ok := handlers[a.Type]
	if !ok {
		p.result.Skipped++
		r.count(a, outcomeSkipped)
		r.logger.Warn("leaving action of unknown type queued", "action", a.ID, "type", a.Type)
		return
	}

	for _, ref := range a.References() {
		if p.unresolved[ref] {
			p.result.Failed++
			r.count(a, outcomeBlocked)
			r.logger.Info("action waits for unresolved id", "action", a.ID, "type", a.Type, "ref", ref)
			return
		}
	}

	out, err := h(ctx, r, a)
	if err != nil {
		var le *localError
		if !errors.As(err, &le) {
			p.result.Failed++
			r.count(a, outcomeFailed)
			r.logger.Warn("pending action failed",
				"action", a.ID,
				"type", a.Type,
				"permanent", remote.IsPermanent(err),
				"error", err)
			return
		}
		// The remote accepted the action; only the local follow-up failed.
		p.errs = append(p.errs, le.err)
		r.logger.Error("pending action confirmed but local update failed",
			"action", a.ID, "type", a.Type, "error", le.err)
	}

	if out.tempID != "" {
		delete(p.unresolved, out.tempID)
		p.resolved[out.tempID] = out.resolvedID
	}
	p.consumed = append(p.consumed, a.ID)
	p.result.Processed++
	r.count(a, outcomeProcessed)
	r.logger.Info("pending action confirmed", "action", a.ID, "type", a.Type)
}

func (r *Reconciler) count(a domain.PendingAction, outcome string) {
	r.metrics.actions.WithLabelValues(string(a.Type), outcome).Inc()
}

func isCreate(t domain.ActionType) bool {
	switch t {
	case domain.ActionCreateSession, domain.ActionCreateClass, domain.ActionCreateStudent:
		return true
	}
	return false
}
