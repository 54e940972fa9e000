package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/rollbook/internal/cache"
	"github.com/roach88/rollbook/internal/domain"
	"github.com/roach88/rollbook/internal/reconcile"
	"github.com/roach88/rollbook/internal/remote"
)

var (
	// ErrNotSignedIn is returned by writes that need a teacher before
	// SignIn or Hydrate provided one.
	ErrNotSignedIn = errors.New("no teacher signed in")

	// ErrUnknownClass is returned when a write targets a class that is not
	// in the coordinator's state.
	ErrUnknownClass = errors.New("unknown class")

	// ErrUnknownStudent is returned when a write targets a student that is
	// not on any roster.
	ErrUnknownStudent = errors.New("unknown student")
)

// DefaultSessionLimit is how many recent sessions per class a reload fetches.
const DefaultSessionLimit = 30

// Drainer replays the pending-action queue. Implemented by
// *reconcile.Reconciler.
type Drainer interface {
	Drain(ctx context.Context) (reconcile.Result, error)
}

// Coordinator is the single owner of in-memory teacher state.
//
// Thread-safety: safe for concurrent use. mu guards the in-memory state and
// is held across the matching cache write so memory and disk agree; remote
// calls happen outside it.
type Coordinator struct {
	cache   *cache.Cache
	remote  remote.Remote
	drainer Drainer

	gen          domain.IDGenerator
	clock        domain.Clock
	seq          *domain.Sequencer
	logger       *slog.Logger
	writes       *prometheus.CounterVec
	sessionLimit int

	mu       sync.Mutex
	offline  bool
	teacher  *domain.Teacher
	classes  []domain.ClassRoom
	sessions []domain.AttendanceSession
	pending  int

	// temps holds temporary ids whose creating action is still queued.
	temps map[string]bool
}

// Option configures a Coordinator.
type Option func(*options)

type options struct {
	gen          domain.IDGenerator
	clock        domain.Clock
	logger       *slog.Logger
	reg          prometheus.Registerer
	offline      bool
	sessionLimit int
}

// WithIDGenerator sets the generator for temporary and local ids.
func WithIDGenerator(g domain.IDGenerator) Option {
	return func(o *options) {
		o.gen = g
	}
}

// WithClock sets the clock used for local timestamps.
func WithClock(c domain.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRegisterer registers the write metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.reg = reg
	}
}

// WithOffline sets the initial connectivity belief.
func WithOffline(offline bool) Option {
	return func(o *options) {
		o.offline = offline
	}
}

// WithSessionLimit sets how many recent sessions per class a reload fetches.
func WithSessionLimit(n int) Option {
	return func(o *options) {
		o.sessionLimit = n
	}
}

// New creates a coordinator. Call Hydrate before anything else.
func New(c *cache.Cache, r remote.Remote, d Drainer, opts ...Option) *Coordinator {
	o := options{
		gen:          domain.UUIDv7Generator{},
		clock:        domain.SystemClock{},
		logger:       slog.Default(),
		sessionLimit: DefaultSessionLimit,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Coordinator{
		cache:        c,
		remote:       r,
		drainer:      d,
		gen:          o.gen,
		clock:        o.clock,
		seq:          domain.NewSequencer(0),
		logger:       o.logger,
		writes:       newWritesCounter(o.reg),
		sessionLimit: o.sessionLimit,
		offline:      o.offline,
		temps:        make(map[string]bool),
	}
}

// Hydrate loads the persisted snapshot into memory. It makes no network
// call, so a device that starts offline has its full state at once.
func (c *Coordinator) Hydrate(ctx context.Context) domain.Snapshot {
	snap := c.cache.Load(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.teacher = snap.Teacher
	c.classes = snap.Classes
	c.sessions = snap.Sessions
	c.setPendingLocked(snap.PendingActions)

	c.logger.Info("hydrated from cache",
		"classes", len(snap.Classes),
		"sessions", len(snap.Sessions),
		"pending", len(snap.PendingActions))
	return snap
}

// SignIn registers t with the remote and persists it locally. If the
// remote is unreachable the profile is kept locally only. Signing in as a
// different teacher clears the cache.
func (c *Coordinator) SignIn(ctx context.Context, t domain.Teacher) (Result[domain.Teacher], error) {
	const op = "sign in"
	t.Name = domain.NormalizeName(t.Name)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = c.clock.Now()
	}
	if err := domain.Validate(t); err != nil {
		c.count(op, outcomeRejected)
		return Result[domain.Teacher]{}, fmt.Errorf("%s: %w", op, err)
	}

	state := Optimistic
	out := t
	sent, err := c.attempt(ctx, op, nil, func(ctx context.Context) error {
		confirmed, err := c.remote.UpsertTeacher(ctx, t)
		out = confirmed
		return err
	})
	if err != nil {
		return Result[domain.Teacher]{}, err
	}
	if sent {
		state = Confirmed
	} else {
		out = t
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.teacher != nil && c.teacher.ID != out.ID {
		// Another teacher's data must not leak into this account.
		if err := c.cache.Reset(ctx); err != nil {
			return Result[domain.Teacher]{}, fmt.Errorf("%s: %w", op, err)
		}
		c.classes = nil
		c.sessions = nil
		c.setPendingLocked(nil)
	}
	if err := c.cache.SaveTeacher(ctx, out); err != nil {
		return Result[domain.Teacher]{}, fmt.Errorf("%s: %w", op, err)
	}
	c.teacher = &out
	c.count(op, string(state))
	return Result[domain.Teacher]{Value: out, State: state}, nil
}

// Teacher returns the signed-in teacher.
func (c *Coordinator) Teacher() (domain.Teacher, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.teacher == nil {
		return domain.Teacher{}, false
	}
	return *c.teacher, true
}

// Classes returns a copy of the classes.
func (c *Coordinator) Classes() []domain.ClassRoom {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ClassRoom, len(c.classes))
	for i, cl := range c.classes {
		out[i] = cl.Clone()
	}
	return out
}

// Class returns a copy of the class with the given id.
func (c *Coordinator) Class(id string) (domain.ClassRoom, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.classIndexLocked(id); i >= 0 {
		return c.classes[i].Clone(), true
	}
	return domain.ClassRoom{}, false
}

// Sessions returns a copy of the sessions.
func (c *Coordinator) Sessions() []domain.AttendanceSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.AttendanceSession, len(c.sessions))
	for i, s := range c.sessions {
		out[i] = s.Clone()
	}
	return out
}

// Session returns a copy of the session with the given id.
func (c *Coordinator) Session(id string) (domain.AttendanceSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.sessionIndexLocked(id); i >= 0 {
		return c.sessions[i].Clone(), true
	}
	return domain.AttendanceSession{}, false
}

// SessionFor returns the most recently created session of a class on a
// date.
func (c *Coordinator) SessionFor(classID, date string) (domain.AttendanceSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	found := -1
	for i, s := range c.sessions {
		if s.ClassID != classID || s.Date != date {
			continue
		}
		if found < 0 || !s.CreatedAt.Before(c.sessions[found].CreatedAt) {
			found = i
		}
	}
	if found < 0 {
		return domain.AttendanceSession{}, false
	}
	return c.sessions[found].Clone(), true
}

// Unsynced reports whether id was created locally and its create action
// is still queued.
func (c *Coordinator) Unsynced(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.temps[id]
}

// Status reports connectivity belief and queue depth.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{Online: !c.offline, Pending: c.pending}
}

// attempt runs call against the remote unless the coordinator believes it
// is offline or refs name an unresolved temporary id.
//
// It returns sent=true when the remote accepted the call. A transient
// failure flips the offline flag and returns sent=false with a nil error;
// a single failure is taken as evidence of an outage. A permanent
// rejection is returned as an error.
func (c *Coordinator) attempt(ctx context.Context, op string, refs []string, call func(context.Context) error) (bool, error) {
	c.mu.Lock()
	offline := c.offline
	blocked := ""
	for _, ref := range refs {
		if c.temps[ref] {
			blocked = ref
			break
		}
	}
	c.mu.Unlock()

	if offline {
		return false, nil
	}
	if blocked != "" {
		c.logger.Debug("queueing write that references an unsynced id", "op", op, "ref", blocked)
		return false, nil
	}

	err := call(ctx)
	if err == nil {
		return true, nil
	}
	if remote.IsPermanent(err) {
		c.count(op, outcomeRejected)
		return false, fmt.Errorf("%s: %w", op, err)
	}

	c.mu.Lock()
	c.offline = true
	c.mu.Unlock()
	c.logger.Warn("remote write failed, continuing offline", "op", op, "error", err)
	return false, nil
}

// enqueueLocked persists a pending action for an optimistic write.
// Caller must hold c.mu.
func (c *Coordinator) enqueueLocked(ctx context.Context, typ domain.ActionType, payload any) (string, error) {
	now := c.clock.Now()
	a, err := domain.NewPendingAction(c.gen.NewID(), typ, payload, now, c.seq.Next(now))
	if err != nil {
		return "", err
	}
	if err := c.cache.AddPendingAction(ctx, a); err != nil {
		return "", err
	}
	c.pending++
	if temp := a.TempID(); temp != "" {
		c.temps[temp] = true
	}
	return a.ID, nil
}

// setPendingLocked refreshes the queue view. Caller must hold c.mu.
func (c *Coordinator) setPendingLocked(actions []domain.PendingAction) {
	c.pending = len(actions)
	c.temps = make(map[string]bool)
	for _, a := range actions {
		c.seq.Observe(a.Seq)
		if temp := a.TempID(); temp != "" {
			c.temps[temp] = true
		}
	}
}

func (c *Coordinator) classIndexLocked(id string) int {
	for i := range c.classes {
		if c.classes[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Coordinator) sessionIndexLocked(id string) int {
	for i := range c.sessions {
		if c.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

// studentLocked locates a roster entry. Caller must hold c.mu.
func (c *Coordinator) studentLocked(id string) (classIdx, studentIdx int) {
	for i := range c.classes {
		for j := range c.classes[i].Students {
			if c.classes[i].Students[j].ID == id {
				return i, j
			}
		}
	}
	return -1, -1
}

func (c *Coordinator) count(op, outcome string) {
	c.writes.WithLabelValues(op, outcome).Inc()
}
