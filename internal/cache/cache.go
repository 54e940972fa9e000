package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/rollbook/internal/domain"
	"github.com/roach88/rollbook/internal/store"
)

// Keys of the persisted documents.
const (
	KeyTeacher  = "rollbook:teacher"
	KeyClasses  = "rollbook:classes"
	KeySessions = "rollbook:sessions"
	KeyPending  = "rollbook:pending"
)

// ErrSessionNotFound is returned by UpdateRecord when the session is not cached.
var ErrSessionNotFound = errors.New("session not cached")

// Cache is the LocalCache: persisted snapshot plus pending-action queue.
//
// Thread-safety: all methods are safe for concurrent use. Mutations are
// serialized by an internal mutex.
type Cache struct {
	kv     store.KV
	logger *slog.Logger
	mu     sync.Mutex
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used to report corrupt documents.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// New creates a Cache over kv.
func New(kv store.KV, opts ...Option) *Cache {
	c := &Cache{kv: kv, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load returns the persisted snapshot. Absent or corrupt documents load as
// empty defaults.
func (c *Cache) Load(ctx context.Context) domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var snap domain.Snapshot
	var err error
	if snap.Classes, err = c.readClasses(ctx); err != nil {
		c.unreadable(err)
	}
	if snap.Sessions, err = c.readSessions(ctx); err != nil {
		c.unreadable(err)
	}
	if snap.PendingActions, err = c.readActions(ctx); err != nil {
		c.unreadable(err)
	}
	t, ok, err := c.readTeacher(ctx)
	if err != nil {
		c.unreadable(err)
	}
	if ok {
		snap.Teacher = &t
	}
	return snap
}

// SaveTeacher replaces the cached teacher.
func (c *Cache) SaveTeacher(ctx context.Context, t domain.Teacher) error {
	data, err := encodeTeacher(t)
	if err != nil {
		return fmt.Errorf("save teacher: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.kv.Set(ctx, KeyTeacher, data); err != nil {
		return fmt.Errorf("save teacher: %w", err)
	}
	return nil
}

// SaveClasses replaces every cached class.
func (c *Cache) SaveClasses(ctx context.Context, classes []domain.ClassRoom) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeClasses(ctx, classes)
}

// SaveSessions replaces every cached session.
func (c *Cache) SaveSessions(ctx context.Context, sessions []domain.AttendanceSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeSessions(ctx, sessions)
}

// Classes returns the cached classes.
func (c *Cache) Classes(ctx context.Context) []domain.ClassRoom {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, err := c.readClasses(ctx)
	if err != nil {
		c.unreadable(err)
	}
	return out
}

// Sessions returns the cached sessions.
func (c *Cache) Sessions(ctx context.Context) []domain.AttendanceSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, err := c.readSessions(ctx)
	if err != nil {
		c.unreadable(err)
	}
	return out
}

// UpsertClass inserts c or replaces the cached class with the same id.
func (c *Cache) UpsertClass(ctx context.Context, class domain.ClassRoom) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	classes, err := c.readClasses(ctx)
	if err != nil {
		return fmt.Errorf("upsert class: %w", err)
	}
	replaced := false
	for i := range classes {
		if classes[i].ID == class.ID {
			classes[i] = class
			replaced = true
			break
		}
	}
	if !replaced {
		classes = append(classes, class)
	}
	return c.writeClasses(ctx, classes)
}

// DeleteClass removes the class and, with it, its students and sessions.
func (c *Cache) DeleteClass(ctx context.Context, classID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	classes, err := c.readClasses(ctx)
	if err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	keptClasses := classes[:0]
	for _, cl := range classes {
		if cl.ID != classID {
			keptClasses = append(keptClasses, cl)
		}
	}

	sessions, err := c.readSessions(ctx)
	if err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	keptSessions := sessions[:0]
	for _, s := range sessions {
		if s.ClassID != classID {
			keptSessions = append(keptSessions, s)
		}
	}

	classesData, err := encodeClasses(keptClasses)
	if err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	sessionsData, err := encodeSessions(keptSessions)
	if err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	if err := c.kv.SetMany(ctx, map[string]string{
		KeyClasses:  classesData,
		KeySessions: sessionsData,
	}); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return nil
}

// UpsertSession inserts s or replaces the cached session with the same id.
func (c *Cache) UpsertSession(ctx context.Context, s domain.AttendanceSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sessions, err := c.readSessions(ctx)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	replaced := false
	for i := range sessions {
		if sessions[i].ID == s.ID {
			sessions[i] = s
			replaced = true
			break
		}
	}
	if !replaced {
		sessions = append(sessions, s)
	}
	return c.writeSessions(ctx, sessions)
}

// UpdateRecord stores r in the session, replacing any record for the same
// student. Returns ErrSessionNotFound if the session is not cached.
func (c *Cache) UpdateRecord(ctx context.Context, sessionID string, r domain.AttendanceRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sessions, err := c.readSessions(ctx)
	if err != nil {
		return fmt.Errorf("update record %s/%s: %w", sessionID, r.StudentID, err)
	}
	for i := range sessions {
		if sessions[i].ID == sessionID {
			sessions[i].PutRecord(r)
			return c.writeSessions(ctx, sessions)
		}
	}
	return fmt.Errorf("update record %s/%s: %w", sessionID, r.StudentID, ErrSessionNotFound)
}

// AddPendingAction appends a to the queue.
func (c *Cache) AddPendingAction(ctx context.Context, a domain.PendingAction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	actions, err := c.readActions(ctx)
	if err != nil {
		return fmt.Errorf("add pending action: %w", err)
	}
	actions = append(actions, a)
	return c.writeActions(ctx, actions)
}

// PendingActions returns the queue in replay order.
func (c *Cache) PendingActions(ctx context.Context) []domain.PendingAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	actions, err := c.readActions(ctx)
	if err != nil {
		c.unreadable(err)
	}
	return actions
}

// ClearPendingAction removes the action with the given id. Clearing an
// unknown id is a no-op.
func (c *Cache) ClearPendingAction(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	actions, err := c.readActions(ctx)
	if err != nil {
		return fmt.Errorf("clear pending action %s: %w", id, err)
	}
	kept := actions[:0]
	for _, a := range actions {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	return c.writeActions(ctx, kept)
}

// SettlePendingActions removes every action whose id is in ids and
// rewrites the references of the remaining actions through resolved, a map
// from temporary to remote ids. Actions appended since the caller read the
// queue are kept.
func (c *Cache) SettlePendingActions(ctx context.Context, ids []string, resolved map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	actions, err := c.readActions(ctx)
	if err != nil {
		return fmt.Errorf("settle pending actions: %w", err)
	}
	kept := actions[:0]
	for _, a := range actions {
		if !drop[a.ID] {
			kept = append(kept, a)
		}
	}
	for from, to := range resolved {
		kept = rewriteActions(kept, from, to)
	}
	return c.writeActions(ctx, kept)
}

// ReplacePendingActions replaces the whole queue.
func (c *Cache) ReplacePendingActions(ctx context.Context, actions []domain.PendingAction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.PendingAction, len(actions))
	copy(out, actions)
	return c.writeActions(ctx, out)
}

// Reset empties every document.
func (c *Cache) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.kv.SetMany(ctx, map[string]string{
		KeyTeacher:  "",
		KeyClasses:  "[]",
		KeySessions: "[]",
		KeyPending:  "[]",
	}); err != nil {
		return fmt.Errorf("reset cache: %w", err)
	}
	return nil
}

func (c *Cache) writeClasses(ctx context.Context, classes []domain.ClassRoom) error {
	data, err := encodeClasses(classes)
	if err != nil {
		return fmt.Errorf("save classes: %w", err)
	}
	if err := c.kv.Set(ctx, KeyClasses, data); err != nil {
		return fmt.Errorf("save classes: %w", err)
	}
	return nil
}

func (c *Cache) writeSessions(ctx context.Context, sessions []domain.AttendanceSession) error {
	data, err := encodeSessions(sessions)
	if err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}
	if err := c.kv.Set(ctx, KeySessions, data); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}
	return nil
}

func (c *Cache) writeActions(ctx context.Context, actions []domain.PendingAction) error {
	data, err := encodeActions(actions)
	if err != nil {
		return fmt.Errorf("save pending actions: %w", err)
	}
	if err := c.kv.Set(ctx, KeyPending, data); err != nil {
		return fmt.Errorf("save pending actions: %w", err)
	}
	return nil
}

// read returns the raw document under key. Absent and empty documents
// report ok=false; a failing store reports the error.
func (c *Cache) read(ctx context.Context, key string) (string, bool, error) {
	data, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || data == "" {
		return "", false, nil
	}
	return data, true, nil
}

func (c *Cache) corrupt(key string, err error) {
	c.logger.Warn("cache document corrupt, using empty default", "key", key, "error", err)
}

// unreadable logs a failed read on a path that can fall back to an empty
// view. Write paths return the error instead.
func (c *Cache) unreadable(err error) {
	c.logger.Warn("cache read failed, using empty default", "error", err)
}

func (c *Cache) readTeacher(ctx context.Context) (domain.Teacher, bool, error) {
	data, ok, err := c.read(ctx, KeyTeacher)
	if err != nil || !ok {
		return domain.Teacher{}, false, err
	}
	t, err := decodeTeacher(data)
	if err != nil {
		c.corrupt(KeyTeacher, err)
		return domain.Teacher{}, false, nil
	}
	return t, true, nil
}

func (c *Cache) readClasses(ctx context.Context) ([]domain.ClassRoom, error) {
	data, ok, err := c.read(ctx, KeyClasses)
	if err != nil || !ok {
		return []domain.ClassRoom{}, err
	}
	classes, err := decodeClasses(data)
	if err != nil {
		c.corrupt(KeyClasses, err)
		return []domain.ClassRoom{}, nil
	}
	return classes, nil
}

func (c *Cache) readSessions(ctx context.Context) ([]domain.AttendanceSession, error) {
	data, ok, err := c.read(ctx, KeySessions)
	if err != nil || !ok {
		return []domain.AttendanceSession{}, err
	}
	sessions, err := decodeSessions(data)
	if err != nil {
		c.corrupt(KeySessions, err)
		return []domain.AttendanceSession{}, nil
	}
	return sessions, nil
}

func (c *Cache) readActions(ctx context.Context) ([]domain.PendingAction, error) {
	data, ok, err := c.read(ctx, KeyPending)
	if err != nil || !ok {
		return []domain.PendingAction{}, err
	}
	actions, err := decodeActions(data)
	if err != nil {
		c.corrupt(KeyPending, err)
		return []domain.PendingAction{}, nil
	}
	return actions, nil
}
