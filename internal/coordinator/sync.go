package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/rollbook/internal/domain"
)

// HandleConnectivity reacts to a connectivity transition.
//
// Going offline only flips the flag. Coming online drains the queue,
// reloads classes and recent sessions from the remote so changes made
// elsewhere while offline show up, then refreshes the queue view.
func (c *Coordinator) HandleConnectivity(ctx context.Context, online bool) error {
	c.mu.Lock()
	c.offline = !online
	c.mu.Unlock()
	if !online {
		c.logger.Info("working offline")
		return nil
	}

	var errs []error
	res, err := c.drainer.Drain(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	c.logger.Info("queue drained", "processed", res.Processed, "failed", res.Failed, "skipped", res.Skipped)

	// The drain rewrote temporary ids in the cache; adopt its view first.
	c.adoptCache(ctx)

	if err := c.Reload(ctx); err != nil {
		errs = append(errs, err)
	}

	actions := c.cache.PendingActions(ctx)
	c.mu.Lock()
	c.setPendingLocked(actions)
	c.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("sync: %w", errors.Join(errs...))
	}
	return nil
}

// Reload replaces classes and sessions with the remote's view while keeping
// everything that only exists locally: entities created under temporary
// ids and records whose write is still queued.
func (c *Coordinator) Reload(ctx context.Context) error {
	teacher, ok := c.Teacher()
	if !ok {
		return nil
	}

	classes, err := c.remote.ListClasses(ctx, teacher.ID)
	if err != nil {
		return c.reloadFailed(err)
	}
	var sessions []domain.AttendanceSession
	for _, cl := range classes {
		got, err := c.remote.SessionsByClass(ctx, cl.ID, c.sessionLimit)
		if err != nil {
			return c.reloadFailed(err)
		}
		sessions = append(sessions, got...)
	}

	queued := queuedRecords(c.cache.PendingActions(ctx))

	c.mu.Lock()
	defer c.mu.Unlock()

	fetchedClass := make(map[string]bool, len(classes))
	for _, cl := range classes {
		fetchedClass[cl.ID] = true
	}
	for _, cl := range c.classes {
		if c.temps[cl.ID] {
			classes = append(classes, cl)
			continue
		}
		if !fetchedClass[cl.ID] {
			continue
		}
		// Keep students still waiting to be created remotely.
		for i := range classes {
			if classes[i].ID != cl.ID {
				continue
			}
			for _, st := range cl.Students {
				if c.temps[st.ID] {
					classes[i].Students = append(classes[i].Students, st)
				}
			}
		}
	}

	local := make(map[string]domain.AttendanceSession, len(c.sessions))
	for _, s := range c.sessions {
		local[s.ID] = s
	}
	fetchedSession := make(map[string]bool, len(sessions))
	for i := range sessions {
		fetchedSession[sessions[i].ID] = true
		prev, ok := local[sessions[i].ID]
		if !ok {
			continue
		}
		for studentID, r := range prev.Records {
			if queued[recordKey(sessions[i].ID, studentID)] {
				sessions[i].PutRecord(r)
			}
		}
	}
	for _, s := range c.sessions {
		if fetchedSession[s.ID] {
			continue
		}
		// Sessions outside the reload window stay; sessions of classes
		// deleted elsewhere go.
		if s.Pending() || fetchedClass[s.ClassID] || c.temps[s.ClassID] {
			sessions = append(sessions, s)
		}
	}

	if err := c.cache.SaveClasses(ctx, classes); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := c.cache.SaveSessions(ctx, sessions); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	c.classes = classes
	c.sessions = sessions
	c.logger.Info("reloaded from remote", "classes", len(classes), "sessions", len(sessions))
	return nil
}

// adoptCache replaces the in-memory state with the cache's.
func (c *Coordinator) adoptCache(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.cache.Load(ctx)
	c.classes = snap.Classes
	c.sessions = snap.Sessions
	c.setPendingLocked(snap.PendingActions)
}

func (c *Coordinator) reloadFailed(err error) error {
	c.mu.Lock()
	c.offline = true
	c.mu.Unlock()
	return fmt.Errorf("reload: %w", err)
}

func recordKey(sessionID, studentID string) string {
	return sessionID + "/" + studentID
}

// queuedRecords indexes the record writes still in the queue.
func queuedRecords(actions []domain.PendingAction) map[string]bool {
	out := make(map[string]bool)
	for _, a := range actions {
		if a.Type != domain.ActionRecordAttendance {
			continue
		}
		var p domain.RecordAttendancePayload
		if err := a.Decode(&p); err != nil {
			continue
		}
		out[recordKey(p.SessionID, p.StudentID)] = true
	}
	return out
}
