package cache

import (
	"context"
	"fmt"

	"github.com/roach88/rollbook/internal/domain"
)

// ReplaceSessionID swaps a temporarily-identified session for its resolved
// remote counterpart.
//
// In one atomic write it:
//   - replaces the cached session stored under tempID with resolved, keeping
//     any locally captured records (re-pointed at resolved.ID) that the
//     resolved session does not already carry
//   - drops any other cached copy of resolved.ID so the session appears once
//   - rewrites every pending-action reference from tempID to resolved.ID
func (c *Cache) ReplaceSessionID(ctx context.Context, tempID string, resolved domain.AttendanceSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	merged := resolved.Clone()
	merged.Meta = nil

	sessions, err := c.readSessions(ctx)
	if err != nil {
		return fmt.Errorf("replace session id: %w", err)
	}
	actions, err := c.readActions(ctx)
	if err != nil {
		return fmt.Errorf("replace session id: %w", err)
	}
	out := make([]domain.AttendanceSession, 0, len(sessions)+1)
	placed := false
	for _, s := range sessions {
		switch {
		case s.ID == tempID:
			for _, r := range s.Records {
				if _, ok := merged.Records[r.StudentID]; ok {
					continue
				}
				r.SessionID = merged.ID
				merged.PutRecord(r)
			}
			if !placed {
				out = append(out, merged)
				placed = true
			}
		case s.ID == merged.ID:
			// A reload may have cached the resolved session already.
			for _, r := range s.Records {
				if _, ok := merged.Records[r.StudentID]; !ok {
					merged.PutRecord(r)
				}
			}
			if !placed {
				out = append(out, merged)
				placed = true
			}
		default:
			out = append(out, s)
		}
	}
	if !placed {
		out = append(out, merged)
	}
	// merged may have gained records after it was appended.
	for i := range out {
		if out[i].ID == merged.ID {
			out[i] = merged
		}
	}

	actions = rewriteActions(actions, tempID, merged.ID)
	return c.writeRemap(ctx, "replace session id", nil, out, actions)
}

// ReplaceClassID swaps a temporarily-identified class for its resolved
// remote counterpart, re-pointing students, sessions, records and pending
// actions in one atomic write. The local roster is kept.
func (c *Cache) ReplaceClassID(ctx context.Context, tempID string, resolved domain.ClassRoom) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	classes, sessions, actions, err := c.readAll(ctx)
	if err != nil {
		return fmt.Errorf("replace class id: %w", err)
	}
	out := make([]domain.ClassRoom, 0, len(classes)+1)
	placed := false
	for _, cl := range classes {
		if cl.ID != tempID && cl.ID != resolved.ID {
			out = append(out, cl)
			continue
		}
		if placed {
			continue
		}
		merged := resolved.Clone()
		if len(merged.Students) == 0 {
			merged.Students = make([]domain.Student, 0, len(cl.Students))
			for _, s := range cl.Students {
				s.ClassID = resolved.ID
				merged.Students = append(merged.Students, s)
			}
		}
		out = append(out, merged)
		placed = true
	}
	if !placed {
		out = append(out, resolved.Clone())
	}

	for i := range sessions {
		if sessions[i].ClassID == tempID {
			sessions[i].ClassID = resolved.ID
		}
		for sid, r := range sessions[i].Records {
			if r.ClassID == tempID {
				r.ClassID = resolved.ID
				sessions[i].Records[sid] = r
			}
		}
	}

	actions = rewriteActions(actions, tempID, resolved.ID)
	return c.writeRemap(ctx, "replace class id", out, sessions, actions)
}

// ReplaceStudentID swaps a temporarily-identified student for its resolved
// remote counterpart across rosters, session records and pending actions.
func (c *Cache) ReplaceStudentID(ctx context.Context, tempID string, resolved domain.Student) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	classes, sessions, actions, err := c.readAll(ctx)
	if err != nil {
		return fmt.Errorf("replace student id: %w", err)
	}
	for i := range classes {
		for j := range classes[i].Students {
			if classes[i].Students[j].ID == tempID {
				classes[i].Students[j] = resolved
			}
		}
	}

	for i := range sessions {
		r, ok := sessions[i].Records[tempID]
		if !ok {
			continue
		}
		delete(sessions[i].Records, tempID)
		r.StudentID = resolved.ID
		if _, exists := sessions[i].Records[resolved.ID]; !exists {
			sessions[i].PutRecord(r)
		}
	}

	actions = rewriteActions(actions, tempID, resolved.ID)
	return c.writeRemap(ctx, "replace student id", classes, sessions, actions)
}

func (c *Cache) readAll(ctx context.Context) ([]domain.ClassRoom, []domain.AttendanceSession, []domain.PendingAction, error) {
	classes, err := c.readClasses(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	sessions, err := c.readSessions(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	actions, err := c.readActions(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	return classes, sessions, actions, nil
}

// writeRemap persists the given documents in one SetMany. A nil classes
// slice leaves the classes document untouched.
func (c *Cache) writeRemap(
	ctx context.Context,
	op string,
	classes []domain.ClassRoom,
	sessions []domain.AttendanceSession,
	actions []domain.PendingAction,
) error {
	entries := make(map[string]string, 3)

	if classes != nil {
		data, err := encodeClasses(classes)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		entries[KeyClasses] = data
	}

	data, err := encodeSessions(sessions)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	entries[KeySessions] = data

	data, err = encodeActions(actions)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	entries[KeyPending] = data

	if err := c.kv.SetMany(ctx, entries); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func rewriteActions(actions []domain.PendingAction, from, to string) []domain.PendingAction {
	for i, a := range actions {
		if out, changed := a.RewriteRefs(from, to); changed {
			actions[i] = out
		}
	}
	return actions
}
