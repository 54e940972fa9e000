package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/rollbook/internal/cache"
	"github.com/roach88/rollbook/internal/domain"
	"github.com/roach88/rollbook/internal/remote"
)

// outcome is what a handler resolved. tempID is set when the action
// created an entity under a temporary id.
type outcome struct {
	tempID     string
	resolvedID string
}

// localError marks a failure that happened after the remote confirmed the
// action. The action is consumed regardless, or replay would duplicate it.
type localError struct {
	err error
}

func (e *localError) Error() string { return e.err.Error() }

func (e *localError) Unwrap() error { return e.err }

func local(err error) error {
	if err == nil {
		return nil
	}
	return &localError{err: err}
}

// handler sends one action to the remote and applies the result locally.
type handler func(ctx context.Context, r *Reconciler, a domain.PendingAction) (outcome, error)

var handlers = map[domain.ActionType]handler{
	domain.ActionCreateSession:    createSession,
	domain.ActionRecordAttendance: recordAttendance,
	domain.ActionCreateClass:      createClass,
	domain.ActionUpdateClass:      updateClass,
	domain.ActionDeleteClass:      deleteClass,
	domain.ActionCreateStudent:    createStudent,
	domain.ActionUpdateStudent:    updateStudent,
	domain.ActionDeleteStudent:    deleteStudent,
}

// decodeFailed is an undecodable payload. It is permanent: no retry can
// repair it.
func decodeFailed(a domain.PendingAction, err error) error {
	return remote.WrapError(remote.CodeInvalid, string(a.Type), err)
}

func createSession(ctx context.Context, r *Reconciler, a domain.PendingAction) (outcome, error) {
	var p domain.CreateSessionPayload
	if err := a.Decode(&p); err != nil {
		return outcome{}, decodeFailed(a, err)
	}
	s, err := r.remote.CreateSession(ctx, p.ClassID, p.Date)
	if err != nil {
		return outcome{}, err
	}
	out := outcome{tempID: p.TempID, resolvedID: s.ID}
	if p.TempID == "" {
		return out, local(r.cache.UpsertSession(ctx, s))
	}
	return out, local(r.cache.ReplaceSessionID(ctx, p.TempID, s))
}

func recordAttendance(ctx context.Context, r *Reconciler, a domain.PendingAction) (outcome, error) {
	var p domain.RecordAttendancePayload
	if err := a.Decode(&p); err != nil {
		return outcome{}, decodeFailed(a, err)
	}
	rec, err := r.remote.RecordAttendance(ctx, remote.RecordRequest{
		SessionID: p.SessionID,
		StudentID: p.StudentID,
		ClassID:   p.ClassID,
		Status:    p.Status,
		TakenAt:   p.TakenAt,
	})
	if err != nil {
		return outcome{}, err
	}
	err = r.cache.UpdateRecord(ctx, p.SessionID, rec)
	if errors.Is(err, cache.ErrSessionNotFound) {
		r.logger.Debug("confirmed record for uncached session", "session", p.SessionID)
		err = nil
	}
	return outcome{}, local(err)
}

func createClass(ctx context.Context, r *Reconciler, a domain.PendingAction) (outcome, error) {
	var p domain.ClassPayload
	if err := a.Decode(&p); err != nil {
		return outcome{}, decodeFailed(a, err)
	}
	c, err := r.remote.CreateClass(ctx, p.TeacherID, domain.ClassInput{Name: p.Name, Section: p.Section})
	if err != nil {
		return outcome{}, err
	}
	out := outcome{tempID: p.TempID, resolvedID: c.ID}
	if p.TempID == "" {
		return out, local(r.cache.UpsertClass(ctx, c))
	}
	return out, local(r.cache.ReplaceClassID(ctx, p.TempID, c))
}

func updateClass(ctx context.Context, r *Reconciler, a domain.PendingAction) (outcome, error) {
	var p domain.ClassPayload
	if err := a.Decode(&p); err != nil {
		return outcome{}, decodeFailed(a, err)
	}
	c, err := r.remote.UpdateClass(ctx, p.ClassID, domain.ClassInput{Name: p.Name, Section: p.Section})
	if err != nil {
		return outcome{}, err
	}
	// Keep the local roster; it may hold students still queued for creation.
	for _, cached := range r.cache.Classes(ctx) {
		if cached.ID == c.ID {
			cached.Name = c.Name
			cached.Section = c.Section
			return outcome{}, local(r.cache.UpsertClass(ctx, cached))
		}
	}
	return outcome{}, nil
}

func deleteClass(ctx context.Context, r *Reconciler, a domain.PendingAction) (outcome, error) {
	var p domain.ClassPayload
	if err := a.Decode(&p); err != nil {
		return outcome{}, decodeFailed(a, err)
	}
	if err := r.remote.DeleteClass(ctx, p.ClassID); err != nil && remote.CodeOf(err) != remote.CodeNotFound {
		return outcome{}, err
	}
	return outcome{}, local(r.cache.DeleteClass(ctx, p.ClassID))
}

func createStudent(ctx context.Context, r *Reconciler, a domain.PendingAction) (outcome, error) {
	var p domain.StudentPayload
	if err := a.Decode(&p); err != nil {
		return outcome{}, decodeFailed(a, err)
	}
	s, err := r.remote.CreateStudent(ctx, domain.StudentInput{ClassID: p.ClassID, Name: p.Name})
	if err != nil {
		return outcome{}, err
	}
	out := outcome{tempID: p.TempID, resolvedID: s.ID}
	if p.TempID == "" {
		return out, nil
	}
	return out, local(r.cache.ReplaceStudentID(ctx, p.TempID, s))
}

func updateStudent(ctx context.Context, r *Reconciler, a domain.PendingAction) (outcome, error) {
	var p domain.StudentPayload
	if err := a.Decode(&p); err != nil {
		return outcome{}, decodeFailed(a, err)
	}
	s, err := r.remote.UpdateStudent(ctx, p.StudentID, domain.StudentInput{ClassID: p.ClassID, Name: p.Name})
	if err != nil {
		return outcome{}, err
	}
	return outcome{}, local(r.rewriteStudent(ctx, s.ID, func(st *domain.Student) bool {
		st.Name = s.Name
		return true
	}))
}

func deleteStudent(ctx context.Context, r *Reconciler, a domain.PendingAction) (outcome, error) {
	var p domain.StudentPayload
	if err := a.Decode(&p); err != nil {
		return outcome{}, decodeFailed(a, err)
	}
	if err := r.remote.DeleteStudent(ctx, p.StudentID); err != nil && remote.CodeOf(err) != remote.CodeNotFound {
		return outcome{}, err
	}
	return outcome{}, local(r.rewriteStudent(ctx, p.StudentID, func(*domain.Student) bool {
		return false
	}))
}

// rewriteStudent applies fn to the cached roster entry for id; fn returning
// false removes the entry.
func (r *Reconciler) rewriteStudent(ctx context.Context, id string, fn func(*domain.Student) bool) error {
	for _, c := range r.cache.Classes(ctx) {
		idx := -1
		for i := range c.Students {
			if c.Students[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		if fn(&c.Students[idx]) {
			return r.cache.UpsertClass(ctx, c)
		}
		c.Students = append(c.Students[:idx:idx], c.Students[idx+1:]...)
		if err := r.cache.UpsertClass(ctx, c); err != nil {
			return fmt.Errorf("remove student %s: %w", id, err)
		}
		return nil
	}
	return nil
}
