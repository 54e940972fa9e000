package coordinator

import (
	"context"
	"fmt"

	"github.com/roach88/rollbook/internal/domain"
	"github.com/roach88/rollbook/internal/remote"
)

// CreateSession opens an attendance session for a class on a date.
func (c *Coordinator) CreateSession(ctx context.Context, classID, date string) (Result[domain.AttendanceSession], error) {
	const op = "create session"
	if err := domain.Validate(domain.SessionInput{ClassID: classID, Date: date}); err != nil {
		c.count(op, outcomeRejected)
		return Result[domain.AttendanceSession]{}, fmt.Errorf("%s: %w", op, err)
	}

	var confirmed domain.AttendanceSession
	sent, err := c.attempt(ctx, op, []string{classID}, func(ctx context.Context) error {
		s, err := c.remote.CreateSession(ctx, classID, date)
		confirmed = s
		return err
	})
	if err != nil {
		return Result[domain.AttendanceSession]{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res := Result[domain.AttendanceSession]{Value: confirmed, State: Confirmed}
	if !sent {
		temp := c.gen.NewID()
		res.Value = domain.AttendanceSession{
			ID:        temp,
			ClassID:   classID,
			Date:      date,
			CreatedAt: c.clock.Now(),
			Records:   map[string]domain.AttendanceRecord{},
			Meta:      &domain.SessionMeta{TempID: temp},
		}
		res.State = Optimistic
	}
	if res.Value.Records == nil {
		res.Value.Records = map[string]domain.AttendanceRecord{}
	}

	if err := c.cache.UpsertSession(ctx, res.Value); err != nil {
		return Result[domain.AttendanceSession]{}, fmt.Errorf("%s: %w", op, err)
	}
	if !sent {
		id, err := c.enqueueLocked(ctx, domain.ActionCreateSession, domain.CreateSessionPayload{
			TempID:  res.Value.ID,
			ClassID: classID,
			Date:    date,
		})
		if err != nil {
			return Result[domain.AttendanceSession]{}, fmt.Errorf("%s: %w", op, err)
		}
		res.PendingActionID = id
	}
	if i := c.sessionIndexLocked(res.Value.ID); i >= 0 {
		c.sessions[i] = res.Value.Clone()
	} else {
		c.sessions = append(c.sessions, res.Value.Clone())
	}
	c.count(op, string(res.State))
	return res, nil
}

// RecordAttendance sets a student's status in a session, replacing any
// earlier record for the student. A session the coordinator does not hold
// makes the call a no-op with a Skipped result.
func (c *Coordinator) RecordAttendance(ctx context.Context, sessionID, studentID, classID string, status domain.Status) (Result[domain.AttendanceRecord], error) {
	const op = "record attendance"
	if err := domain.Validate(domain.RecordInput{
		SessionID: sessionID,
		StudentID: studentID,
		ClassID:   classID,
		Status:    status,
	}); err != nil {
		c.count(op, outcomeRejected)
		return Result[domain.AttendanceRecord]{}, fmt.Errorf("%s: %w", op, err)
	}

	c.mu.Lock()
	known := c.sessionIndexLocked(sessionID) >= 0
	c.mu.Unlock()
	if !known {
		c.logger.Debug("ignoring record for unknown session", "session", sessionID)
		c.count(op, string(Skipped))
		return Result[domain.AttendanceRecord]{State: Skipped}, nil
	}

	takenAt := c.clock.Now()
	var confirmed domain.AttendanceRecord
	sent, err := c.attempt(ctx, op, []string{sessionID, studentID, classID}, func(ctx context.Context) error {
		r, err := c.remote.RecordAttendance(ctx, remote.RecordRequest{
			SessionID: sessionID,
			StudentID: studentID,
			ClassID:   classID,
			Status:    status,
			TakenAt:   takenAt,
		})
		confirmed = r
		return err
	})
	if err != nil {
		return Result[domain.AttendanceRecord]{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res := Result[domain.AttendanceRecord]{Value: confirmed, State: Confirmed}
	if !sent {
		res.Value = domain.AttendanceRecord{
			ID:        c.gen.NewID(),
			StudentID: studentID,
			ClassID:   classID,
			SessionID: sessionID,
			Status:    status,
			TakenAt:   takenAt,
			CreatedAt: takenAt,
		}
		res.State = Optimistic
	}

	if err := c.cache.UpdateRecord(ctx, sessionID, res.Value); err != nil {
		return Result[domain.AttendanceRecord]{}, fmt.Errorf("%s: %w", op, err)
	}
	if !sent {
		id, err := c.enqueueLocked(ctx, domain.ActionRecordAttendance, domain.RecordAttendancePayload{
			SessionID: sessionID,
			StudentID: studentID,
			ClassID:   classID,
			Status:    status,
			TakenAt:   takenAt,
		})
		if err != nil {
			return Result[domain.AttendanceRecord]{}, fmt.Errorf("%s: %w", op, err)
		}
		res.PendingActionID = id
	}
	if i := c.sessionIndexLocked(sessionID); i >= 0 {
		c.sessions[i].PutRecord(res.Value)
	}
	c.count(op, string(res.State))
	return res, nil
}
