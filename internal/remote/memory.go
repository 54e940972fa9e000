package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/rollbook/internal/domain"
)

// Call records one operation received by Memory.
type Call struct {
	Op   string
	Args []string
}

// Fault decides whether a call fails. Returning nil lets it proceed.
type Fault func(call Call) error

// Memory is an in-process system of record.
//
// It enforces the same contract a real backend does: referenced entities
// must exist, inputs are validated, and RecordAttendance is idempotent per
// (session, student). Every call is logged so tests can assert on exactly
// what the remote received.
//
// Thread-safety: safe for concurrent use.
type Memory struct {
	mu    sync.Mutex
	gen   domain.IDGenerator
	clock domain.Clock

	teachers map[string]domain.Teacher
	classes  map[string]domain.ClassRoom
	sessions map[string]domain.AttendanceSession

	calls       []Call
	unavailable bool
	fault       Fault
}

// NewMemory creates an empty system of record.
func NewMemory(gen domain.IDGenerator, clock domain.Clock) *Memory {
	return &Memory{
		gen:      gen,
		clock:    clock,
		teachers: make(map[string]domain.Teacher),
		classes:  make(map[string]domain.ClassRoom),
		sessions: make(map[string]domain.AttendanceSession),
	}
}

// SetAvailable toggles a simulated outage. While unavailable every call
// fails with CodeUnavailable and is still logged.
func (m *Memory) SetAvailable(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = !ok
}

// InjectFault installs f, replacing any previous fault. Pass nil to clear.
func (m *Memory) InjectFault(f Fault) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = f
}

// Calls returns a copy of the call log.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// ResetCalls clears the call log.
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// begin logs the call and applies outage and fault injection.
// Caller must hold m.mu.
func (m *Memory) begin(ctx context.Context, op string, args ...string) error {
	call := Call{Op: op, Args: args}
	m.calls = append(m.calls, call)
	if err := ctx.Err(); err != nil {
		return WrapError(CodeTimeout, op, err)
	}
	if m.unavailable {
		return NewError(CodeUnavailable, op, "remote unreachable")
	}
	if m.fault != nil {
		if err := m.fault(call); err != nil {
			return err
		}
	}
	return nil
}

// UpsertTeacher stores t, keeping the original creation time on refresh.
func (m *Memory) UpsertTeacher(ctx context.Context, t domain.Teacher) (domain.Teacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	const op = "upsert teacher"
	if err := m.begin(ctx, op, t.ID); err != nil {
		return domain.Teacher{}, err
	}
	if err := domain.Validate(t); err != nil {
		return domain.Teacher{}, WrapError(CodeInvalid, op, err)
	}
	if prev, ok := m.teachers[t.ID]; ok {
		t.CreatedAt = prev.CreatedAt
	} else if t.CreatedAt.IsZero() {
		t.CreatedAt = m.clock.Now()
	}
	m.teachers[t.ID] = t
	return t, nil
}

// ListClasses returns the teacher's classes oldest first.
func (m *Memory) ListClasses(ctx context.Context, teacherID string) ([]domain.ClassRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "list classes", teacherID); err != nil {
		return nil, err
	}
	out := []domain.ClassRoom{}
	for _, c := range m.classes {
		if c.TeacherID == teacherID {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CreateClass creates a class with an empty roster.
func (m *Memory) CreateClass(ctx context.Context, teacherID string, in domain.ClassInput) (domain.ClassRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	const op = "create class"
	if err := m.begin(ctx, op, teacherID, in.Name); err != nil {
		return domain.ClassRoom{}, err
	}
	if err := domain.Validate(in); err != nil {
		return domain.ClassRoom{}, WrapError(CodeInvalid, op, err)
	}
	if teacherID == "" {
		return domain.ClassRoom{}, NewError(CodeInvalid, op, "teacher id required")
	}
	c := domain.ClassRoom{
		ID:        m.gen.NewID(),
		Name:      domain.NormalizeName(in.Name),
		Section:   in.Section,
		TeacherID: teacherID,
		Students:  []domain.Student{},
		CreatedAt: m.clock.Now(),
	}
	m.classes[c.ID] = c
	return c.Clone(), nil
}

// UpdateClass renames a class.
func (m *Memory) UpdateClass(ctx context.Context, classID string, in domain.ClassInput) (domain.ClassRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	const op = "update class"
	if err := m.begin(ctx, op, classID, in.Name); err != nil {
		return domain.ClassRoom{}, err
	}
	if err := domain.Validate(in); err != nil {
		return domain.ClassRoom{}, WrapError(CodeInvalid, op, err)
	}
	c, ok := m.classes[classID]
	if !ok {
		return domain.ClassRoom{}, NewError(CodeNotFound, op, fmt.Sprintf("class %s", classID))
	}
	c.Name = domain.NormalizeName(in.Name)
	c.Section = in.Section
	m.classes[classID] = c
	return c.Clone(), nil
}

// DeleteClass removes a class with its students and sessions.
func (m *Memory) DeleteClass(ctx context.Context, classID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	const op = "delete class"
	if err := m.begin(ctx, op, classID); err != nil {
		return err
	}
	if _, ok := m.classes[classID]; !ok {
		return NewError(CodeNotFound, op, fmt.Sprintf("class %s", classID))
	}
	delete(m.classes, classID)
	for id, s := range m.sessions {
		if s.ClassID == classID {
			delete(m.sessions, id)
		}
	}
	return nil
}

// CreateStudent appends a student to a class roster.
func (m *Memory) CreateStudent(ctx context.Context, in domain.StudentInput) (domain.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	const op = "create student"
	if err := m.begin(ctx, op, in.ClassID, in.Name); err != nil {
		return domain.Student{}, err
	}
	if err := domain.Validate(in); err != nil {
		return domain.Student{}, WrapError(CodeInvalid, op, err)
	}
	c, ok := m.classes[in.ClassID]
	if !ok {
		return domain.Student{}, NewError(CodeNotFound, op, fmt.Sprintf("class %s", in.ClassID))
	}
	s := domain.Student{
		ID:        m.gen.NewID(),
		Name:      domain.NormalizeName(in.Name),
		ClassID:   c.ID,
		CreatedAt: m.clock.Now(),
	}
	c.Students = append(c.Students, s)
	m.classes[c.ID] = c
	return s, nil
}

// UpdateStudent renames a student.
func (m *Memory) UpdateStudent(ctx context.Context, studentID string, in domain.StudentInput) (domain.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	const op = "update student"
	if err := m.begin(ctx, op, studentID, in.Name); err != nil {
		return domain.Student{}, err
	}
	if err := domain.Validate(in); err != nil {
		return domain.Student{}, WrapError(CodeInvalid, op, err)
	}
	c, idx, ok := m.findStudent(studentID)
	if !ok {
		return domain.Student{}, NewError(CodeNotFound, op, fmt.Sprintf("student %s", studentID))
	}
	c.Students[idx].Name = domain.NormalizeName(in.Name)
	m.classes[c.ID] = c
	return c.Students[idx], nil
}

// DeleteStudent removes a student from its roster.
func (m *Memory) DeleteStudent(ctx context.Context, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	const op = "delete student"
	if err := m.begin(ctx, op, studentID); err != nil {
		return err
	}
	c, idx, ok := m.findStudent(studentID)
	if !ok {
		return NewError(CodeNotFound, op, fmt.Sprintf("student %s", studentID))
	}
	c.Students = append(c.Students[:idx:idx], c.Students[idx+1:]...)
	m.classes[c.ID] = c
	return nil
}

// findStudent locates a student. Caller must hold m.mu.
func (m *Memory) findStudent(studentID string) (domain.ClassRoom, int, bool) {
	for _, c := range m.classes {
		for i, s := range c.Students {
			if s.ID == studentID {
				return c.Clone(), i, true
			}
		}
	}
	return domain.ClassRoom{}, 0, false
}

// CreateSession opens a new session for a class on a date.
func (m *Memory) CreateSession(ctx context.Context, classID, date string) (domain.AttendanceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	const op = "create session"
	if err := m.begin(ctx, op, classID, date); err != nil {
		return domain.AttendanceSession{}, err
	}
	if err := domain.Validate(domain.SessionInput{ClassID: classID, Date: date}); err != nil {
		return domain.AttendanceSession{}, WrapError(CodeInvalid, op, err)
	}
	if _, ok := m.classes[classID]; !ok {
		return domain.AttendanceSession{}, NewError(CodeNotFound, op, fmt.Sprintf("class %s", classID))
	}
	s := domain.AttendanceSession{
		ID:        m.gen.NewID(),
		ClassID:   classID,
		Date:      date,
		CreatedAt: m.clock.Now(),
		Records:   map[string]domain.AttendanceRecord{},
	}
	m.sessions[s.ID] = s
	return s.Clone(), nil
}

// RecordAttendance creates or updates the record for (session, student).
func (m *Memory) RecordAttendance(ctx context.Context, req RecordRequest) (domain.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	const op = "record attendance"
	if err := m.begin(ctx, op, req.SessionID, req.StudentID, string(req.Status)); err != nil {
		return domain.AttendanceRecord{}, err
	}
	if err := domain.Validate(domain.RecordInput{
		SessionID: req.SessionID,
		StudentID: req.StudentID,
		ClassID:   req.ClassID,
		Status:    req.Status,
	}); err != nil {
		return domain.AttendanceRecord{}, WrapError(CodeInvalid, op, err)
	}
	s, ok := m.sessions[req.SessionID]
	if !ok {
		return domain.AttendanceRecord{}, NewError(CodeNotFound, op, fmt.Sprintf("session %s", req.SessionID))
	}
	if c, ok := m.classes[s.ClassID]; !ok {
		return domain.AttendanceRecord{}, NewError(CodeNotFound, op, fmt.Sprintf("class %s", s.ClassID))
	} else if _, ok := c.Student(req.StudentID); !ok {
		return domain.AttendanceRecord{}, NewError(CodeNotFound, op, fmt.Sprintf("student %s", req.StudentID))
	}

	now := m.clock.Now()
	takenAt := req.TakenAt
	if takenAt.IsZero() {
		takenAt = now
	}

	r, exists := s.Records[req.StudentID]
	if exists {
		r.Status = req.Status
		r.TakenAt = takenAt
	} else {
		r = domain.AttendanceRecord{
			ID:        m.gen.NewID(),
			StudentID: req.StudentID,
			ClassID:   s.ClassID,
			SessionID: s.ID,
			Status:    req.Status,
			TakenAt:   takenAt,
			CreatedAt: now,
		}
	}
	s.PutRecord(r)
	m.sessions[s.ID] = s
	return r, nil
}

// SessionsByClass returns a class's sessions, newest date first.
// limit <= 0 returns all of them.
func (m *Memory) SessionsByClass(ctx context.Context, classID string, limit int) ([]domain.AttendanceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "sessions by class", classID); err != nil {
		return nil, err
	}
	out := []domain.AttendanceSession{}
	for _, s := range m.sessions {
		if s.ClassID == classID {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Session returns a stored session. For tests and diagnostics; not part
// of Remote.
func (m *Memory) Session(id string) (domain.AttendanceSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s.Clone(), ok
}

// SessionCount returns the number of stored sessions.
func (m *Memory) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

var _ Remote = (*Memory)(nil)
