package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/rollbook/internal/coordinator"
	"github.com/roach88/rollbook/internal/domain"
)

// Phase is the machine's state.
type Phase string

const (
	NotStarted Phase = "not_started"
	Starting   Phase = "starting"
	InProgress Phase = "in_progress"
	Recording  Phase = "recording"
	Completing Phase = "completing"
	Completed  Phase = "completed"
)

// Outcome tells the caller whether a transition happened. Rejected
// transitions change nothing.
type Outcome string

const (
	Accepted Outcome = "accepted"
	Rejected Outcome = "rejected"
)

// ErrSessionGone is returned when the coordinator no longer holds the
// session being captured.
var ErrSessionGone = errors.New("capture session no longer exists")

// Recorder is the part of the coordinator the machine drives.
type Recorder interface {
	CreateSession(ctx context.Context, classID, date string) (coordinator.Result[domain.AttendanceSession], error)
	RecordAttendance(ctx context.Context, sessionID, studentID, classID string, status domain.Status) (coordinator.Result[domain.AttendanceRecord], error)
	SessionFor(classID, date string) (domain.AttendanceSession, bool)
}

// Summary is derived from the recorded statuses only.
type Summary struct {
	Present    int
	Absent     int
	Recorded   int
	RosterSize int

	// Missing lists roster students without a status, in roster order.
	Missing []domain.Student
}

// Complete reports whether every roster student has a status.
func (s Summary) Complete() bool {
	return len(s.Missing) == 0
}

// View is a copy of the machine's state.
type View struct {
	Phase     Phase
	Date      string
	SessionID string
	Cursor    int

	// Current is the student at the cursor while capture is in progress.
	Current *domain.Student

	Statuses map[string]domain.Status
	Summary  Summary

	// Incomplete is set while a partial roster awaits Acknowledge.
	Incomplete bool
}

// Machine captures attendance for one class.
//
// Thread-safety: safe for concurrent use. Transitions that wait on the
// coordinator hold an intermediate phase (Starting, Recording) instead of
// the lock, so concurrent calls are rejected rather than queued.
type Machine struct {
	rec    Recorder
	class  domain.ClassRoom
	logger *slog.Logger

	mu         sync.Mutex
	phase      Phase
	date       string
	sessionID  string
	cursor     int
	statuses   map[string]domain.Status
	incomplete bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = l
	}
}

// New creates a machine for class. The roster is class.Students in order.
func New(rec Recorder, class domain.ClassRoom, opts ...Option) *Machine {
	m := &Machine{
		rec:      rec,
		class:    class.Clone(),
		logger:   slog.Default(),
		phase:    NotStarted,
		statuses: make(map[string]domain.Status),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Attach (re)attaches the machine to the class on date, resuming from any
// existing session:
//   - every roster student recorded: Completed
//   - some recorded: InProgress with the cursor after the recorded ones
//   - otherwise: NotStarted
//
// Attach is rejected while a transition is in flight and once the machine
// is Completed for date; a completed capture is only left via StartNew.
func (m *Machine) Attach(ctx context.Context, date string) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.phase {
	case Starting, Recording, Completing:
		return m.reject("attach")
	case Completed:
		if m.date == date {
			return m.reject("attach")
		}
	}

	m.date = date
	m.incomplete = false
	session, ok := m.rec.SessionFor(m.class.ID, date)
	if !ok {
		m.resetLocked()
		return Accepted
	}

	statuses := make(map[string]domain.Status)
	for _, st := range m.class.Students {
		if r, ok := session.Records[st.ID]; ok {
			statuses[st.ID] = r.Status
		}
	}
	recorded, size := len(statuses), len(m.class.Students)

	switch {
	case size > 0 && recorded >= size:
		m.phase = Completed
		m.cursor = size
	case recorded > 0:
		m.phase = InProgress
		m.cursor = recorded
	default:
		m.resetLocked()
		return Accepted
	}
	m.sessionID = session.ID
	m.statuses = statuses
	m.logger.Debug("capture attached", "class", m.class.ID, "date", date, "phase", m.phase, "cursor", m.cursor)
	return Accepted
}

// Start creates the session for date and begins at the first student.
func (m *Machine) Start(ctx context.Context, date string) (Outcome, error) {
	m.mu.Lock()
	if m.phase != NotStarted {
		defer m.mu.Unlock()
		return m.reject("start"), nil
	}
	m.phase = Starting
	m.mu.Unlock()

	res, err := m.rec.CreateSession(ctx, m.class.ID, date)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.phase = NotStarted
		return Rejected, fmt.Errorf("start capture: %w", err)
	}
	m.phase = InProgress
	m.date = date
	m.sessionID = res.Value.ID
	m.cursor = 0
	m.statuses = make(map[string]domain.Status)
	m.incomplete = false
	m.logger.Info("capture started",
		"class", m.class.ID,
		"session", m.sessionID,
		"optimistic", res.Optimistic())
	return Accepted, nil
}

// Record sets the status of the student at the cursor and advances. The
// last student completes the capture. On error the cursor stays put so the
// same student can be retried.
func (m *Machine) Record(ctx context.Context, status domain.Status) (Outcome, error) {
	m.mu.Lock()
	if m.phase != InProgress || m.cursor >= len(m.class.Students) {
		defer m.mu.Unlock()
		return m.reject("record"), nil
	}
	m.phase = Recording
	// Captured before the coordinator call; the cursor may not move under us.
	idx := m.cursor
	student := m.class.Students[idx]
	sessionID, date := m.sessionID, m.date
	m.mu.Unlock()

	res, err := m.rec.RecordAttendance(ctx, sessionID, student.ID, m.class.ID, status)
	resolved := ""
	if err == nil && res.State == coordinator.Skipped {
		// A sync may have replaced a temporary session id with the remote one.
		if s, ok := m.rec.SessionFor(m.class.ID, date); ok && s.ID != sessionID {
			resolved = s.ID
			res, err = m.rec.RecordAttendance(ctx, resolved, student.ID, m.class.ID, status)
		}
		if err == nil && res.State == coordinator.Skipped {
			err = ErrSessionGone
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if resolved != "" && !errors.Is(err, ErrSessionGone) {
		m.logger.Debug("capture session re-resolved", "from", sessionID, "to", resolved)
		m.sessionID = resolved
	}
	if err != nil {
		m.phase = InProgress
		return Rejected, fmt.Errorf("record %s: %w", student.ID, err)
	}
	m.statuses[student.ID] = status

	if idx+1 >= len(m.class.Students) {
		// Completing is entered before Recording is left.
		m.phase = Completing
		m.completeLocked()
		return Accepted, nil
	}
	m.cursor = idx + 1
	m.phase = InProgress
	return Accepted, nil
}

// Finish completes the capture early. A partial roster leaves the machine
// Completing until Acknowledge. A second completion is rejected.
func (m *Machine) Finish(ctx context.Context) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != InProgress {
		return m.reject("finish")
	}
	m.phase = Completing
	m.completeLocked()
	return Accepted
}

// Acknowledge accepts an incomplete-roster warning and completes.
func (m *Machine) Acknowledge() Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != Completing || !m.incomplete {
		return m.reject("acknowledge")
	}
	m.incomplete = false
	m.phase = Completed
	m.logger.Info("capture completed with partial roster", "class", m.class.ID, "session", m.sessionID)
	return Accepted
}

// StartNew leaves a completed capture and starts a fresh one for date.
func (m *Machine) StartNew(ctx context.Context, date string) (Outcome, error) {
	m.mu.Lock()
	if m.phase != Completed {
		defer m.mu.Unlock()
		return m.reject("start new"), nil
	}
	m.resetLocked()
	m.mu.Unlock()
	return m.Start(ctx, date)
}

// Snapshot returns a copy of the machine's state.
func (m *Machine) Snapshot() View {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := View{
		Phase:      m.phase,
		Date:       m.date,
		SessionID:  m.sessionID,
		Cursor:     m.cursor,
		Statuses:   make(map[string]domain.Status, len(m.statuses)),
		Summary:    m.summaryLocked(),
		Incomplete: m.incomplete,
	}
	for k, s := range m.statuses {
		v.Statuses[k] = s
	}
	if (m.phase == InProgress || m.phase == Recording) && m.cursor < len(m.class.Students) {
		st := m.class.Students[m.cursor]
		v.Current = &st
	}
	return v
}

// completeLocked finishes a Completing transition. A full roster goes
// straight to Completed; a partial one waits for Acknowledge.
func (m *Machine) completeLocked() {
	sum := m.summaryLocked()
	if !sum.Complete() {
		m.incomplete = true
		names := make([]string, 0, len(sum.Missing))
		for _, st := range sum.Missing {
			names = append(names, st.Name)
		}
		m.logger.Warn("incomplete roster", "class", m.class.ID, "session", m.sessionID, "missing", names)
		return
	}
	m.phase = Completed
	m.logger.Info("capture completed",
		"class", m.class.ID,
		"session", m.sessionID,
		"present", sum.Present,
		"absent", sum.Absent)
}

func (m *Machine) summaryLocked() Summary {
	sum := Summary{RosterSize: len(m.class.Students)}
	for _, st := range m.class.Students {
		status, ok := m.statuses[st.ID]
		if !ok {
			sum.Missing = append(sum.Missing, st)
			continue
		}
		sum.Recorded++
		switch status {
		case domain.StatusPresent:
			sum.Present++
		case domain.StatusAbsent:
			sum.Absent++
		}
	}
	return sum
}

func (m *Machine) resetLocked() {
	m.phase = NotStarted
	m.sessionID = ""
	m.cursor = 0
	m.statuses = make(map[string]domain.Status)
	m.incomplete = false
}

func (m *Machine) reject(op string) Outcome {
	m.logger.Debug("capture transition rejected", "op", op, "phase", m.phase)
	return Rejected
}
