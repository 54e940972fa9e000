package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollbook/internal/cache"
	"github.com/roach88/rollbook/internal/coordinator"
	"github.com/roach88/rollbook/internal/domain"
	"github.com/roach88/rollbook/internal/reconcile"
	"github.com/roach88/rollbook/internal/remote"
	"github.com/roach88/rollbook/internal/store"
	"github.com/roach88/rollbook/internal/testutil"
)

const today = "2026-03-02"

type env struct {
	ctx    context.Context
	cache  *cache.Cache
	remote *remote.Memory
	coord  *coordinator.Coordinator
	class  domain.ClassRoom
}

func newEnv(t *testing.T, roster ...string) *env {
	t.Helper()
	ctx := context.Background()
	clock := testutil.NewManualClock(time.Time{})
	clock.AutoStep(time.Second)

	c := cache.New(store.NewMemory())
	rm := remote.NewMemory(testutil.NewSeqGenerator("srv"), clock)
	coord := coordinator.New(c, rm, reconcile.New(c, rm),
		coordinator.WithIDGenerator(testutil.NewSeqGenerator("tmp")),
		coordinator.WithClock(clock))
	coord.Hydrate(ctx)

	_, err := coord.SignIn(ctx, domain.Teacher{ID: "t1", Name: "Mina Kaya"})
	require.NoError(t, err)
	class, err := coord.CreateClass(ctx, domain.ClassInput{Name: "Grade 4"})
	require.NoError(t, err)
	for _, name := range roster {
		_, err := coord.AddStudent(ctx, domain.StudentInput{ClassID: class.Value.ID, Name: name})
		require.NoError(t, err)
	}
	cl, ok := coord.Class(class.Value.ID)
	require.True(t, ok)
	return &env{ctx: ctx, cache: c, remote: rm, coord: coord, class: cl}
}

// preRecord creates today's session and records the first n students.
func (e *env) preRecord(t *testing.T, n int) domain.AttendanceSession {
	t.Helper()
	s, err := e.coord.CreateSession(e.ctx, e.class.ID, today)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		status := domain.StatusPresent
		if i%2 == 1 {
			status = domain.StatusAbsent
		}
		_, err := e.coord.RecordAttendance(e.ctx, s.Value.ID, e.class.Students[i].ID, e.class.ID, status)
		require.NoError(t, err)
	}
	return s.Value
}

func TestScenario_ThreeStudentsOnline(t *testing.T) {
	e := newEnv(t, "Ayşe", "Omar", "Lina")
	m := New(e.coord, e.class)

	out, err := m.Start(e.ctx, today)
	require.NoError(t, err)
	assert.Equal(t, Accepted, out)
	v := m.Snapshot()
	assert.Equal(t, InProgress, v.Phase)
	assert.Equal(t, 0, v.Cursor)
	require.NotNil(t, v.Current)
	assert.Equal(t, "Ayşe", v.Current.Name)

	_, err = m.Record(e.ctx, domain.StatusPresent)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Snapshot().Cursor)

	_, err = m.Record(e.ctx, domain.StatusAbsent)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Snapshot().Cursor)

	_, err = m.Record(e.ctx, domain.StatusPresent)
	require.NoError(t, err)

	v = m.Snapshot()
	assert.Equal(t, Completed, v.Phase)
	assert.Nil(t, v.Current)
	assert.Equal(t, 2, v.Summary.Present)
	assert.Equal(t, 1, v.Summary.Absent)
	assert.True(t, v.Summary.Complete())

	sessions := e.cache.Sessions(e.ctx)
	require.Len(t, sessions, 1)
	assert.Len(t, sessions[0].Records, 3)
	assert.Empty(t, e.cache.PendingActions(e.ctx))

	stored, ok := e.remote.Session(v.SessionID)
	require.True(t, ok)
	assert.Len(t, stored.Records, 3)
}

func TestScenario_OfflineCaptureQueuesEverything(t *testing.T) {
	e := newEnv(t, "Ayşe", "Omar", "Lina")
	e.remote.SetAvailable(false)
	m := New(e.coord, e.class)

	_, err := m.Start(e.ctx, today)
	require.NoError(t, err)
	for _, st := range []domain.Status{domain.StatusPresent, domain.StatusAbsent, domain.StatusPresent} {
		_, err := m.Record(e.ctx, st)
		require.NoError(t, err)
	}

	v := m.Snapshot()
	assert.Equal(t, Completed, v.Phase)
	assert.Equal(t, 2, v.Summary.Present)
	assert.Equal(t, 4, e.coord.Status().Pending)
}

func TestScenario_ReconnectMidCaptureFollowsResolvedSession(t *testing.T) {
	e := newEnv(t, "Ayşe", "Omar", "Lina")
	e.remote.SetAvailable(false)
	m := New(e.coord, e.class)

	_, err := m.Start(e.ctx, today)
	require.NoError(t, err)
	tempID := m.Snapshot().SessionID
	out, err := m.Record(e.ctx, domain.StatusPresent)
	require.NoError(t, err)
	require.Equal(t, Accepted, out)

	e.remote.SetAvailable(true)
	require.NoError(t, e.coord.HandleConnectivity(e.ctx, true))
	require.Zero(t, e.coord.Status().Pending)

	out, err = m.Record(e.ctx, domain.StatusAbsent)
	require.NoError(t, err)
	assert.Equal(t, Accepted, out)

	v := m.Snapshot()
	assert.NotEqual(t, tempID, v.SessionID)
	assert.Equal(t, 2, v.Cursor)
	stored, ok := e.remote.Session(v.SessionID)
	require.True(t, ok)
	assert.Len(t, stored.Records, 2)
	assert.Equal(t, 1, e.remote.SessionCount())

	_, err = m.Record(e.ctx, domain.StatusPresent)
	require.NoError(t, err)
	assert.Equal(t, Completed, m.Snapshot().Phase)
}

func TestAttach_ResumesMidRoster(t *testing.T) {
	e := newEnv(t, "A", "B", "C", "D", "E")
	session := e.preRecord(t, 3)

	m := New(e.coord, e.class)
	assert.Equal(t, Accepted, m.Attach(e.ctx, today))

	v := m.Snapshot()
	assert.Equal(t, InProgress, v.Phase)
	assert.Equal(t, 3, v.Cursor)
	assert.Equal(t, session.ID, v.SessionID)
	assert.Len(t, v.Statuses, 3)
	require.NotNil(t, v.Current)
	assert.Equal(t, "D", v.Current.Name)
}

func TestAttach_FullRosterIsCompleted(t *testing.T) {
	e := newEnv(t, "A", "B", "C", "D", "E")
	e.preRecord(t, 5)

	m := New(e.coord, e.class)
	assert.Equal(t, Accepted, m.Attach(e.ctx, today))

	v := m.Snapshot()
	assert.Equal(t, Completed, v.Phase)
	assert.Equal(t, 5, v.Summary.Recorded)
	assert.Equal(t, 3, v.Summary.Present)
	assert.Equal(t, 2, v.Summary.Absent)

	// Terminal for the date: re-attaching does nothing
	assert.Equal(t, Rejected, m.Attach(e.ctx, today))
	assert.Equal(t, v, m.Snapshot())
}

func TestAttach_NoSessionIsNotStarted(t *testing.T) {
	e := newEnv(t, "A")
	m := New(e.coord, e.class)

	assert.Equal(t, Accepted, m.Attach(e.ctx, today))
	assert.Equal(t, NotStarted, m.Snapshot().Phase)
}

func TestCompletion_IsIdempotent(t *testing.T) {
	e := newEnv(t, "Ayşe", "Omar")
	m := New(e.coord, e.class)
	_, err := m.Start(e.ctx, today)
	require.NoError(t, err)
	_, err = m.Record(e.ctx, domain.StatusPresent)
	require.NoError(t, err)
	_, err = m.Record(e.ctx, domain.StatusAbsent)
	require.NoError(t, err)
	before := m.Snapshot()

	// Re-entrant completion attempts
	assert.Equal(t, Rejected, m.Finish(e.ctx))
	assert.Equal(t, Rejected, m.Finish(e.ctx))
	out, err := m.Record(e.ctx, domain.StatusPresent)
	require.NoError(t, err)
	assert.Equal(t, Rejected, out)
	assert.Equal(t, Rejected, m.Attach(e.ctx, today))

	assert.Equal(t, before, m.Snapshot())
	assert.Equal(t, 1, e.remote.SessionCount())
}

func TestPartialRoster_RequiresAcknowledge(t *testing.T) {
	e := newEnv(t, "Ayşe", "Omar", "Lina")
	m := New(e.coord, e.class)
	_, err := m.Start(e.ctx, today)
	require.NoError(t, err)
	_, err = m.Record(e.ctx, domain.StatusPresent)
	require.NoError(t, err)

	assert.Equal(t, Accepted, m.Finish(e.ctx))
	v := m.Snapshot()
	assert.Equal(t, Completing, v.Phase)
	assert.True(t, v.Incomplete)
	require.Len(t, v.Summary.Missing, 2)
	assert.Equal(t, "Omar", v.Summary.Missing[0].Name)
	assert.Equal(t, "Lina", v.Summary.Missing[1].Name)

	// Focus events while completing cannot reset the cursor
	assert.Equal(t, Rejected, m.Attach(e.ctx, today))
	assert.Equal(t, Rejected, m.Finish(e.ctx))
	assert.Equal(t, 1, m.Snapshot().Cursor)

	assert.Equal(t, Accepted, m.Acknowledge())
	assert.Equal(t, Completed, m.Snapshot().Phase)
	assert.Equal(t, Rejected, m.Acknowledge())
}

func TestStartNew_FreshSession(t *testing.T) {
	e := newEnv(t, "Ayşe")
	m := New(e.coord, e.class)
	_, err := m.Start(e.ctx, today)
	require.NoError(t, err)
	_, err = m.Record(e.ctx, domain.StatusPresent)
	require.NoError(t, err)
	first := m.Snapshot().SessionID

	out, err := m.Start(e.ctx, "2026-03-03")
	require.NoError(t, err)
	assert.Equal(t, Rejected, out, "start only from NotStarted")

	out, err = m.StartNew(e.ctx, "2026-03-03")
	require.NoError(t, err)
	assert.Equal(t, Accepted, out)

	v := m.Snapshot()
	assert.Equal(t, InProgress, v.Phase)
	assert.Equal(t, "2026-03-03", v.Date)
	assert.Equal(t, 0, v.Cursor)
	assert.Empty(t, v.Statuses)
	assert.NotEqual(t, first, v.SessionID)
}

func TestStart_PermanentFailureStaysNotStarted(t *testing.T) {
	e := newEnv(t, "Ayşe")
	require.NoError(t, e.remote.DeleteClass(e.ctx, e.class.ID))
	m := New(e.coord, e.class)

	out, err := m.Start(e.ctx, today)
	require.Error(t, err)
	assert.True(t, remote.IsPermanent(err))
	assert.Equal(t, Rejected, out)
	assert.Equal(t, NotStarted, m.Snapshot().Phase)
}

// stubRecorder lets tests control the coordinator's answers.
type stubRecorder struct {
	mu      sync.Mutex
	entered chan struct{}
	release chan struct{}
	fail    error
	calls   int
}

func (s *stubRecorder) CreateSession(ctx context.Context, classID, date string) (coordinator.Result[domain.AttendanceSession], error) {
	return coordinator.Result[domain.AttendanceSession]{
		Value: domain.AttendanceSession{ID: "s1", ClassID: classID, Date: date},
		State: coordinator.Confirmed,
	}, nil
}

func (s *stubRecorder) RecordAttendance(ctx context.Context, sessionID, studentID, classID string, status domain.Status) (coordinator.Result[domain.AttendanceRecord], error) {
	s.mu.Lock()
	s.calls++
	fail := s.fail
	s.mu.Unlock()
	if s.entered != nil {
		s.entered <- struct{}{}
		<-s.release
	}
	if fail != nil {
		return coordinator.Result[domain.AttendanceRecord]{}, fail
	}
	return coordinator.Result[domain.AttendanceRecord]{
		Value: domain.AttendanceRecord{SessionID: sessionID, StudentID: studentID, Status: status},
		State: coordinator.Confirmed,
	}, nil
}

func (s *stubRecorder) SessionFor(classID, date string) (domain.AttendanceSession, bool) {
	return domain.AttendanceSession{}, false
}

func stubClass() domain.ClassRoom {
	return domain.ClassRoom{
		ID: "c1",
		Students: []domain.Student{
			{ID: "st-1", Name: "Ayşe"},
			{ID: "st-2", Name: "Omar"},
		},
	}
}

func TestRecord_LatchRejectsConcurrentCall(t *testing.T) {
	rec := &stubRecorder{entered: make(chan struct{}), release: make(chan struct{})}
	m := New(rec, stubClass())
	_, err := m.Start(context.Background(), today)
	require.NoError(t, err)

	done := make(chan Outcome)
	go func() {
		out, _ := m.Record(context.Background(), domain.StatusPresent)
		done <- out
	}()
	<-rec.entered

	// The first record is in flight
	assert.Equal(t, Recording, m.Snapshot().Phase)
	out, err := m.Record(context.Background(), domain.StatusAbsent)
	require.NoError(t, err)
	assert.Equal(t, Rejected, out)
	assert.Equal(t, Rejected, m.Finish(context.Background()))
	assert.Equal(t, Rejected, m.Attach(context.Background(), today))

	close(rec.release)
	assert.Equal(t, Accepted, <-done)

	v := m.Snapshot()
	assert.Equal(t, InProgress, v.Phase)
	assert.Equal(t, 1, v.Cursor)
	assert.Equal(t, domain.StatusPresent, v.Statuses["st-1"])
	assert.Equal(t, 1, rec.calls)
}

func TestRecord_FailureKeepsCursor(t *testing.T) {
	boom := errors.New("boom")
	rec := &stubRecorder{fail: boom}
	m := New(rec, stubClass())
	_, err := m.Start(context.Background(), today)
	require.NoError(t, err)

	out, err := m.Record(context.Background(), domain.StatusPresent)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Rejected, out)

	v := m.Snapshot()
	assert.Equal(t, InProgress, v.Phase)
	assert.Equal(t, 0, v.Cursor)
	assert.Empty(t, v.Statuses)

	// Retry the same student
	rec.mu.Lock()
	rec.fail = nil
	rec.mu.Unlock()
	out, err = m.Record(context.Background(), domain.StatusPresent)
	require.NoError(t, err)
	assert.Equal(t, Accepted, out)
	assert.Equal(t, 1, m.Snapshot().Cursor)
}

func TestRecord_SkippedSessionIsAnError(t *testing.T) {
	e := newEnv(t, "Ayşe")
	m := New(e.coord, e.class)
	m.mu.Lock()
	m.phase = InProgress
	m.sessionID = "vanished"
	m.mu.Unlock()

	_, err := m.Record(e.ctx, domain.StatusPresent)
	assert.ErrorIs(t, err, ErrSessionGone)
	assert.Equal(t, 0, m.Snapshot().Cursor)
}
