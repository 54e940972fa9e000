package domain

import (
	"time"
)

// Status is the attendance outcome for one student in one session.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPresent || s == StatusAbsent
}

// DateLayout is the calendar-date form used for session dates.
const DateLayout = "2006-01-02"

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}

// Teacher is the authenticated operator. One per device.
type Teacher struct {
	ID        string    `validate:"required"`
	Name      string    `validate:"required,max=120"`
	Contact   string    `validate:"max=254"`
	CreatedAt time.Time
}

// ClassRoom is a class owned by a teacher together with its roster.
//
// Students is the roster in the order students were added; capture walks it
// front to back.
type ClassRoom struct {
	ID        string
	Name      string
	Section   string
	TeacherID string
	Students  []Student
	CreatedAt time.Time
}

// Student returns the roster entry with the given id.
func (c ClassRoom) Student(id string) (Student, bool) {
	for _, s := range c.Students {
		if s.ID == id {
			return s, true
		}
	}
	return Student{}, false
}

// Clone returns a deep copy of c.
func (c ClassRoom) Clone() ClassRoom {
	out := c
	if c.Students != nil {
		out.Students = make([]Student, len(c.Students))
		copy(out.Students, c.Students)
	}
	return out
}

// Student belongs to exactly one class and is deleted with it.
type Student struct {
	ID        string
	Name      string
	ClassID   string
	CreatedAt time.Time
}

// SessionMeta is carried by a session only while it is unsynchronized.
type SessionMeta struct {
	// TempID is the locally synthesized id the session was created under.
	TempID string
}

// AttendanceSession is one attendance-taking occasion for a class on a date.
//
// INVARIANT: Records holds at most one record per student; it is keyed by
// student id and a later write for the same student replaces the earlier one.
type AttendanceSession struct {
	ID        string
	ClassID   string
	Date      string
	CreatedAt time.Time
	Records   map[string]AttendanceRecord
	Meta      *SessionMeta
}

// Pending reports whether the session has not yet been confirmed remotely.
func (s AttendanceSession) Pending() bool {
	return s.Meta != nil && s.Meta.TempID != ""
}

// PutRecord stores r under its student id, replacing any earlier record.
func (s *AttendanceSession) PutRecord(r AttendanceRecord) {
	if s.Records == nil {
		s.Records = make(map[string]AttendanceRecord)
	}
	s.Records[r.StudentID] = r
}

// Counts returns the number of present and absent records.
func (s AttendanceSession) Counts() (present, absent int) {
	for _, r := range s.Records {
		switch r.Status {
		case StatusPresent:
			present++
		case StatusAbsent:
			absent++
		}
	}
	return present, absent
}

// Clone returns a deep copy of s.
func (s AttendanceSession) Clone() AttendanceSession {
	out := s
	if s.Records != nil {
		out.Records = make(map[string]AttendanceRecord, len(s.Records))
		for k, v := range s.Records {
			out.Records[k] = v
		}
	}
	if s.Meta != nil {
		m := *s.Meta
		out.Meta = &m
	}
	return out
}

// AttendanceRecord is one student's status within a session.
type AttendanceRecord struct {
	ID        string
	StudentID string
	ClassID   string
	SessionID string
	Status    Status
	TakenAt   time.Time
	CreatedAt time.Time
}

// Snapshot is the aggregate persisted as one consistent unit and hydrated
// from before any network call completes.
type Snapshot struct {
	Teacher        *Teacher
	Classes        []ClassRoom
	Sessions       []AttendanceSession
	PendingActions []PendingAction
}
