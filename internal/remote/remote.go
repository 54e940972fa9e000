package remote

import (
	"context"
	"time"

	"github.com/roach88/rollbook/internal/domain"
)

// Remote is the system of record.
//
// RecordAttendance is idempotent on (SessionID, StudentID): a second call
// for the same pair updates the existing record instead of adding one.
type Remote interface {
	UpsertTeacher(ctx context.Context, t domain.Teacher) (domain.Teacher, error)
	ListClasses(ctx context.Context, teacherID string) ([]domain.ClassRoom, error)

	CreateClass(ctx context.Context, teacherID string, in domain.ClassInput) (domain.ClassRoom, error)
	UpdateClass(ctx context.Context, classID string, in domain.ClassInput) (domain.ClassRoom, error)
	DeleteClass(ctx context.Context, classID string) error

	CreateStudent(ctx context.Context, in domain.StudentInput) (domain.Student, error)
	UpdateStudent(ctx context.Context, studentID string, in domain.StudentInput) (domain.Student, error)
	DeleteStudent(ctx context.Context, studentID string) error

	CreateSession(ctx context.Context, classID, date string) (domain.AttendanceSession, error)
	RecordAttendance(ctx context.Context, req RecordRequest) (domain.AttendanceRecord, error)
	SessionsByClass(ctx context.Context, classID string, limit int) ([]domain.AttendanceSession, error)
}

// RecordRequest is the input of Remote.RecordAttendance.
type RecordRequest struct {
	SessionID string
	StudentID string
	ClassID   string
	Status    domain.Status
	TakenAt   time.Time
}
