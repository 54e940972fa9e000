package remote

import (
	"sort"
	"time"

	"github.com/roach88/rollbook/internal/domain"
)

// JSON bodies of the HTTP API. Times use encoding/json's RFC 3339 form.

type teacherDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type studentDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ClassID   string    `json:"classId"`
	CreatedAt time.Time `json:"createdAt"`
}

type classDTO struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Section   string       `json:"section,omitempty"`
	TeacherID string       `json:"teacherId"`
	Students  []studentDTO `json:"students"`
	CreatedAt time.Time    `json:"createdAt"`
}

type recordDTO struct {
	ID        string    `json:"id"`
	StudentID string    `json:"studentId"`
	ClassID   string    `json:"classId"`
	SessionID string    `json:"sessionId"`
	Status    string    `json:"status"`
	TakenAt   time.Time `json:"takenAt"`
	CreatedAt time.Time `json:"createdAt"`
}

type sessionDTO struct {
	ID        string      `json:"id"`
	ClassID   string      `json:"classId"`
	Date      string      `json:"date"`
	CreatedAt time.Time   `json:"createdAt"`
	Records   []recordDTO `json:"records"`
}

type classRequest struct {
	TeacherID string `json:"teacherId,omitempty"`
	Name      string `json:"name"`
	Section   string `json:"section,omitempty"`
}

type studentRequest struct {
	ClassID string `json:"classId,omitempty"`
	Name    string `json:"name"`
}

type sessionRequest struct {
	Date string `json:"date"`
}

type recordRequest struct {
	ClassID string    `json:"classId"`
	Status  string    `json:"status"`
	TakenAt time.Time `json:"takenAt"`
}

type errorBody struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func toTeacherDTO(t domain.Teacher) teacherDTO {
	return teacherDTO{ID: t.ID, Name: t.Name, Contact: t.Contact, CreatedAt: t.CreatedAt}
}

func (d teacherDTO) domain() domain.Teacher {
	return domain.Teacher{ID: d.ID, Name: d.Name, Contact: d.Contact, CreatedAt: d.CreatedAt}
}

func toStudentDTO(s domain.Student) studentDTO {
	return studentDTO{ID: s.ID, Name: s.Name, ClassID: s.ClassID, CreatedAt: s.CreatedAt}
}

func (d studentDTO) domain() domain.Student {
	return domain.Student{ID: d.ID, Name: d.Name, ClassID: d.ClassID, CreatedAt: d.CreatedAt}
}

func toClassDTO(c domain.ClassRoom) classDTO {
	d := classDTO{
		ID:        c.ID,
		Name:      c.Name,
		Section:   c.Section,
		TeacherID: c.TeacherID,
		Students:  make([]studentDTO, 0, len(c.Students)),
		CreatedAt: c.CreatedAt,
	}
	for _, s := range c.Students {
		d.Students = append(d.Students, toStudentDTO(s))
	}
	return d
}

func (d classDTO) domain() domain.ClassRoom {
	c := domain.ClassRoom{
		ID:        d.ID,
		Name:      d.Name,
		Section:   d.Section,
		TeacherID: d.TeacherID,
		Students:  make([]domain.Student, 0, len(d.Students)),
		CreatedAt: d.CreatedAt,
	}
	for _, s := range d.Students {
		c.Students = append(c.Students, s.domain())
	}
	return c
}

func toRecordDTO(r domain.AttendanceRecord) recordDTO {
	return recordDTO{
		ID:        r.ID,
		StudentID: r.StudentID,
		ClassID:   r.ClassID,
		SessionID: r.SessionID,
		Status:    string(r.Status),
		TakenAt:   r.TakenAt,
		CreatedAt: r.CreatedAt,
	}
}

func (d recordDTO) domain() domain.AttendanceRecord {
	return domain.AttendanceRecord{
		ID:        d.ID,
		StudentID: d.StudentID,
		ClassID:   d.ClassID,
		SessionID: d.SessionID,
		Status:    domain.Status(d.Status),
		TakenAt:   d.TakenAt,
		CreatedAt: d.CreatedAt,
	}
}

func toSessionDTO(s domain.AttendanceSession) sessionDTO {
	d := sessionDTO{
		ID:        s.ID,
		ClassID:   s.ClassID,
		Date:      s.Date,
		CreatedAt: s.CreatedAt,
		Records:   make([]recordDTO, 0, len(s.Records)),
	}
	for _, r := range s.Records {
		d.Records = append(d.Records, toRecordDTO(r))
	}
	sort.Slice(d.Records, func(i, j int) bool {
		return d.Records[i].StudentID < d.Records[j].StudentID
	})
	return d
}

func (d sessionDTO) domain() domain.AttendanceSession {
	s := domain.AttendanceSession{
		ID:        d.ID,
		ClassID:   d.ClassID,
		Date:      d.Date,
		CreatedAt: d.CreatedAt,
		Records:   make(map[string]domain.AttendanceRecord, len(d.Records)),
	}
	for _, r := range d.Records {
		s.PutRecord(r.domain())
	}
	return s
}
