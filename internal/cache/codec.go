package cache

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/roach88/rollbook/internal/domain"
)

// Wire forms. Timestamps are domain.FormatTimestamp strings so the
// persisted documents sort and compare without locale or zone ambiguity.

type wireTeacher struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Contact   string `json:"contact,omitempty"`
	CreatedAt string `json:"createdAt"`
}

type wireStudent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ClassID   string `json:"classId"`
	CreatedAt string `json:"createdAt"`
}

type wireClass struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Section   string        `json:"section,omitempty"`
	TeacherID string        `json:"teacherId"`
	Students  []wireStudent `json:"students"`
	CreatedAt string        `json:"createdAt"`
}

type wireRecord struct {
	ID        string `json:"id"`
	StudentID string `json:"studentId"`
	ClassID   string `json:"classId"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	TakenAt   string `json:"takenAt"`
	CreatedAt string `json:"createdAt"`
}

type wireMeta struct {
	TempID string `json:"tempId"`
}

type wireSession struct {
	ID        string       `json:"id"`
	ClassID   string       `json:"classId"`
	Date      string       `json:"date"`
	CreatedAt string       `json:"createdAt"`
	Records   []wireRecord `json:"records"`
	Meta      *wireMeta    `json:"meta,omitempty"`
}

type wireAction struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"createdAt"`
	Seq       int64           `json:"seq"`
}

func encodeTeacher(t domain.Teacher) (string, error) {
	return encode(wireTeacher{
		ID:        t.ID,
		Name:      t.Name,
		Contact:   t.Contact,
		CreatedAt: domain.FormatTimestamp(t.CreatedAt),
	})
}

func decodeTeacher(data string) (domain.Teacher, error) {
	var w wireTeacher
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return domain.Teacher{}, err
	}
	created, err := domain.ParseTimestamp(w.CreatedAt)
	if err != nil {
		return domain.Teacher{}, fmt.Errorf("teacher %s createdAt: %w", w.ID, err)
	}
	return domain.Teacher{ID: w.ID, Name: w.Name, Contact: w.Contact, CreatedAt: created}, nil
}

func encodeClasses(classes []domain.ClassRoom) (string, error) {
	out := make([]wireClass, 0, len(classes))
	for _, c := range classes {
		wc := wireClass{
			ID:        c.ID,
			Name:      c.Name,
			Section:   c.Section,
			TeacherID: c.TeacherID,
			Students:  make([]wireStudent, 0, len(c.Students)),
			CreatedAt: domain.FormatTimestamp(c.CreatedAt),
		}
		for _, s := range c.Students {
			wc.Students = append(wc.Students, wireStudent{
				ID:        s.ID,
				Name:      s.Name,
				ClassID:   s.ClassID,
				CreatedAt: domain.FormatTimestamp(s.CreatedAt),
			})
		}
		out = append(out, wc)
	}
	return encode(out)
}

func decodeClasses(data string) ([]domain.ClassRoom, error) {
	var ws []wireClass
	if err := json.Unmarshal([]byte(data), &ws); err != nil {
		return nil, err
	}
	out := make([]domain.ClassRoom, 0, len(ws))
	for _, wc := range ws {
		created, err := domain.ParseTimestamp(wc.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("class %s createdAt: %w", wc.ID, err)
		}
		c := domain.ClassRoom{
			ID:        wc.ID,
			Name:      wc.Name,
			Section:   wc.Section,
			TeacherID: wc.TeacherID,
			Students:  make([]domain.Student, 0, len(wc.Students)),
			CreatedAt: created,
		}
		for _, ws := range wc.Students {
			sc, err := domain.ParseTimestamp(ws.CreatedAt)
			if err != nil {
				return nil, fmt.Errorf("student %s createdAt: %w", ws.ID, err)
			}
			c.Students = append(c.Students, domain.Student{
				ID:        ws.ID,
				Name:      ws.Name,
				ClassID:   ws.ClassID,
				CreatedAt: sc,
			})
		}
		out = append(out, c)
	}
	return out, nil
}

func encodeSessions(sessions []domain.AttendanceSession) (string, error) {
	out := make([]wireSession, 0, len(sessions))
	for _, s := range sessions {
		ws := wireSession{
			ID:        s.ID,
			ClassID:   s.ClassID,
			Date:      s.Date,
			CreatedAt: domain.FormatTimestamp(s.CreatedAt),
			Records:   make([]wireRecord, 0, len(s.Records)),
		}
		if s.Meta != nil {
			ws.Meta = &wireMeta{TempID: s.Meta.TempID}
		}
		for _, r := range s.Records {
			ws.Records = append(ws.Records, wireRecord{
				ID:        r.ID,
				StudentID: r.StudentID,
				ClassID:   r.ClassID,
				SessionID: r.SessionID,
				Status:    string(r.Status),
				TakenAt:   domain.FormatTimestamp(r.TakenAt),
				CreatedAt: domain.FormatTimestamp(r.CreatedAt),
			})
		}
		// Map iteration order is random; persist records in a stable order.
		sort.Slice(ws.Records, func(i, j int) bool {
			return ws.Records[i].StudentID < ws.Records[j].StudentID
		})
		out = append(out, ws)
	}
	return encode(out)
}

func decodeSessions(data string) ([]domain.AttendanceSession, error) {
	var ws []wireSession
	if err := json.Unmarshal([]byte(data), &ws); err != nil {
		return nil, err
	}
	out := make([]domain.AttendanceSession, 0, len(ws))
	for _, w := range ws {
		created, err := domain.ParseTimestamp(w.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("session %s createdAt: %w", w.ID, err)
		}
		s := domain.AttendanceSession{
			ID:        w.ID,
			ClassID:   w.ClassID,
			Date:      w.Date,
			CreatedAt: created,
			Records:   make(map[string]domain.AttendanceRecord, len(w.Records)),
		}
		if w.Meta != nil && w.Meta.TempID != "" {
			s.Meta = &domain.SessionMeta{TempID: w.Meta.TempID}
		}
		for _, wr := range w.Records {
			r, err := decodeRecord(wr)
			if err != nil {
				return nil, fmt.Errorf("session %s: %w", w.ID, err)
			}
			s.PutRecord(r)
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeRecord(w wireRecord) (domain.AttendanceRecord, error) {
	taken, err := domain.ParseTimestamp(w.TakenAt)
	if err != nil {
		return domain.AttendanceRecord{}, fmt.Errorf("record %s takenAt: %w", w.ID, err)
	}
	created, err := domain.ParseTimestamp(w.CreatedAt)
	if err != nil {
		return domain.AttendanceRecord{}, fmt.Errorf("record %s createdAt: %w", w.ID, err)
	}
	return domain.AttendanceRecord{
		ID:        w.ID,
		StudentID: w.StudentID,
		ClassID:   w.ClassID,
		SessionID: w.SessionID,
		Status:    domain.Status(w.Status),
		TakenAt:   taken,
		CreatedAt: created,
	}, nil
}

func encodeActions(actions []domain.PendingAction) (string, error) {
	out := make([]wireAction, 0, len(actions))
	for _, a := range actions {
		payload := a.Payload
		if len(payload) == 0 {
			payload = json.RawMessage("null")
		}
		out = append(out, wireAction{
			ID:        a.ID,
			Type:      string(a.Type),
			Payload:   payload,
			CreatedAt: domain.FormatTimestamp(a.CreatedAt),
			Seq:       a.Seq,
		})
	}
	return encode(out)
}

func decodeActions(data string) ([]domain.PendingAction, error) {
	var ws []wireAction
	if err := json.Unmarshal([]byte(data), &ws); err != nil {
		return nil, err
	}
	out := make([]domain.PendingAction, 0, len(ws))
	for _, w := range ws {
		created, err := domain.ParseTimestamp(w.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("action %s createdAt: %w", w.ID, err)
		}
		out = append(out, domain.PendingAction{
			ID:        w.ID,
			Type:      domain.ActionType(w.Type),
			Payload:   w.Payload,
			CreatedAt: created,
			Seq:       w.Seq,
		})
	}
	domain.SortActions(out)
	return out, nil
}

func encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
