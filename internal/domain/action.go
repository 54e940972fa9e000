package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ActionType tags the kind of mutation a PendingAction describes.
type ActionType string

const (
	ActionCreateSession    ActionType = "CREATE_SESSION"
	ActionRecordAttendance ActionType = "RECORD_ATTENDANCE"
	ActionCreateClass      ActionType = "CREATE_CLASS"
	ActionUpdateClass      ActionType = "UPDATE_CLASS"
	ActionDeleteClass      ActionType = "DELETE_CLASS"
	ActionCreateStudent    ActionType = "CREATE_STUDENT"
	ActionUpdateStudent    ActionType = "UPDATE_STUDENT"
	ActionDeleteStudent    ActionType = "DELETE_STUDENT"
)

// PendingAction is a durable description of a mutation not yet confirmed
// by the remote system.
//
// Seq is strictly increasing across all actions created on this device and
// is the total order used for replay. CreatedAt is informational.
type PendingAction struct {
	ID        string
	Type      ActionType
	Payload   json.RawMessage
	CreatedAt time.Time
	Seq       int64
}

// NewPendingAction marshals payload and returns the action.
func NewPendingAction(id string, typ ActionType, payload any, createdAt time.Time, seq int64) (PendingAction, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return PendingAction{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return PendingAction{
		ID:        id,
		Type:      typ,
		Payload:   data,
		CreatedAt: createdAt,
		Seq:       seq,
	}, nil
}

// Decode unmarshals the action payload into v.
func (a PendingAction) Decode(v any) error {
	if err := json.Unmarshal(a.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", a.Type, err)
	}
	return nil
}

// SortActions orders actions for replay: Seq ascending, then CreatedAt,
// then ID so the order is total.
func SortActions(actions []PendingAction) {
	sort.SliceStable(actions, func(i, j int) bool {
		a, b := actions[i], actions[j]
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// CreateSessionPayload is the payload of ActionCreateSession.
type CreateSessionPayload struct {
	TempID  string `json:"tempId"`
	ClassID string `json:"classId"`
	Date    string `json:"date"`
}

// RecordAttendancePayload is the payload of ActionRecordAttendance.
type RecordAttendancePayload struct {
	SessionID string    `json:"sessionId"`
	StudentID string    `json:"studentId"`
	ClassID   string    `json:"classId"`
	Status    Status    `json:"status"`
	TakenAt   time.Time `json:"takenAt"`
}

// ClassPayload is the payload of the class action types. TempID is set
// only for ActionCreateClass.
type ClassPayload struct {
	TempID    string `json:"tempId,omitempty"`
	ClassID   string `json:"classId,omitempty"`
	TeacherID string `json:"teacherId,omitempty"`
	Name      string `json:"name,omitempty"`
	Section   string `json:"section,omitempty"`
}

// StudentPayload is the payload of the student action types. TempID is set
// only for ActionCreateStudent.
type StudentPayload struct {
	TempID    string `json:"tempId,omitempty"`
	StudentID string `json:"studentId,omitempty"`
	ClassID   string `json:"classId,omitempty"`
	Name      string `json:"name,omitempty"`
}

// refKeys are the payload fields that hold references to other entities.
// tempId is deliberately absent: it names the entity an action creates and
// must survive remapping so the creating action can be matched.
var refKeys = []string{"classId", "sessionId", "studentId"}

// References returns the entity ids an action's payload points at.
func (a PendingAction) References() []string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(a.Payload, &fields); err != nil {
		return nil
	}
	var refs []string
	for _, key := range refKeys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var id string
		if err := json.Unmarshal(raw, &id); err == nil && id != "" {
			refs = append(refs, id)
		}
	}
	return refs
}

// TempID returns the temporary id an action creates, if any.
func (a PendingAction) TempID() string {
	var fields struct {
		TempID string `json:"tempId"`
	}
	if err := json.Unmarshal(a.Payload, &fields); err != nil {
		return ""
	}
	return fields.TempID
}

// RewriteRefs returns a copy of a whose reference fields equal to from are
// replaced by to. Payloads that are not JSON objects are returned unchanged.
func (a PendingAction) RewriteRefs(from, to string) (PendingAction, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(a.Payload, &fields); err != nil {
		return a, false
	}
	want, _ := json.Marshal(from)
	repl, _ := json.Marshal(to)

	changed := false
	for _, key := range refKeys {
		raw, ok := fields[key]
		if !ok || !bytes.Equal(bytes.TrimSpace(raw), want) {
			continue
		}
		fields[key] = repl
		changed = true
	}
	if !changed {
		return a, false
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return a, false
	}
	out := a
	out.Payload = data
	return out, true
}
