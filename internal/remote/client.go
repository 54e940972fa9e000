package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/rollbook/internal/domain"
)

// DefaultTimeout bounds a single remote call.
const DefaultTimeout = 10 * time.Second

// Client calls the system of record over JSON/HTTP.
//
// Thread-safety: safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithBearerToken authenticates every request.
func WithBearerToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UpsertTeacher implements Remote.
func (c *Client) UpsertTeacher(ctx context.Context, t domain.Teacher) (domain.Teacher, error) {
	var out teacherDTO
	err := c.do(ctx, "upsert teacher", http.MethodPut, "/v1/teachers/"+url.PathEscape(t.ID), toTeacherDTO(t), &out)
	return out.domain(), err
}

// ListClasses implements Remote.
func (c *Client) ListClasses(ctx context.Context, teacherID string) ([]domain.ClassRoom, error) {
	var out []classDTO
	if err := c.do(ctx, "list classes", http.MethodGet, "/v1/teachers/"+url.PathEscape(teacherID)+"/classes", nil, &out); err != nil {
		return nil, err
	}
	classes := make([]domain.ClassRoom, 0, len(out))
	for _, d := range out {
		classes = append(classes, d.domain())
	}
	return classes, nil
}

// CreateClass implements Remote.
func (c *Client) CreateClass(ctx context.Context, teacherID string, in domain.ClassInput) (domain.ClassRoom, error) {
	var out classDTO
	body := classRequest{TeacherID: teacherID, Name: in.Name, Section: in.Section}
	err := c.do(ctx, "create class", http.MethodPost, "/v1/classes", body, &out)
	return out.domain(), err
}

// UpdateClass implements Remote.
func (c *Client) UpdateClass(ctx context.Context, classID string, in domain.ClassInput) (domain.ClassRoom, error) {
	var out classDTO
	body := classRequest{Name: in.Name, Section: in.Section}
	err := c.do(ctx, "update class", http.MethodPatch, "/v1/classes/"+url.PathEscape(classID), body, &out)
	return out.domain(), err
}

// DeleteClass implements Remote.
func (c *Client) DeleteClass(ctx context.Context, classID string) error {
	return c.do(ctx, "delete class", http.MethodDelete, "/v1/classes/"+url.PathEscape(classID), nil, nil)
}

// CreateStudent implements Remote.
func (c *Client) CreateStudent(ctx context.Context, in domain.StudentInput) (domain.Student, error) {
	var out studentDTO
	path := "/v1/classes/" + url.PathEscape(in.ClassID) + "/students"
	err := c.do(ctx, "create student", http.MethodPost, path, studentRequest{Name: in.Name}, &out)
	return out.domain(), err
}

// UpdateStudent implements Remote.
func (c *Client) UpdateStudent(ctx context.Context, studentID string, in domain.StudentInput) (domain.Student, error) {
	var out studentDTO
	body := studentRequest{ClassID: in.ClassID, Name: in.Name}
	err := c.do(ctx, "update student", http.MethodPatch, "/v1/students/"+url.PathEscape(studentID), body, &out)
	return out.domain(), err
}

// DeleteStudent implements Remote.
func (c *Client) DeleteStudent(ctx context.Context, studentID string) error {
	return c.do(ctx, "delete student", http.MethodDelete, "/v1/students/"+url.PathEscape(studentID), nil, nil)
}

// CreateSession implements Remote.
func (c *Client) CreateSession(ctx context.Context, classID, date string) (domain.AttendanceSession, error) {
	var out sessionDTO
	path := "/v1/classes/" + url.PathEscape(classID) + "/sessions"
	err := c.do(ctx, "create session", http.MethodPost, path, sessionRequest{Date: date}, &out)
	return out.domain(), err
}

// RecordAttendance implements Remote. PUT makes the idempotency of the
// (session, student) pair explicit on the wire.
func (c *Client) RecordAttendance(ctx context.Context, req RecordRequest) (domain.AttendanceRecord, error) {
	var out recordDTO
	path := "/v1/sessions/" + url.PathEscape(req.SessionID) + "/records/" + url.PathEscape(req.StudentID)
	body := recordRequest{ClassID: req.ClassID, Status: string(req.Status), TakenAt: req.TakenAt}
	err := c.do(ctx, "record attendance", http.MethodPut, path, body, &out)
	return out.domain(), err
}

// SessionsByClass implements Remote.
func (c *Client) SessionsByClass(ctx context.Context, classID string, limit int) ([]domain.AttendanceSession, error) {
	var out []sessionDTO
	path := "/v1/classes/" + url.PathEscape(classID) + "/sessions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.do(ctx, "sessions by class", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	sessions := make([]domain.AttendanceSession, 0, len(out))
	for _, d := range out {
		sessions = append(sessions, d.domain())
	}
	return sessions, nil
}

// do performs one request and maps every failure onto *Error.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return WrapError(CodeInvalid, op, fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return WrapError(CodeInvalid, op, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return WrapError(transportCode(err), op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return WrapError(CodeServer, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func transportCode(err error) Code {
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout
	}
	return CodeUnavailable
}

func decodeError(op string, resp *http.Response) error {
	code := codeForStatus(resp.StatusCode)
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var eb errorBody
	if err := json.Unmarshal(data, &eb); err == nil && eb.Error.Code != "" {
		// Trust the server's code only when it agrees on permanence;
		// a 5xx must never become a permanent rejection.
		if eb.Error.Code.Permanent() == code.Permanent() {
			code = eb.Error.Code
		}
		return NewError(code, op, eb.Error.Message)
	}
	return NewError(code, op, fmt.Sprintf("HTTP %d", resp.StatusCode))
}

var _ Remote = (*Client)(nil)
