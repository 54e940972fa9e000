package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollbook/internal/domain"
	"github.com/roach88/rollbook/internal/remote"
	"github.com/roach88/rollbook/internal/testutil"
)

// env is a config file pointing at a served in-memory remote and a store
// under a temp dir. Every run builds a fresh process-like command tree.
type env struct {
	t       *testing.T
	dir     string
	config  string
	backend *remote.Memory
	server  *httptest.Server
}

type envOptions struct {
	driver  string
	teacher bool
}

func newEnv(t *testing.T, o envOptions) *env {
	t.Helper()
	if o.driver == "" {
		o.driver = "sqlite"
	}
	backend := remote.NewMemory(testutil.NewSeqGenerator("srv"), testutil.NewManualClock(time.Time{}))
	srv := httptest.NewServer(remote.NewServer(backend))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	path := filepath.Join(dir, "rollbook.db")
	if o.driver == "badger" {
		path = filepath.Join(dir, "badger")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "store:\n  driver: %s\n  path: %s\n", o.driver, path)
	fmt.Fprintf(&b, "remote:\n  base_url: %s\n  timeout: 2s\n", srv.URL)
	b.WriteString("connectivity:\n  interval: 50ms\n  timeout: 1s\n")
	if o.teacher {
		b.WriteString("teacher:\n  id: t-1\n  name: Mina Kaya\n")
	}
	b.WriteString("log:\n  level: error\n")

	config := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(config, []byte(b.String()), 0o644))

	return &env{t: t, dir: dir, config: config, backend: backend, server: srv}
}

// run executes the CLI with --config and returns stdout.
func (e *env) run(args ...string) (string, error) {
	return e.runContext(context.Background(), args...)
}

func (e *env) runContext(ctx context.Context, args ...string) (string, error) {
	e.t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

// runJSON executes the CLI with --format json and decodes the data payload.
func (e *env) runJSON(v any, args ...string) {
	e.t.Helper()
	out, err := e.run(append([]string{"--format", "json"}, args...)...)
	require.NoError(e.t, err, out)
	decodeData(e.t, out, v)
}

func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func decodeError(t *testing.T, out string) CLIError {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "error", resp.Status, out)
	require.NotNil(t, resp.Error)
	return *resp.Error
}

func joinStatuses(ss []domain.Status) string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

// seedClass creates a class with the given roster through the CLI.
func (e *env) seedClass(name string, roster ...string) string {
	e.t.Helper()
	var class WriteResult
	e.runJSON(&class, "class", "add", name, "--section", "B")
	for _, student := range roster {
		var res WriteResult
		e.runJSON(&res, "student", "add", class.ID, student)
	}
	return class.ID
}

func TestSignIn_ConfirmedOnline(t *testing.T) {
	e := newEnv(t, envOptions{})

	var res SignInResult
	e.runJSON(&res, "signin", "--id", "t-7", "--name", "  Mina   Kaya ")
	assert.Equal(t, "t-7", res.ID)
	assert.Equal(t, "Mina Kaya", res.Name)
	assert.False(t, res.Optimistic)

	var status StatusReport
	e.runJSON(&status, "status")
	assert.Equal(t, "Mina Kaya", status.Teacher)
	assert.False(t, status.Checked)
}

func TestWrites_RequireTeacher(t *testing.T) {
	e := newEnv(t, envOptions{})

	out, err := e.run("--format", "json", "class", "add", "Grade 5")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, "NOT_SIGNED_IN", decodeError(t, out).Code)
}

func TestClassAdd_SignsInConfiguredTeacher(t *testing.T) {
	e := newEnv(t, envOptions{teacher: true})

	var class WriteResult
	e.runJSON(&class, "class", "add", "Grade 5 Mathematics", "--section", "B")
	assert.Equal(t, "confirmed", class.State)
	assert.Equal(t, "srv-1", class.ID)

	var list ClassList
	e.runJSON(&list, "class", "list")
	require.Len(t, list.Classes, 1)
	assert.Equal(t, "Grade 5 Mathematics", list.Classes[0].Name)
	assert.Equal(t, "B", list.Classes[0].Section)
	assert.False(t, list.Classes[0].Local)
}

func TestTake_OnlineCapture(t *testing.T) {
	e := newEnv(t, envOptions{teacher: true})
	classID := e.seedClass("Grade 5", "Ayşe", "Omar", "Lina")

	var res TakeResult
	e.runJSON(&res, "take", classID, "--date", "2026-03-02", "--marks", "p,a,p")
	assert.Equal(t, string("completed"), res.Phase)
	assert.Equal(t, 2, res.Present)
	assert.Equal(t, 1, res.Absent)
	assert.Equal(t, 3, res.Recorded)
	assert.Equal(t, 0, res.Pending)

	session, ok := e.backend.Session(res.SessionID)
	require.True(t, ok)
	assert.Len(t, session.Records, 3)
}

func TestTake_ResumesAcrossRuns(t *testing.T) {
	e := newEnv(t, envOptions{teacher: true})
	classID := e.seedClass("Grade 5", "Ayşe", "Omar", "Lina")

	var first TakeResult
	e.runJSON(&first, "take", classID, "--date", "2026-03-02", "--marks", "p")
	assert.Equal(t, "in_progress", first.Phase)
	assert.Equal(t, "Omar", first.Next)

	var second TakeResult
	e.runJSON(&second, "take", classID, "--date", "2026-03-02", "--marks", "a,a")
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, "completed", second.Phase)
	assert.Equal(t, 1, second.Present)
	assert.Equal(t, 2, second.Absent)
	assert.Equal(t, 1, e.backend.SessionCount())
}

func TestTake_FinishPartialRoster(t *testing.T) {
	e := newEnv(t, envOptions{teacher: true})
	classID := e.seedClass("Grade 5", "Ayşe", "Omar", "Lina")

	var res TakeResult
	e.runJSON(&res, "take", classID, "--date", "2026-03-02", "--marks", "p", "--finish")
	assert.Equal(t, "completed", res.Phase)
	assert.Equal(t, []string{"Omar", "Lina"}, res.Missing)
}

func TestTake_TooManyMarks(t *testing.T) {
	e := newEnv(t, envOptions{teacher: true})
	classID := e.seedClass("Grade 5", "Ayşe")

	_, err := e.run("take", classID, "--date", "2026-03-02", "--marks", "p,a")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTake_InvalidInput(t *testing.T) {
	e := newEnv(t, envOptions{teacher: true})
	classID := e.seedClass("Grade 5", "Ayşe")

	tests := []struct {
		name string
		args []string
	}{
		{"bad mark", []string{"take", classID, "--marks", "p,x"}},
		{"bad date", []string{"take", classID, "--date", "02/03/2026"}},
		{"unknown class", []string{"take", "nope", "--date", "2026-03-02"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.run(tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestOfflineCaptureThenSync(t *testing.T) {
	e := newEnv(t, envOptions{teacher: true})

	var signIn SignInResult
	e.runJSON(&signIn, "signin")
	require.False(t, signIn.Optimistic)

	e.backend.SetAvailable(false)
	var class WriteResult
	e.runJSON(&class, "class", "add", "Grade 5")
	assert.Equal(t, "optimistic", class.State)
	for _, name := range []string{"Ayşe", "Omar", "Lina"} {
		var res WriteResult
		e.runJSON(&res, "student", "add", class.ID, name)
		assert.Equal(t, "optimistic", res.State)
	}

	var take TakeResult
	e.runJSON(&take, "take", class.ID, "--date", "2026-03-02", "--marks", "p,a,p")
	assert.Equal(t, "completed", take.Phase)
	assert.Equal(t, 8, take.Pending)
	assert.Equal(t, 0, e.backend.SessionCount())

	e.backend.SetAvailable(true)
	var res SyncResult
	e.runJSON(&res, "sync")
	assert.True(t, res.Online)
	assert.Equal(t, 8, res.Processed)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 0, res.Pending)

	var status StatusReport
	e.runJSON(&status, "status")
	require.Len(t, status.Classes, 1)
	assert.False(t, status.Classes[0].Local)
	assert.Equal(t, 3, status.Classes[0].Students)
	require.Len(t, status.Sessions, 1)
	assert.Equal(t, 2, status.Sessions[0].Present)
	assert.Equal(t, 1, status.Sessions[0].Absent)
	assert.False(t, status.Sessions[0].Local)
	assert.Equal(t, 1, e.backend.SessionCount())
}

func TestSync_Unreachable(t *testing.T) {
	e := newEnv(t, envOptions{teacher: true})
	e.backend.SetAvailable(false)
	var class WriteResult
	e.runJSON(&class, "class", "add", "Grade 5")
	e.server.Close()

	var res SyncResult
	e.runJSON(&res, "sync")
	assert.False(t, res.Online)
	assert.Equal(t, 1, res.Pending)

	var status StatusReport
	e.runJSON(&status, "status", "--check")
	assert.True(t, status.Checked)
	assert.False(t, status.Online)
	assert.Equal(t, 1, status.Pending)
}

func TestSync_PermanentRejectionFails(t *testing.T) {
	e := newEnv(t, envOptions{teacher: true})
	classID := e.seedClass("Grade 5", "Ayşe")

	e.backend.SetAvailable(false)
	var res WriteResult
	e.runJSON(&res, "class", "rename", classID, "Grade 6")
	require.Equal(t, "optimistic", res.State)

	e.backend.SetAvailable(true)
	e.backend.InjectFault(func(c remote.Call) error {
		if c.Op == "update class" {
			return remote.NewError(remote.CodeForbidden, c.Op, "class is archived")
		}
		return nil
	})

	out, err := e.run("--format", "json", "sync")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	var sync SyncResult
	decodeData(t, out, &sync)
	assert.Equal(t, 1, sync.Failed)
	assert.Equal(t, 1, sync.Pending)
}

func TestClassAndStudentRemoval(t *testing.T) {
	e := newEnv(t, envOptions{teacher: true})
	classID := e.seedClass("Grade 5", "Ayşe", "Omar")

	var list ClassList
	e.runJSON(&list, "class", "list")
	require.Len(t, list.Classes, 1)
	require.Len(t, list.Classes[0].Roster, 2)

	var removed WriteResult
	e.runJSON(&removed, "student", "remove", list.Classes[0].Roster[0].ID)
	assert.Equal(t, "confirmed", removed.State)

	e.runJSON(&list, "class", "list")
	require.Len(t, list.Classes[0].Roster, 1)
	assert.Equal(t, "Omar", list.Classes[0].Roster[0].Name)

	e.runJSON(&removed, "class", "remove", classID)
	assert.Equal(t, "confirmed", removed.State)
	e.runJSON(&list, "class", "list")
	assert.Empty(t, list.Classes)

	_, err := e.run("class", "remove", classID)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestBadgerDriver_PersistsQueue(t *testing.T) {
	e := newEnv(t, envOptions{driver: "badger", teacher: true})
	e.backend.SetAvailable(false)

	var class WriteResult
	e.runJSON(&class, "class", "add", "Grade 5")
	require.Equal(t, "optimistic", class.State)

	var status StatusReport
	e.runJSON(&status, "status")
	assert.Equal(t, 1, status.Pending)
	require.Len(t, status.Classes, 1)
	assert.True(t, status.Classes[0].Local)
}

func TestWatch_DrainsOnConnect(t *testing.T) {
	e := newEnv(t, envOptions{teacher: true})
	e.backend.SetAvailable(false)
	var class WriteResult
	e.runJSON(&class, "class", "add", "Grade 5")
	e.backend.SetAvailable(true)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	out, err := e.runContext(ctx, "watch")
	require.NoError(t, err)
	assert.Contains(t, out, "Watching connectivity")

	var status StatusReport
	e.runJSON(&status, "status")
	assert.Equal(t, 0, status.Pending)
	require.Len(t, status.Classes, 1)
	assert.False(t, status.Classes[0].Local)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"config", "init", path})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), path)
	assert.FileExists(t, path)

	cmd = NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "init", path})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigShow_MasksToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: memory\nremote:\n  base_url: http://127.0.0.1:1\n  token: s3cret\n"), 0o644))

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--config", path, "config", "show"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "driver: memory")
	assert.NotContains(t, out.String(), "s3cret")
}

func TestBadConfig_IsCommandError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: postgres\n"), 0o644))

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", path, "status"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
