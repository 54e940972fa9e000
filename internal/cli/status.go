package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rollbook/internal/domain"
)

// StatusReport is the output of `rollbook status`.
type StatusReport struct {
	Teacher  string        `json:"teacher,omitempty"`
	Online   bool          `json:"online"`
	Checked  bool          `json:"checked"`
	Pending  int           `json:"pending"`
	Classes  []ClassLine   `json:"classes"`
	Sessions []SessionLine `json:"sessions"`
}

// ClassLine summarises one class.
type ClassLine struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Section  string `json:"section,omitempty"`
	Students int    `json:"students"`
	Local    bool   `json:"local,omitempty"`
}

// SessionLine summarises one session.
type SessionLine struct {
	ID      string `json:"id"`
	ClassID string `json:"classId"`
	Date    string `json:"date"`
	Present int    `json:"present"`
	Absent  int    `json:"absent"`
	Local   bool   `json:"local,omitempty"`
}

func (r StatusReport) Text() string {
	var b strings.Builder
	if r.Teacher == "" {
		b.WriteString("Teacher: (not signed in)\n")
	} else {
		fmt.Fprintf(&b, "Teacher: %s\n", r.Teacher)
	}
	switch {
	case !r.Checked:
		b.WriteString("Connectivity: not checked\n")
	case r.Online:
		b.WriteString("Connectivity: online\n")
	default:
		b.WriteString("Connectivity: offline\n")
	}
	fmt.Fprintf(&b, "Pending actions: %d\n", r.Pending)
	fmt.Fprintf(&b, "Classes: %d\n", len(r.Classes))
	for _, c := range r.Classes {
		b.WriteString("  " + c.line() + "\n")
	}
	fmt.Fprintf(&b, "Sessions: %d\n", len(r.Sessions))
	for _, s := range r.Sessions {
		fmt.Fprintf(&b, "  %s %s present=%d absent=%d%s\n", s.Date, s.ID, s.Present, s.Absent, localMark(s.Local))
	}
	return b.String()
}

func (c ClassLine) line() string {
	name := c.Name
	if c.Section != "" {
		name += " (" + c.Section + ")"
	}
	return fmt.Sprintf("%s  %s  students=%d%s", c.ID, name, c.Students, localMark(c.Local))
}

func localMark(local bool) string {
	if local {
		return "  [not synced]"
	}
	return ""
}

func classLine(c domain.ClassRoom, local bool) ClassLine {
	return ClassLine{
		ID:       c.ID,
		Name:     c.Name,
		Section:  c.Section,
		Students: len(c.Students),
		Local:    local,
	}
}

func sessionLine(s domain.AttendanceSession) SessionLine {
	present, absent := s.Counts()
	return SessionLine{
		ID:      s.ID,
		ClassID: s.ClassID,
		Date:    s.Date,
		Present: present,
		Absent:  absent,
		Local:   s.Pending(),
	}
}

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Check bool
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show cached state and queue depth",
		Long: `Show the teacher, classes, sessions and pending-action count held in
the local cache. No network call is made unless --check is given.

Example:
  rollbook status
  rollbook status --check --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Check, "check", false, "probe the remote before reporting")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := cmd.Context()

	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return report(out, err)
	}
	defer a.Close()

	res := StatusReport{
		Classes:  []ClassLine{},
		Sessions: []SessionLine{},
	}
	if t, ok := a.coord.Teacher(); ok {
		res.Teacher = t.Name
	}
	if opts.Check {
		res.Checked = true
		res.Online = a.monitor.Check(ctx)
	}
	res.Pending = a.coord.Status().Pending
	for _, c := range a.coord.Classes() {
		res.Classes = append(res.Classes, classLine(c, a.coord.Unsynced(c.ID)))
	}
	for _, s := range a.coord.Sessions() {
		res.Sessions = append(res.Sessions, sessionLine(s))
	}
	return out.Success(res)
}
