package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rollbook/internal/capture"
	"github.com/roach88/rollbook/internal/coordinator"
	"github.com/roach88/rollbook/internal/domain"
)

// TakeOptions holds flags for the take command.
type TakeOptions struct {
	*RootOptions
	Date   string
	Marks  string
	Finish bool
	New    bool
}

// TakeResult is the output of `rollbook take`.
type TakeResult struct {
	ClassID    string   `json:"classId"`
	SessionID  string   `json:"sessionId,omitempty"`
	Date       string   `json:"date"`
	Phase      string   `json:"phase"`
	Present    int      `json:"present"`
	Absent     int      `json:"absent"`
	Recorded   int      `json:"recorded"`
	RosterSize int      `json:"rosterSize"`
	Next       string   `json:"next,omitempty"`
	Missing    []string `json:"missing,omitempty"`
	Pending    int      `json:"pending"`
}

func (r TakeResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s on %s: %s\n", r.SessionID, r.Date, r.Phase)
	fmt.Fprintf(&b, "Present: %d  Absent: %d  Recorded: %d/%d\n", r.Present, r.Absent, r.Recorded, r.RosterSize)
	if r.Next != "" {
		fmt.Fprintf(&b, "Next: %s\n", r.Next)
	}
	if len(r.Missing) > 0 && r.Phase == string(capture.Completed) {
		fmt.Fprintf(&b, "Not recorded: %s\n", strings.Join(r.Missing, ", "))
	}
	if r.Pending > 0 {
		fmt.Fprintf(&b, "Pending actions: %d\n", r.Pending)
	}
	return b.String()
}

// NewTakeCommand creates the take command.
func NewTakeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TakeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "take <class-id>",
		Short: "Take attendance for a class",
		Long: `Walk the class roster in order, recording one mark per student.

Marks are p (present) or a (absent), comma separated. A capture already
under way for the date resumes at the first unrecorded student. With
fewer marks than students the capture stays open unless --finish is
given, which completes it with the remaining students unrecorded.

Example:
  rollbook take 0192b3c4-... --date 2026-03-02 --marks p,a,p
  rollbook take 0192b3c4-... --marks p --finish`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTake(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "session date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&opts.Marks, "marks", "", "comma-separated marks: p or a")
	cmd.Flags().BoolVar(&opts.Finish, "finish", false, "complete the capture even if students remain")
	cmd.Flags().BoolVar(&opts.New, "new", false, "start a new session when the date is already completed")

	return cmd
}

// parseMarks turns "p,a,present" into statuses.
func parseMarks(s string) ([]domain.Status, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	marks := make([]domain.Status, 0, len(parts))
	for i, p := range parts {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "p", "present":
			marks = append(marks, domain.StatusPresent)
		case "a", "absent":
			marks = append(marks, domain.StatusAbsent)
		default:
			return nil, fmt.Errorf("mark %d: %q is not p or a", i+1, p)
		}
	}
	return marks, nil
}

func runTake(opts *TakeOptions, classID string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := cmd.Context()

	marks, err := parseMarks(opts.Marks)
	if err != nil {
		return report(out, WrapExitError(ExitCommandError, "invalid marks", err))
	}
	date := opts.Date
	if date == "" {
		date = domain.DateOf(time.Now())
	}
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return report(out, WrapExitError(ExitCommandError, "invalid date", err))
	}

	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return report(out, err)
	}
	defer a.Close()
	if _, err := a.requireTeacher(ctx); err != nil {
		return report(out, err)
	}

	class, ok := a.coord.Class(classID)
	if !ok {
		return report(out, writeError("take", fmt.Errorf("class %s: %w", classID, coordinator.ErrUnknownClass)))
	}

	m := capture.New(a.coord, class, capture.WithLogger(a.logger))
	m.Attach(ctx, date)

	switch m.Snapshot().Phase {
	case capture.NotStarted:
		if _, err := m.Start(ctx, date); err != nil {
			return report(out, writeError("start capture", err))
		}
	case capture.Completed:
		if !opts.New {
			out.VerboseLog("capture for %s already completed", date)
			break
		}
		if _, err := m.StartNew(ctx, date); err != nil {
			return report(out, writeError("start capture", err))
		}
	}

	for i, mark := range marks {
		if m.Snapshot().Phase != capture.InProgress {
			return report(out, NewExitError(ExitCommandError,
				fmt.Sprintf("%d mark(s) given but only %d student(s) left to record", len(marks), i)))
		}
		if _, err := m.Record(ctx, mark); err != nil {
			return report(out, writeError("record attendance", err))
		}
	}

	if opts.Finish && m.Finish(ctx) == capture.Accepted && m.Snapshot().Incomplete {
		m.Acknowledge()
	}

	v := m.Snapshot()
	res := TakeResult{
		ClassID:    class.ID,
		SessionID:  v.SessionID,
		Date:       date,
		Phase:      string(v.Phase),
		Present:    v.Summary.Present,
		Absent:     v.Summary.Absent,
		Recorded:   v.Summary.Recorded,
		RosterSize: v.Summary.RosterSize,
		Pending:    a.coord.Status().Pending,
	}
	if v.Current != nil {
		res.Next = v.Current.Name
	}
	for _, st := range v.Summary.Missing {
		res.Missing = append(res.Missing, st.Name)
	}
	return out.Success(res)
}
