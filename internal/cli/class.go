package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rollbook/internal/coordinator"
	"github.com/roach88/rollbook/internal/domain"
)

// WriteResult is the output of a single write command.
type WriteResult struct {
	Op              string `json:"op"`
	ID              string `json:"id"`
	Name            string `json:"name,omitempty"`
	State           string `json:"state"`
	PendingActionID string `json:"pendingActionId,omitempty"`
}

func (r WriteResult) Text() string {
	label := r.ID
	if r.Name != "" {
		label = fmt.Sprintf("%s (%s)", r.Name, r.ID)
	}
	switch r.State {
	case string(coordinator.Optimistic):
		return fmt.Sprintf("%s: %s saved offline, queued as %s\n", r.Op, label, r.PendingActionID)
	case string(coordinator.Skipped):
		return fmt.Sprintf("%s: %s not found locally, nothing to do\n", r.Op, label)
	}
	return fmt.Sprintf("%s: %s\n", r.Op, label)
}

func writeResult[T any](op, id, name string, res coordinator.Result[T]) WriteResult {
	return WriteResult{
		Op:              op,
		ID:              id,
		Name:            name,
		State:           string(res.State),
		PendingActionID: res.PendingActionID,
	}
}

// ClassList is the output of `rollbook class list`.
type ClassList struct {
	Classes []ClassDetail `json:"classes"`
}

// ClassDetail is a class with its roster.
type ClassDetail struct {
	ClassLine
	Roster []StudentLine `json:"roster"`
}

// StudentLine is one roster entry.
type StudentLine struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (l ClassList) Text() string {
	if len(l.Classes) == 0 {
		return "No classes\n"
	}
	var b strings.Builder
	for _, c := range l.Classes {
		b.WriteString(c.line() + "\n")
		for i, s := range c.Roster {
			fmt.Fprintf(&b, "  %2d. %s  %s\n", i+1, s.Name, s.ID)
		}
	}
	return b.String()
}

// ClassOptions holds flags for the class subcommands.
type ClassOptions struct {
	*RootOptions
	Section string
}

// NewClassCommand creates the class command and its subcommands.
func NewClassCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClassOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "class",
		Short: "Manage classes",
	}

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a class",
		Long: `Create a class owned by the signed-in teacher. Offline, the class is
created under a temporary id that is replaced on the next sync.

Example:
  rollbook class add "Grade 5 Mathematics" --section B`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassAdd(opts, args[0], cmd)
		},
	}
	add.Flags().StringVar(&opts.Section, "section", "", "class section")

	rename := &cobra.Command{
		Use:           "rename <class-id> <name>",
		Short:         "Rename a class",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassRename(opts, args[0], args[1], cmd)
		},
	}
	rename.Flags().StringVar(&opts.Section, "section", "", "class section")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List cached classes with their rosters",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassList(opts, cmd)
		},
	}

	remove := &cobra.Command{
		Use:           "remove <class-id>",
		Short:         "Delete a class and its sessions",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassRemove(opts, args[0], cmd)
		},
	}

	cmd.AddCommand(add, rename, list, remove)
	return cmd
}

func runClassAdd(opts *ClassOptions, name string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := cmd.Context()

	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return report(out, err)
	}
	defer a.Close()
	if _, err := a.requireTeacher(ctx); err != nil {
		return report(out, err)
	}

	res, err := a.coord.CreateClass(ctx, domain.ClassInput{Name: name, Section: opts.Section})
	if err != nil {
		return report(out, writeError("create class", err))
	}
	return out.Success(writeResult("create class", res.Value.ID, res.Value.Name, res))
}

func runClassRename(opts *ClassOptions, classID, name string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := cmd.Context()

	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return report(out, err)
	}
	defer a.Close()
	if _, err := a.requireTeacher(ctx); err != nil {
		return report(out, err)
	}

	res, err := a.coord.UpdateClass(ctx, classID, domain.ClassInput{Name: name, Section: opts.Section})
	if err != nil {
		return report(out, writeError("update class", err))
	}
	return out.Success(writeResult("update class", res.Value.ID, res.Value.Name, res))
}

func runClassList(opts *ClassOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	a, err := openApp(cmd.Context(), opts.RootOptions)
	if err != nil {
		return report(out, err)
	}
	defer a.Close()

	list := ClassList{Classes: []ClassDetail{}}
	for _, c := range a.coord.Classes() {
		d := ClassDetail{ClassLine: classLine(c, a.coord.Unsynced(c.ID)), Roster: []StudentLine{}}
		for _, s := range c.Students {
			d.Roster = append(d.Roster, StudentLine{ID: s.ID, Name: s.Name})
		}
		list.Classes = append(list.Classes, d)
	}
	return out.Success(list)
}

func runClassRemove(opts *ClassOptions, classID string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := cmd.Context()

	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return report(out, err)
	}
	defer a.Close()
	if _, err := a.requireTeacher(ctx); err != nil {
		return report(out, err)
	}

	res, err := a.coord.DeleteClass(ctx, classID)
	if err != nil {
		return report(out, writeError("delete class", err))
	}
	return out.Success(writeResult("delete class", classID, "", res))
}
