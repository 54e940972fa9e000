package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/rollbook/internal/domain"
)

// NewStudentCommand creates the student command and its subcommands.
func NewStudentCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "student",
		Short: "Manage class rosters",
	}

	add := &cobra.Command{
		Use:   "add <class-id> <name>",
		Short: "Append a student to a class roster",
		Long: `Append a student to the end of a class roster. Capture walks the
roster in the order students were added.

Example:
  rollbook student add 0192b3c4-... "Lina Haddad"`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStudentAdd(rootOpts, args[0], args[1], cmd)
		},
	}

	remove := &cobra.Command{
		Use:           "remove <student-id>",
		Short:         "Remove a student from their roster",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStudentRemove(rootOpts, args[0], cmd)
		},
	}

	cmd.AddCommand(add, remove)
	return cmd
}

func runStudentAdd(opts *RootOptions, classID, name string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := cmd.Context()

	a, err := openApp(ctx, opts)
	if err != nil {
		return report(out, err)
	}
	defer a.Close()
	if _, err := a.requireTeacher(ctx); err != nil {
		return report(out, err)
	}

	res, err := a.coord.AddStudent(ctx, domain.StudentInput{ClassID: classID, Name: name})
	if err != nil {
		return report(out, writeError("add student", err))
	}
	return out.Success(writeResult("add student", res.Value.ID, res.Value.Name, res))
}

func runStudentRemove(opts *RootOptions, studentID string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := cmd.Context()

	a, err := openApp(ctx, opts)
	if err != nil {
		return report(out, err)
	}
	defer a.Close()
	if _, err := a.requireTeacher(ctx); err != nil {
		return report(out, err)
	}

	res, err := a.coord.DeleteStudent(ctx, studentID)
	if err != nil {
		return report(out, writeError("remove student", err))
	}
	return out.Success(writeResult("remove student", studentID, "", res))
}
