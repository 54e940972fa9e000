package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rollbook/internal/domain"
)

// SignInOptions holds flags for the signin command.
type SignInOptions struct {
	*RootOptions
	ID      string
	Name    string
	Contact string
}

// SignInResult is the output of `rollbook signin`.
type SignInResult struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Optimistic bool   `json:"optimistic"`
}

func (r SignInResult) Text() string {
	if r.Optimistic {
		return fmt.Sprintf("Signed in as %s (offline; profile kept locally)\n", r.Name)
	}
	return fmt.Sprintf("Signed in as %s\n", r.Name)
}

// NewSignInCommand creates the signin command.
func NewSignInCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SignInOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Register the teacher using this device",
		Long: `Register the teacher with the remote and remember them locally.
Signing in as a different teacher clears the local cache.

Flags default to the teacher section of the config file.

Example:
  rollbook signin --id t-1 --name "Ms. Ayşe Demir"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSignIn(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "teacher id")
	cmd.Flags().StringVar(&opts.Name, "name", "", "teacher display name")
	cmd.Flags().StringVar(&opts.Contact, "contact", "", "contact address")

	return cmd
}

func runSignIn(opts *SignInOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := cmd.Context()

	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return report(out, err)
	}
	defer a.Close()

	t := domain.Teacher{
		ID:      firstNonEmpty(opts.ID, a.cfg.Teacher.ID),
		Name:    firstNonEmpty(opts.Name, a.cfg.Teacher.Name),
		Contact: firstNonEmpty(opts.Contact, a.cfg.Teacher.Contact),
	}
	res, err := a.coord.SignIn(ctx, t)
	if err != nil {
		return report(out, writeError("sign in", err))
	}
	return out.Success(SignInResult{
		ID:         res.Value.ID,
		Name:       res.Value.Name,
		Optimistic: res.Optimistic(),
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
