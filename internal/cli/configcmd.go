package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rollbook/internal/config"
)

// ConfigPathResult is the output of `rollbook config init`.
type ConfigPathResult struct {
	Path string `json:"path"`
}

func (r ConfigPathResult) Text() string {
	return fmt.Sprintf("Wrote %s\n", r.Path)
}

// NewConfigCommand creates the config command and its subcommands.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Long: `Write the default configuration to path, or to the --config path, or
to ~/.rollbook/config.yaml. An existing file is never overwritten.

Example:
  rollbook config init
  rollbook config init ./rollbook.yaml`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Config
			if len(args) == 1 {
				path = args[0]
			}
			return runConfigInit(rootOpts, path, cmd)
		},
	}

	show := &cobra.Command{
		Use:           "show",
		Short:         "Print the effective configuration",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return report(out, err)
			}
			if cfg.Remote.Token != "" {
				cfg.Remote.Token = "********"
			}
			if out.Format == "json" {
				return out.Success(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return report(out, err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.AddCommand(initCmd, show)
	return cmd
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "rollbook.yaml"
	}
	return filepath.Join(home, ".rollbook", "config.yaml")
}

func runConfigInit(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	if path == "" {
		path = defaultConfigPath()
	}
	if err := config.WriteDefault(path); err != nil {
		return report(out, WrapExitError(ExitCommandError, "failed to write config", err))
	}
	return out.Success(ConfigPathResult{Path: path})
}
