package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/scenarios"
	"github.com/roach88/bman/internal/staging"
	"github.com/roach88/bman/internal/workflow"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json" | "yaml"

	// Test seams. Nil means the production implementation.
	Runner scenarios.Runner
	Clock  docpack.Clock
	IDs    staging.IDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the bman CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bman",
		Short: "bman - verified man pages for CLI binaries",
		Long: "Drives a doc pack through validate, plan and apply until its man page\n" +
			"is backed by recorded scenario evidence.",
		SilenceUsage:  true,
		SilenceErrors: true, // main prints what the commands have not reported
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// packArg returns the doc pack argument at index i, defaulting to ".".
func packArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return "."
}

// checkArgs turns positional argument errors into command errors.
func checkArgs(v cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := v(cmd, args); err != nil {
			return WrapExitError(ExitCommandError, "invalid arguments", err)
		}
		return nil
	}
}

// formatter builds the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// logger writes to stderr: Debug and up with --verbose, Warn and up otherwise.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// orchestrator opens the pack at dir. An unreadable pack is a command error
// and has already been reported through out.
func (o *RootOptions) orchestrator(cmd *cobra.Command, out *OutputFormatter, dir string) (*workflow.Orchestrator, error) {
	root, err := docpack.Open(dir)
	if err != nil {
		return nil, out.FailCode(ExitCommandError, ErrCodeNotFound, err)
	}
	wopts := []workflow.Option{
		workflow.WithRootArg(dir),
		workflow.WithLogger(o.logger(cmd.ErrOrStderr())),
	}
	if o.Runner != nil {
		wopts = append(wopts, workflow.WithRunner(o.Runner))
	}
	if o.Clock != nil {
		wopts = append(wopts, workflow.WithClock(o.Clock))
	}
	if o.IDs != nil {
		wopts = append(wopts, workflow.WithIDs(o.IDs))
	}
	return workflow.New(root, wopts...), nil
}
