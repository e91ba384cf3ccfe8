package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [doc-pack]",
		Short: "Resolve and hash the pack inputs into the lock",
		Long: `Validate the doc pack config and scenario catalog, then hash every
input into enrich/lock.json.

Plan and apply refuse to run against a lock whose inputs changed since
the last validate.`,
		Args: checkArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, packArg(args, 0), cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	o, err := opts.orchestrator(cmd, out, dir)
	if err != nil {
		return err
	}

	l, err := o.Validate(cmd.Context())
	if err != nil {
		return out.Fail(ExitFailure, err)
	}

	if out.Structured() {
		return out.Success(l)
	}
	fmt.Fprintf(out.Writer, "✓ lock written (%d inputs)\n", len(l.Inputs))
	fmt.Fprintf(out.Writer, "inputs_hash: %s\n", l.InputsHash)
	out.VerboseLog("inputs: %v", l.Inputs)
	return nil
}
