package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// InitResult is the structured output of init.
type InitResult struct {
	DocPack string   `json:"doc_pack"`
	Written []string `json:"written"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init <binary> [doc-pack]",
		Short: "Seed a doc pack for a binary",
		Long: `Seed a doc pack for a binary.

Writes the pack manifest, a default config and a scenario plan holding a
single help scenario. Existing files are never overwritten. The doc pack
directory is created when it does not exist. Init fails when every file
already exists.`,
		Args: checkArgs(cobra.RangeArgs(1, 2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, args[0], packArg(args, 1), cmd)
		},
	}
	return cmd
}

func runInit(opts *RootOptions, binary, dir string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return out.FailCode(ExitCommandError, ErrCodeGeneric, err)
	}
	o, err := opts.orchestrator(cmd, out, dir)
	if err != nil {
		return err
	}

	written, err := o.Init(cmd.Context(), binary)
	if err != nil {
		return out.Fail(ExitFailure, err)
	}

	if out.Structured() {
		return out.Success(InitResult{DocPack: dir, Written: written})
	}
	for _, rel := range written {
		fmt.Fprintf(out.Writer, "✓ wrote %s\n", rel)
	}
	fmt.Fprintf(out.Writer, "next: bman validate %s\n", dir)
	return nil
}
