package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type planOptions struct {
	*RootOptions
	force bool
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &planOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan [doc-pack]",
		Short: "Evaluate requirements against the lock",
		Long: `Evaluate the requirements against a fresh lock and write the planned
actions to enrich/plan.out.json.

Without --force a missing or stale lock is an error.`,
		Args: checkArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, packArg(args, 0), cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "plan despite a missing or stale lock")

	return cmd
}

func runPlan(opts *planOptions, dir string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	o, err := opts.orchestrator(cmd, out, dir)
	if err != nil {
		return err
	}

	p, err := o.Plan(cmd.Context(), opts.force)
	if err != nil {
		return out.Fail(ExitFailure, err)
	}

	if out.Structured() {
		return out.Success(p)
	}
	printRequirements(out.Writer, p.Requirements)
	if len(p.PlannedActions) == 0 {
		fmt.Fprintln(out.Writer, "planned: none")
	}
	for _, a := range p.PlannedActions {
		fmt.Fprintf(out.Writer, "planned: %s\n", a)
	}
	printDecision(out.Writer, p.Decision, p.DecisionReason, p.NextAction)
	return nil
}
