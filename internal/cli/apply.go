package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bman/internal/scenarios"
	"github.com/roach88/bman/internal/workflow"
)

type applyOptions struct {
	*RootOptions
	rerunAll    bool
	rerunFailed bool
	rerunIDs    []string
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &applyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply [doc-pack]",
		Short: "Execute the planned actions and publish the outputs",
		Long: `Execute the planned actions inside a staging transaction.

Outputs are published only when every stage succeeds. A stage failure leaves
the pack untouched and keeps the staging tree under enrich/txns. A report
failure after publishing is recorded in the history with the outputs already
in place. A missing or stale lock or plan is refreshed first.`,
		Args: checkArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, packArg(args, 0), cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.rerunAll, "rerun-all", false, "run every scenario, ignoring cached results")
	cmd.Flags().BoolVar(&opts.rerunFailed, "rerun-failed", false, "rerun scenarios whose last run failed")
	cmd.Flags().StringArrayVar(&opts.rerunIDs, "rerun-scenario-id", nil, "rerun one scenario (repeatable)")

	return cmd
}

func runApply(opts *applyOptions, dir string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	if _, err := scenarios.ParseRunMode(opts.rerunAll, opts.rerunFailed); err != nil {
		return out.FailCode(ExitCommandError, ErrCodeGeneric, err)
	}
	o, err := opts.orchestrator(cmd, out, dir)
	if err != nil {
		return err
	}

	report, err := o.Apply(cmd.Context(), workflow.ApplyOptions{
		RerunAll:         opts.rerunAll,
		RerunFailed:      opts.rerunFailed,
		RerunScenarioIDs: opts.rerunIDs,
	})
	if err != nil {
		code := ErrorCode(err)
		if code == ErrCodeGeneric {
			code = ErrCodeApplyFailed
		}
		return out.FailCode(ExitFailure, code, err)
	}

	if out.Structured() {
		return out.Success(report)
	}
	fmt.Fprintf(out.Writer, "✓ applied txn %s\n", report.LastRun.TxnID)
	for _, a := range report.ExecutedActions {
		fmt.Fprintf(out.Writer, "executed: %s\n", a)
	}
	if s := report.Scenarios; s != nil {
		fmt.Fprintf(out.Writer, "scenarios: %d run, %d skipped, %d passed, %d failed\n",
			s.RunCount, s.SkippedCount, s.PassCount, s.FailCount)
	}
	for _, rel := range report.Published {
		fmt.Fprintf(out.Writer, "published: %s\n", rel)
	}
	for _, msg := range report.Warnings {
		fmt.Fprintf(out.Writer, "warning: %s\n", msg)
	}
	printRequirements(out.Writer, report.Requirements)
	printDecision(out.Writer, report.Decision, report.DecisionReason, report.NextAction)
	return nil
}
