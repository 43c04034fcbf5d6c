package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quizarena/economy-api/internal/domain/reconcile"
	"github.com/quizarena/economy-api/internal/pkg/database"
)

type reconcileOptions struct {
	*RootOptions
	Repair  bool
	Archive bool
}

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the economy schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.App(ctx)
			if err != nil {
				return err
			}
			if err := database.ApplySchema(ctx, a.DB); err != nil {
				return err
			}
			return writef(cmd.OutOrStdout(), "schema applied")
		},
	}
}

func newReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &reconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare every cache with its log",
		Long: `Check balances, ledger chains, voucher counters, deposit sub-ledgers and
referral stats against the rows they are derived from.

Exit codes:
  0 - all checks passed
  1 - at least one check found mismatches
  2 - command error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Repair, "repair", false, "rebuild balances, voucher counters and referral stats first")
	cmd.Flags().BoolVar(&opts.Archive, "archive", false, "store the report in the configured archive")

	return cmd
}

func runReconcile(ctx context.Context, opts *reconcileOptions, cmd *cobra.Command) error {
	a, err := opts.App(ctx)
	if err != nil {
		return err
	}

	var report *reconcile.Report
	if opts.Repair {
		var res *reconcile.RepairResult
		res, report, err = a.Reconcile.Repair(ctx)
		if res != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "repaired balances=%d vouchers=%d referral_stats=%d\n",
				res.Balances, res.Vouchers, res.ReferralStats)
		}
	} else {
		report, err = a.Reconcile.Run(ctx)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		err = report.WriteJSON(out)
	} else {
		err = report.WriteText(out)
	}
	if err != nil {
		return err
	}

	if opts.Archive {
		key, err := a.Reconcile.Archive(ctx, report)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "archived %s\n", key)
	}

	if !report.OK() {
		return &ExitError{Code: ExitDrift, Err: fmt.Errorf("%d checks failed", report.Failed())}
	}
	return nil
}
