package cli

import (
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newJobsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Run maintenance jobs once",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.App(cmd.Context())
			if err != nil {
				return err
			}
			s, err := a.Scheduler()
			if err != nil {
				return err
			}
			names := s.Names()
			return emit(cmd.OutOrStdout(), opts.Format, names, func(w io.Writer) error {
				return writef(w, "%s", strings.Join(names, "\n"))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "run NAME...",
		Short:   "Run the named jobs now, in order",
		Example: "  economyctl jobs run maturity_sweep commission_backfill",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.App(ctx)
			if err != nil {
				return err
			}
			s, err := a.Scheduler()
			if err != nil {
				return err
			}
			for _, name := range args {
				if err := s.RunNow(ctx, name); err != nil {
					return err
				}
				if err := writef(cmd.OutOrStdout(), "%s done", name); err != nil {
					return err
				}
			}
			return nil
		},
	})

	return cmd
}
