// Package cli implements economyctl, the operator tool for the economy database.
package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/quizarena/economy-api/internal/app"
	"github.com/quizarena/economy-api/internal/config"
)

// Exit codes.
const (
	ExitOK           = 0
	ExitDrift        = 1 // reconcile found mismatches
	ExitCommandError = 2
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitCommandError
}

var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags and the lazily opened services.
type RootOptions struct {
	Format string

	cfg  *config.Config
	app  *app.App
	open func(ctx context.Context, cfg *config.Config) (*app.App, error)
}

// Config loads the environment configuration once.
func (o *RootOptions) Config() *config.Config {
	if o.cfg == nil {
		o.cfg = config.Load()
	}
	return o.cfg
}

// App connects to the database on first use.
func (o *RootOptions) App(ctx context.Context) (*app.App, error) {
	if o.app != nil {
		return o.app, nil
	}
	a, err := o.open(ctx, o.Config())
	if err != nil {
		return nil, err
	}
	o.app = a
	return a, nil
}

func (o *RootOptions) close() {
	if o.app != nil {
		o.app.Close()
		o.app = nil
	}
}

// NewRootCommand creates the economyctl command tree.
func NewRootCommand() *cobra.Command {
	return newRoot(&RootOptions{open: app.New})
}

func newRoot(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "economyctl",
		Short: "Operate the quiz arena economy",
		Long:  "Schema setup, reconciliation, maintenance jobs and admin actions against the economy database.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			opts.close()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newReconcileCommand(opts))
	cmd.AddCommand(newJobsCommand(opts))
	cmd.AddCommand(newVoucherCommand(opts))
	cmd.AddCommand(newUnblockCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))
	cmd.AddCommand(newEconomyCommand(opts))

	return cmd
}
