package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/quizarena/economy-api/internal/config"
)

type economyView struct {
	InterestRate            string `json:"interest_rate"`
	DepositDurationDays     int    `json:"deposit_duration_days"`
	PenaltyRate             string `json:"penalty_rate"`
	MinDeposit              string `json:"min_deposit"`
	MaxDeposit              string `json:"max_deposit"`
	CommissionRate          string `json:"commission_rate"`
	RegistrationBonusAmount string `json:"registration_bonus_amount"`
	CompletedQuizThreshold  int    `json:"completed_quiz_threshold"`
}

func viewOf(e config.Economy) economyView {
	return economyView{
		InterestRate:            e.InterestRate.String(),
		DepositDurationDays:     e.DepositDurationDays,
		PenaltyRate:             e.PenaltyRate.String(),
		MinDeposit:              e.MinDeposit.StringFixed(2),
		MaxDeposit:              e.MaxDeposit.StringFixed(2),
		CommissionRate:          e.CommissionRate.String(),
		RegistrationBonusAmount: e.RegistrationBonusAmount.StringFixed(2),
		CompletedQuizThreshold:  e.CompletedQuizThreshold,
	}
}

func (v economyView) write(w io.Writer) error {
	return writef(w, `interest_rate             %s
deposit_duration_days     %d
penalty_rate              %s
min_deposit               %s
max_deposit               %s
commission_rate           %s
registration_bonus_amount %s
completed_quiz_threshold  %d`,
		v.InterestRate, v.DepositDurationDays, v.PenaltyRate, v.MinDeposit, v.MaxDeposit,
		v.CommissionRate, v.RegistrationBonusAmount, v.CompletedQuizThreshold)
}

func newEconomyCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "economy",
		Short: "Inspect the economy parameters",
	}

	// show and check never touch the database
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective parameters from the environment and ECONOMY_CONFIG_FILE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.Config()
			store, err := config.NewEconomyStore(cfg.Economy, cfg.EconomyFile)
			if err != nil {
				return err
			}
			v := viewOf(store.Load())
			return emit(cmd.OutOrStdout(), opts.Format, v, v.write)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check FILE",
		Short: "Validate an overlay file before reloading the server with SIGHUP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := config.Overlay(opts.Config().Economy, args[0])
			if err != nil {
				return err
			}
			v := viewOf(e)
			return emit(cmd.OutOrStdout(), opts.Format, v, v.write)
		},
	})

	return cmd
}
