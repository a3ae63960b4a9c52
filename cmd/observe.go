package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	observeVendor     string
	observeAccount    string
	observeConfidence float64
)

var observeCmd = &cobra.Command{
	Use:   "observe",
	Short: "Record a human approval or correction as evidence",
	RunE: func(cmd *cobra.Command, args []string) error {
		if observeVendor == "" || observeAccount == "" {
			return eris.New("--vendor and --account are required")
		}
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Engine.ObserveApproval(cmd.Context(), observeVendor, observeAccount, observeConfidence); err != nil {
			return err
		}
		zap.L().Info("observation recorded",
			zap.String("vendor", observeVendor),
			zap.String("account", observeAccount),
			zap.Float64("confidence", observeConfidence),
		)
		return nil
	},
}

func init() {
	observeCmd.Flags().StringVar(&observeVendor, "vendor", "", "raw vendor string")
	observeCmd.Flags().StringVar(&observeAccount, "account", "", "approved posting account")
	observeCmd.Flags().Float64Var(&observeConfidence, "confidence", 1.0, "reviewer confidence in [0,1]")
	rootCmd.AddCommand(observeCmd)
}
