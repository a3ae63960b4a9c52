package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/decision-engine/internal/model"
)

var (
	decideTxnID     string
	decideVendor    string
	decideMLProb    float64
	decideMLAccount string
	decideFile      string
	decideWorkers   int
)

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Evaluate one transaction, or a batch from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if decideFile != "" {
			data, err := os.ReadFile(decideFile)
			if err != nil {
				return eris.Wrapf(err, "read %s", decideFile)
			}
			var txns []model.Transaction
			if err := json.Unmarshal(data, &txns); err != nil {
				return eris.Wrap(err, "parse transactions")
			}
			decisions, err := env.Engine.EvaluateBatch(cmd.Context(), txns, decideWorkers)
			if err != nil {
				return err
			}
			return enc.Encode(decisions)
		}

		if decideTxnID == "" || decideVendor == "" {
			return eris.New("either --file or both --txn and --vendor are required")
		}
		d, err := env.Engine.Evaluate(cmd.Context(), &model.Transaction{
			ID:        decideTxnID,
			RawVendor: decideVendor,
			MLProb:    decideMLProb,
			MLAccount: decideMLAccount,
		})
		if err != nil {
			return err
		}
		return enc.Encode(d)
	},
}

func init() {
	decideCmd.Flags().StringVar(&decideTxnID, "txn", "", "transaction id")
	decideCmd.Flags().StringVar(&decideVendor, "vendor", "", "raw vendor string")
	decideCmd.Flags().Float64Var(&decideMLProb, "ml-prob", 0, "classifier probability")
	decideCmd.Flags().StringVar(&decideMLAccount, "ml-account", "", "classifier suggested account")
	decideCmd.Flags().StringVar(&decideFile, "file", "", "JSON file with an array of transactions")
	decideCmd.Flags().IntVar(&decideWorkers, "workers", 4, "batch evaluation concurrency")
	rootCmd.AddCommand(decideCmd)
}
