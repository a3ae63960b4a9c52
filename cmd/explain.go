package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var explainCmd = &cobra.Command{
	Use:   "explain <txn-id>",
	Short: "Show why a historical decision routed the way it did",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		trace, err := env.Explainer.Explain(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrapf(err, "explain %s", args[0])
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(trace)
	},
}

func init() {
	rootCmd.AddCommand(explainCmd)
}
