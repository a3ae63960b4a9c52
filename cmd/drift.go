package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	driftFile       string
	driftNewRecords int
	driftAccDrop    float64
)

// driftInput is the JSON document the drift command consumes: per-feature
// baseline and current samples exported by the classifier's feature logger.
type driftInput struct {
	Baseline map[string][]float64 `json:"baseline"`
	Current  map[string][]float64 `json:"current"`
}

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Evaluate feature drift and trigger a retrain if warranted",
	RunE: func(cmd *cobra.Command, args []string) error {
		if driftFile == "" {
			return eris.New("--file is required")
		}
		data, err := os.ReadFile(driftFile)
		if err != nil {
			return eris.Wrapf(err, "read %s", driftFile)
		}
		var input driftInput
		if err := json.Unmarshal(data, &input); err != nil {
			return eris.Wrap(err, "parse drift input")
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Drift.Evaluate(cmd.Context(), input.Baseline, input.Current, driftAccDrop, driftNewRecords)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

func init() {
	driftCmd.Flags().StringVar(&driftFile, "file", "", "JSON file with baseline and current feature samples")
	driftCmd.Flags().IntVar(&driftNewRecords, "new-records", 0, "approved records since the last retrain")
	driftCmd.Flags().Float64Var(&driftAccDrop, "accuracy-drop", 0, "observed accuracy drop in percentage points")
	rootCmd.AddCommand(driftCmd)
}
