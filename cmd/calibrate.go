package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/decision-engine/internal/calibrate"
)

var (
	calibrateFile         string
	calibrateModelVersion string
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Refit the probability calibration from labeled outcomes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if calibrateFile == "" {
			return eris.New("--file is required")
		}
		data, err := os.ReadFile(calibrateFile)
		if err != nil {
			return eris.Wrapf(err, "read %s", calibrateFile)
		}
		var samples []calibrate.Sample
		if err := json.Unmarshal(data, &samples); err != nil {
			return eris.Wrap(err, "parse calibration samples")
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		m, err := env.Fitter.Refit(cmd.Context(), samples, calibrateModelVersion)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	},
}

func init() {
	calibrateCmd.Flags().StringVar(&calibrateFile, "file", "", "JSON file with {pred, correct} samples")
	calibrateCmd.Flags().StringVar(&calibrateModelVersion, "model-version", "", "classifier version the samples came from")
	rootCmd.AddCommand(calibrateCmd)
}
