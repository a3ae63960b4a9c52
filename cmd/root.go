package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/decision-engine/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "decision-engine",
	Short: "Adaptive transaction categorization engine",
	Long:  "Blends deterministic rules, an ML classifier, and an optional LLM signal into routed posting decisions, with evidence-driven rule learning and full auditability.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
