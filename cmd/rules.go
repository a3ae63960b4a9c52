package main

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/decision-engine/internal/export"
	"github.com/sells-group/decision-engine/internal/model"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and mutate the versioned rule set",
}

var rulesHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List the full version history",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		history, err := env.Rules.History(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	},
}

var rulesCandidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "List pending rule candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		cands, err := env.Evidence.Candidates(cmd.Context(), model.CandidatePending)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cands)
	},
}

var promoteAuthor string

var rulesPromoteCmd = &cobra.Command{
	Use:   "promote <candidate-id>...",
	Short: "Accept candidates into a new active rule version",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		v, err := env.Rules.Promote(cmd.Context(), args, promoteAuthor)
		if err != nil {
			return err
		}
		zap.L().Info("promoted", zap.Int64("version_id", v.VersionID), zap.Int("rules", len(v.Rules)))
		return nil
	},
}

var rejectReason string

var rulesRejectCmd = &cobra.Command{
	Use:   "reject <candidate-id>",
	Short: "Reject a pending candidate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()
		return env.Rules.Reject(cmd.Context(), args[0], rejectReason, promoteAuthor)
	},
}

var rulesRollbackCmd = &cobra.Command{
	Use:   "rollback <version-id>",
	Short: "Create a new active version copying an older one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "parse version id %q", args[0])
		}
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		v, err := env.Rules.Rollback(cmd.Context(), target, promoteAuthor)
		if err != nil {
			return err
		}
		zap.L().Info("rolled back",
			zap.Int64("target_version_id", target),
			zap.Int64("version_id", v.VersionID),
		)
		return nil
	},
}

var dryrunXLSX string

var rulesDryrunCmd = &cobra.Command{
	Use:   "dryrun <candidate-id>...",
	Short: "Simulate promoting candidates against recent decisions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Rules.DryRun(cmd.Context(), args)
		if err != nil {
			return err
		}
		if dryrunXLSX != "" {
			if err := export.WriteImpactReportXLSX(report, dryrunXLSX); err != nil {
				return err
			}
			zap.L().Info("impact report written", zap.String("path", dryrunXLSX))
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

var rulesDiffCmd = &cobra.Command{
	Use:   "diff <from-version> <to-version>",
	Short: "Show rule-level differences between two versions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "parse version id %q", args[0])
		}
		to, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "parse version id %q", args[1])
		}
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		diff, err := env.Rules.Diff(cmd.Context(), from, to)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(diff)
	},
}

var rulesExportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Write the active rule version as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		v, err := env.Rules.Active(cmd.Context())
		if err != nil {
			return err
		}
		return export.WriteVersionYAMLFile(v, args[0])
	},
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Create a new active version from a YAML rule file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		imported, err := export.ReadRulesYAMLFile(args[0])
		if err != nil {
			return err
		}
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		v, err := env.Rules.Import(cmd.Context(), imported, promoteAuthor)
		if err != nil {
			return err
		}
		zap.L().Info("imported rule version",
			zap.Int64("version_id", v.VersionID),
			zap.Int("rules", len(v.Rules)),
		)
		return nil
	},
}

func init() {
	rulesCmd.PersistentFlags().StringVar(&promoteAuthor, "author", "cli", "author recorded in the audit trail")
	rulesRejectCmd.Flags().StringVar(&rejectReason, "reason", "", "why the candidate is rejected")
	rulesDryrunCmd.Flags().StringVar(&dryrunXLSX, "xlsx", "", "also write the impact report to this .xlsx path")

	rulesCmd.AddCommand(rulesHistoryCmd, rulesCandidatesCmd, rulesPromoteCmd, rulesRejectCmd,
		rulesRollbackCmd, rulesDryrunCmd, rulesDiffCmd, rulesExportCmd, rulesImportCmd)
	rootCmd.AddCommand(rulesCmd)
}
