package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/intent-gate/intentgate/internal/config"
	"github.com/intent-gate/intentgate/internal/domain/intent"
	"github.com/intent-gate/intentgate/internal/service"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse the rule directories and report counts and errors",
	Long: `Parse every rule file under the configured directories and print
per-kind index entry counts plus any per-rule or file-level errors. Exits
non-zero when any file was discarded for structural errors.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	loader := service.NewLoaderService(cfg.Rules.Dir, cfg.Rules.SystemDirs, logger, nil)
	_, report := loader.Load(context.Background())

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "files read: %d\n", report.Files)
	for _, kind := range []intent.Kind{
		intent.KindActivity, intent.KindBroadcast, intent.KindService,
		intent.KindProvider, intent.KindPackage,
	} {
		fmt.Fprintf(out, "%-10s %d\n", kind.String()+":", report.Counts[kind])
	}

	for _, e := range report.RuleErrors {
		fmt.Fprintf(out, "rule error: %v\n", e)
	}
	for _, e := range report.FileErrors {
		fmt.Fprintf(out, "file error: %v\n", e)
	}

	if len(report.FileErrors) > 0 {
		return fmt.Errorf("%d rule file(s) discarded", len(report.FileErrors))
	}
	return nil
}
