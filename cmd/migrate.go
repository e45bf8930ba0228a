package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/constants"
	"github.com/kozaktomas/facegate/internal/legacy"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <export.json>",
	Short: "Import face encodings from a legacy export",
	Long: `Import encodings exported from the previous recognition store.

Two layouts are accepted:
  {"user_encodings": {"<name>": [[...], ...]}}
  {"users": ["<name>", ...], "encodings": [[...], ...]}

Names are resolved against the identity store ignoring case and accents.
Every vector is stored with capture method "migrated" and no quality score.
Unknown names are reported and skipped.

Examples:
  facegate migrate --dry-run encodings.json
  facegate migrate --workers 8 encodings.json`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().Bool("dry-run", false, "Resolve names and validate vectors without writing")
	migrateCmd.Flags().Int("workers", constants.DefaultMigrationWorkers, "Number of names processed in parallel")
	migrateCmd.Flags().Bool("json", false, "Output as JSON")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	dryRun := mustGetBool(cmd, "dry-run")
	workers := mustGetInt(cmd, "workers")
	jsonOutput := mustGetBool(cmd, "json")

	exp, err := legacy.Load(args[0])
	if err != nil {
		return err
	}

	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("closing stores", zap.Error(err))
		}
	}()

	if !jsonOutput {
		fmt.Printf("Legacy export: %d name(s), %d encoding(s)\n", len(exp.Encodings), exp.Total())
		if dryRun {
			fmt.Println("Dry run: nothing will be written")
		}
	}

	migrator := legacy.NewMigrator(st.backend.Embeddings, st.backend.Identities, cfg.Policy.Match.EmbeddingDim,
		legacy.WithWorkers(workers),
		legacy.WithDryRun(dryRun),
		legacy.WithLogger(logger),
	)

	bar := newProgressBar(len(exp.Encodings), "Migrating", "names", jsonOutput)
	report, err := migrator.Run(ctx, exp, tick(bar))
	if bar != nil {
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("migration aborted: %w", err)
	}

	if jsonOutput {
		return outputJSON(report)
	}

	fmt.Printf("\nImported %d encoding(s) for %d identit(ies)\n", report.Imported, report.Identities)
	if report.Invalid > 0 {
		fmt.Printf("Skipped %d invalid encoding(s)\n", report.Invalid)
	}
	if len(report.Unknown) > 0 {
		fmt.Printf("Unknown names (%d):\n", len(report.Unknown))
		for _, name := range report.Unknown {
			fmt.Printf("  - %s\n", name)
		}
	}
	return nil
}
