package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus statistics and the active policy",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	eng, st, _, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("closing stores", zap.Error(err))
		}
	}()

	stats, err := eng.Stats(ctx)
	if err != nil {
		return fmt.Errorf("computing stats: %w", err)
	}

	if jsonOutput {
		return outputJSON(stats)
	}

	fmt.Printf("Identities:          %d\n", stats.TotalIdentities)
	fmt.Printf("Embeddings:          %d\n", stats.TotalEmbeddings)
	fmt.Printf("Avg per identity:    %.2f\n", stats.AvgPerIdentity)
	fmt.Printf("Match threshold:     %.2f\n", stats.Thresholds.RecognitionThreshold)
	fmt.Printf("Min confidence:      %.2f\n", stats.Thresholds.MinConfidence)
	fmt.Printf("Margin:              %.2f\n", stats.Thresholds.MarginThreshold)
	fmt.Printf("Verification frames: %d\n", stats.Thresholds.VerifyFrames)
	if len(stats.Identities) > 0 {
		fmt.Println("\nSamples per identity:")
		for _, s := range stats.Identities {
			fmt.Printf("  %6d  %d\n", s.Identity, s.Samples)
		}
	}
	return nil
}
