package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var deactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Soft-delete the embeddings of an identity or a single embedding",
	Long: `Mark embeddings inactive so they no longer take part in matching.
Rows are kept for audit.

Examples:
  # Remove every sample of identity 42
  facegate deactivate --identity 42

  # Revoke one embedding
  facegate deactivate --embedding 1017`,
	RunE: runDeactivate,
}

func init() {
	rootCmd.AddCommand(deactivateCmd)

	deactivateCmd.Flags().Int64("identity", 0, "Identity whose embeddings are deactivated")
	deactivateCmd.Flags().Int64("embedding", 0, "Single embedding to revoke")
	deactivateCmd.MarkFlagsMutuallyExclusive("identity", "embedding")
	deactivateCmd.MarkFlagsOneRequired("identity", "embedding")
}

func runDeactivate(cmd *cobra.Command, args []string) error {
	identity := mustGetInt64(cmd, "identity")
	embeddingID := mustGetInt64(cmd, "embedding")
	if identity < 0 || embeddingID < 0 {
		return errors.New("IDs must be positive")
	}

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

	if embeddingID > 0 {
		changed, err := eng.DeactivateEmbedding(ctx, embeddingID)
		if err != nil {
			return fmt.Errorf("revoking embedding %d: %w", embeddingID, err)
		}
		if changed {
			fmt.Printf("Embedding %d revoked\n", embeddingID)
		} else {
			fmt.Printf("Embedding %d was already inactive\n", embeddingID)
		}
		return nil
	}

	n, err := eng.Deactivate(ctx, identity)
	if err != nil {
		return fmt.Errorf("deactivating identity %d: %w", identity, err)
	}
	fmt.Printf("Deactivated %d embedding(s) of identity %d\n", n, identity)
	return nil
}
