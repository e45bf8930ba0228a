package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/audit"
	"github.com/kozaktomas/facegate/internal/constants"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Find pairs of identities whose samples are confusable",
	Long: `Search the nearest neighbors of every active embedding and report pairs of
different identities closer than the match threshold. Such pairs point to
duplicate or mislabeled enrollments.

Neighbors come from an in-memory HNSW graph, or from pgvector when the
PostgreSQL store is configured and --pgvector is set.`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().Int("neighbors", constants.DefaultAuditNeighbors, "Neighbors searched per embedding")
	auditCmd.Flags().Int("workers", constants.DefaultAuditWorkers, "Number of parallel searches")
	auditCmd.Flags().Bool("pgvector", false, "Search neighbors in PostgreSQL instead of an in-memory graph")
	auditCmd.Flags().Int("limit", 0, "Show at most this many pairs (0 = all)")
	auditCmd.Flags().Bool("json", false, "Output as JSON")
}

func runAudit(cmd *cobra.Command, args []string) error {
	neighbors := mustGetInt(cmd, "neighbors")
	workers := mustGetInt(cmd, "workers")
	usePG := mustGetBool(cmd, "pgvector")
	limit := mustGetInt(cmd, "limit")
	jsonOutput := mustGetBool(cmd, "json")

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

	corpus, err := st.backend.Embeddings.AllActive(ctx)
	if err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}
	if len(corpus) == 0 {
		fmt.Println("No active embeddings")
		return nil
	}

	var searcher audit.NeighborSearcher
	switch {
	case usePG && st.searcher != nil:
		searcher = st.searcher
	case usePG:
		return fmt.Errorf("--pgvector needs STORE_BACKEND=postgres, got %q", cfg.Store.Backend)
	default:
		if !jsonOutput {
			fmt.Printf("Building HNSW graph over %d embeddings...\n", len(corpus))
		}
		searcher = audit.IndexCorpus(corpus)
	}

	threshold := cfg.Policy.Match.Threshold
	auditor := audit.New(searcher, threshold,
		audit.WithNeighbors(neighbors),
		audit.WithWorkers(workers),
		audit.WithLogger(logger),
	)

	bar := newProgressBar(len(corpus), "Searching neighbors", "embeddings", jsonOutput)
	conflicts, err := auditor.Conflicts(ctx, corpus, tick(bar))
	if bar != nil {
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("audit failed: %w", err)
	}
	if limit > 0 && len(conflicts) > limit {
		conflicts = conflicts[:limit]
	}

	if jsonOutput {
		return outputJSON(conflicts)
	}

	if len(conflicts) == 0 {
		fmt.Printf("\nNo identity pairs closer than %.2f\n", threshold)
		return nil
	}
	fmt.Printf("\n%d identity pair(s) closer than %.2f:\n", len(conflicts), threshold)
	for _, c := range conflicts {
		fmt.Printf("  %6d ~ %-6d  distance %.4f  (embeddings %d, %d)\n",
			c.IdentityA, c.IdentityB, c.Distance, c.EmbeddingA, c.EmbeddingB)
	}
	return nil
}
