package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "facegate",
	Short: "Face identity matching engine",
	Long: `Facegate enrolls face samples for known identities and recognizes
faces in camera frames against the enrolled corpus.

Frames pass a quality gate, a face locator and eye alignment before an
embedding is computed and matched with distance, confidence and margin gates.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadRuntime reads the configuration and builds the process logger.
func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg := config.Load()
	if err := cfg.Policy.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid policy: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}
	return cfg, logger, nil
}

// outputJSON writes data as indented JSON to stdout.
func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
