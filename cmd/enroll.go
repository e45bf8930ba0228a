package cmd

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/frame"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <image>",
	Short: "Enroll a face sample for an identity",
	Long: `Run an image through the quality gate, face locator, alignment and embedder
and store the resulting embedding for an identity.

Examples:
  # First sample of identity 42
  facegate enroll --identity 42 face.jpg

  # Extra sample for an identity that is already enrolled
  facegate enroll --identity 42 --method improvement face2.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Int64("identity", 0, "Identity ID to enroll (required)")
	enrollCmd.Flags().String("method", string(database.CaptureRegistration), "Capture method: registration or improvement")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
	_ = enrollCmd.MarkFlagRequired("identity")
}

// readImageFile decodes an image file with the same limits the API applies.
func readImageFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	img, err := frame.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	identity := mustGetInt64(cmd, "identity")
	jsonOutput := mustGetBool(cmd, "json")
	method, err := database.ParseCaptureMethod(mustGetString(cmd, "method"))
	if err != nil {
		return err
	}

	img, err := readImageFile(args[0])
	if err != nil {
		return err
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

	result, err := eng.Enroll(ctx, identity, img, method)
	if err != nil {
		return fmt.Errorf("enrollment rejected: %w", err)
	}

	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Printf("Enrolled identity %d\n", result.Identity)
	fmt.Printf("  Embedding ID:   %d\n", result.EmbeddingID)
	fmt.Printf("  Capture method: %s\n", result.Method)
	fmt.Printf("  Active samples: %d\n", result.SampleCount)
	fmt.Printf("  Quality score:  %d\n", result.Quality.Score)
	fmt.Printf("  Aligned:        %t\n", result.Aligned)
	return nil
}
