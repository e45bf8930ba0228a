package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/facematch"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>...",
	Short: "Recognize the face in one or more images",
	Long: `Match each image against the enrolled corpus and print the decision.

With --verify the images are treated as consecutive frames of one
verification session; an identity is confirmed only when the last
FACE_VERIFY_FRAMES frames all matched it.

Examples:
  facegate recognize frame.jpg
  facegate recognize --verify f1.jpg f2.jpg f3.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Bool("verify", false, "Treat the images as frames of one verification session")
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
}

func printDecision(path string, d facematch.MatchDecision) {
	fmt.Printf("%s: %s", path, d.Outcome)
	if d.IsMatch() {
		fmt.Printf(" identity=%d", *d.Identity)
	}
	fmt.Printf(" confidence=%.4f", d.Confidence)
	if d.Best != nil {
		fmt.Printf(" best=%d@%.4f", d.Best.Identity, d.Best.Distance)
	}
	if d.RunnerUp != nil {
		fmt.Printf(" runner_up=%d@%.4f", d.RunnerUp.Identity, d.RunnerUp.Distance)
	}
	if d.Message != "" {
		fmt.Printf(" (%s)", d.Message)
	}
	fmt.Println()
}

func runRecognize(cmd *cobra.Command, args []string) error {
	verify := mustGetBool(cmd, "verify")
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

	session := uuid.NewString()
	var results []any

	for _, path := range args {
		img, err := readImageFile(path)
		if err != nil {
			return err
		}

		if !verify {
			rec, err := eng.Recognize(ctx, img)
			if err != nil {
				return fmt.Errorf("recognizing %s: %w", path, err)
			}
			if jsonOutput {
				results = append(results, rec)
				continue
			}
			printDecision(path, rec.MatchDecision)
			continue
		}

		v, err := eng.RecognizeVerified(ctx, session, img)
		if err != nil {
			return fmt.Errorf("recognizing %s: %w", path, err)
		}
		if jsonOutput {
			results = append(results, v)
			continue
		}
		printDecision(path, v.Decision)
		switch {
		case v.Verified:
			fmt.Printf("  verified identity %d (avg confidence %.4f)\n", *v.Identity, v.AvgConfidence)
		case v.FramesRemaining > 0:
			fmt.Printf("  %d more frame(s) needed\n", v.FramesRemaining)
		case v.Message != "":
			fmt.Printf("  %s\n", v.Message)
		}
	}

	if jsonOutput {
		return outputJSON(results)
	}
	return nil
}
