package cmd

import (
	"github.com/schollz/progressbar/v3"
)

// newProgressBar creates a progress bar, or nil if JSON output.
func newProgressBar(count int, description, unit string, jsonOutput bool) *progressbar.ProgressBar {
	if jsonOutput {
		return nil
	}
	return progressbar.NewOptions(count,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString(unit),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

// tick returns a progress callback advancing bar, or nil when there is no bar.
func tick(bar *progressbar.ProgressBar) func() {
	if bar == nil {
		return nil
	}
	return func() { _ = bar.Add(1) }
}
