package facedetect

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/kozaktomas/facegate/internal/config"
)

// Face is the located face region of a frame.
type Face struct {
	Detection Detection       `json:"detection"`
	Region    image.Rectangle `json:"region"` // detection box expanded by the margin, clamped to the frame
	Crop      image.Image     `json:"-"`
}

// Locator picks the single best face from a Detector and crops it with a margin.
type Locator struct {
	detector      Detector
	minConfidence float64
	margin        int
}

// NewLocator creates a locator over detector.
func NewLocator(detector Detector, policy config.LocatorPolicy) *Locator {
	return &Locator{detector: detector, minConfidence: policy.MinConfidence, margin: policy.Margin}
}

// Locate returns the highest-confidence detection at or above the floor, or nil when
// there is none. Ties keep the detector's order. A region that clamps to zero area is
// treated as no face.
func (l *Locator) Locate(ctx context.Context, img image.Image) (*Face, error) {
	dets, err := l.detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}

	best, ok := pickBest(dets, l.minConfidence)
	if !ok {
		return nil, nil
	}

	region := ExpandBox(best.Box, l.margin, img.Bounds())
	if region.Empty() {
		return nil, nil
	}

	return &Face{
		Detection: best,
		Region:    region,
		Crop:      imaging.Crop(img, region),
	}, nil
}

func pickBest(dets []Detection, floor float64) (Detection, bool) {
	var best Detection
	found := false
	for _, d := range dets {
		if d.Confidence < floor {
			continue
		}
		if !found || d.Confidence > best.Confidence {
			best = d
			found = true
		}
	}
	return best, found
}
