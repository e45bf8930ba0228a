// Package facedetect finds the face to work on and the eyes inside it.
package facedetect

import (
	"context"
	"image"
)

// Detection is one face candidate reported by a Detector.
type Detection struct {
	Box        image.Rectangle `json:"box"`
	Confidence float64         `json:"confidence"` // in [0, 1]
}

// EyeLandmarks holds the contour points of each eye, in the coordinates of the image
// they were computed on. A single pupil point per eye is a valid contour.
type EyeLandmarks struct {
	Left  []image.Point `json:"left_eye"`
	Right []image.Point `json:"right_eye"`
}

// Valid reports whether both eyes have at least one point.
func (l *EyeLandmarks) Valid() bool {
	return l != nil && len(l.Left) > 0 && len(l.Right) > 0
}

// Detector reports face candidates in detector order.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// LandmarkLocator finds eye landmarks in a face crop. It returns nil when none are found.
type LandmarkLocator interface {
	Landmarks(ctx context.Context, face image.Image) (*EyeLandmarks, error)
}
