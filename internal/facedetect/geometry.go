package facedetect

import (
	"image"
	"math"
)

// ExpandBox grows r by margin pixels on every side and clamps it to bounds.
// The result may be empty when r lies outside bounds.
func ExpandBox(r image.Rectangle, margin int, bounds image.Rectangle) image.Rectangle {
	return r.Inset(-margin).Intersect(bounds)
}

// RectFromCorners converts an [x1, y1, x2, y2] box to a rectangle.
// Fractional coordinates are widened to whole pixels.
func RectFromCorners(bbox []float64) (image.Rectangle, bool) {
	if len(bbox) != 4 {
		return image.Rectangle{}, false
	}
	for _, v := range bbox {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return image.Rectangle{}, false
		}
	}
	r := image.Rect(
		int(math.Floor(bbox[0])),
		int(math.Floor(bbox[1])),
		int(math.Ceil(bbox[2])),
		int(math.Ceil(bbox[3])),
	)
	return r, !r.Empty()
}

// Centroid returns the mean of pts as floating point coordinates.
func Centroid(pts []image.Point) (float64, float64) {
	if len(pts) == 0 {
		return 0, 0
	}
	var sx, sy float64
	for _, p := range pts {
		sx += float64(p.X)
		sy += float64(p.Y)
	}
	n := float64(len(pts))
	return sx / n, sy / n
}
