package facedetect

import (
	"image"
	"math"
	"testing"
)

func TestExpandBox(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 100)
	tests := []struct {
		name   string
		box    image.Rectangle
		margin int
		want   image.Rectangle
	}{
		{"inside", image.Rect(40, 40, 60, 60), 10, image.Rect(30, 30, 70, 70)},
		{"clamped", image.Rect(0, 0, 20, 20), 10, image.Rect(0, 0, 30, 30)},
		{"outside", image.Rect(200, 200, 220, 220), 10, image.Rectangle{}},
		{"zero margin", image.Rect(5, 5, 10, 10), 0, image.Rect(5, 5, 10, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpandBox(tt.box, tt.margin, bounds)
			if !got.Eq(tt.want) {
				t.Errorf("ExpandBox(%v, %d) = %v, want %v", tt.box, tt.margin, got, tt.want)
			}
		})
	}
}

func TestRectFromCorners(t *testing.T) {
	tests := []struct {
		name   string
		bbox   []float64
		want   image.Rectangle
		wantOK bool
	}{
		{"integral", []float64{10, 20, 30, 40}, image.Rect(10, 20, 30, 40), true},
		{"fractional widens", []float64{10.4, 20.6, 29.2, 39.9}, image.Rect(10, 20, 30, 40), true},
		{"wrong length", []float64{1, 2, 3}, image.Rectangle{}, false},
		{"empty", []float64{10, 10, 10, 30}, image.Rectangle{}, false},
		{"nan", []float64{math.NaN(), 0, 10, 10}, image.Rectangle{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RectFromCorners(tt.bbox)
			if ok != tt.wantOK {
				t.Fatalf("RectFromCorners(%v) ok = %v, want %v", tt.bbox, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("RectFromCorners(%v) = %v, want %v", tt.bbox, got, tt.want)
			}
		})
	}
}

func TestCentroid(t *testing.T) {
	x, y := Centroid([]image.Point{{0, 0}, {4, 0}, {4, 2}, {0, 2}})
	if x != 2 || y != 1 {
		t.Errorf("expected (2, 1), got (%v, %v)", x, y)
	}
	x, y = Centroid(nil)
	if x != 0 || y != 0 {
		t.Errorf("expected origin for no points, got (%v, %v)", x, y)
	}
}

func TestEyeLandmarks_Valid(t *testing.T) {
	var nilLandmarks *EyeLandmarks
	if nilLandmarks.Valid() {
		t.Error("nil landmarks must be invalid")
	}
	if (&EyeLandmarks{Left: []image.Point{{1, 1}}}).Valid() {
		t.Error("one eye is not enough")
	}
	if !(&EyeLandmarks{Left: []image.Point{{1, 1}}, Right: []image.Point{{5, 1}}}).Valid() {
		t.Error("expected valid landmarks")
	}
}
