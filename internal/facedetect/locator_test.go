package facedetect

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/kozaktomas/facegate/internal/config"
)

type stubDetector struct {
	dets []Detection
	err  error
}

func (s stubDetector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	return s.dets, s.err
}

func frame(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func newLocator(dets ...Detection) *Locator {
	return NewLocator(stubDetector{dets: dets}, config.LocatorPolicy{MinConfidence: 0.6, Margin: 40})
}

func TestLocate_PicksHighestConfidence(t *testing.T) {
	l := newLocator(
		Detection{Box: image.Rect(10, 10, 60, 60), Confidence: 0.7},
		Detection{Box: image.Rect(200, 200, 300, 300), Confidence: 0.95},
	)

	face, err := l.Locate(context.Background(), frame(640, 480))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if face == nil {
		t.Fatal("expected a face")
	}
	if face.Detection.Confidence != 0.95 {
		t.Errorf("expected best detection, got %+v", face.Detection)
	}
	want := image.Rect(160, 160, 340, 340)
	if face.Region != want {
		t.Errorf("expected region %v, got %v", want, face.Region)
	}
	if face.Crop.Bounds().Dx() != 180 || face.Crop.Bounds().Dy() != 180 {
		t.Errorf("unexpected crop size %v", face.Crop.Bounds())
	}
}

func TestLocate_TiesKeepDetectorOrder(t *testing.T) {
	l := newLocator(
		Detection{Box: image.Rect(100, 100, 150, 150), Confidence: 0.8},
		Detection{Box: image.Rect(300, 300, 350, 350), Confidence: 0.8},
	)

	face, err := l.Locate(context.Background(), frame(640, 480))
	if err != nil || face == nil {
		t.Fatalf("expected a face, err=%v", err)
	}
	if face.Detection.Box.Min.X != 100 {
		t.Errorf("expected first detection to win the tie, got %v", face.Detection.Box)
	}
}

func TestLocate_BelowFloor(t *testing.T) {
	l := newLocator(Detection{Box: image.Rect(10, 10, 60, 60), Confidence: 0.59})

	face, err := l.Locate(context.Background(), frame(640, 480))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if face != nil {
		t.Errorf("expected no face, got %+v", face.Detection)
	}
}

func TestLocate_ClampsToFrame(t *testing.T) {
	l := newLocator(Detection{Box: image.Rect(0, 0, 50, 50), Confidence: 0.9})

	face, err := l.Locate(context.Background(), frame(100, 80))
	if err != nil || face == nil {
		t.Fatalf("expected a face, err=%v", err)
	}
	if face.Region != image.Rect(0, 0, 90, 80) {
		t.Errorf("unexpected clamped region %v", face.Region)
	}
}

func TestLocate_ZeroAreaRegion(t *testing.T) {
	l := newLocator(Detection{Box: image.Rect(1000, 1000, 1100, 1100), Confidence: 0.9})

	face, err := l.Locate(context.Background(), frame(200, 200))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if face != nil {
		t.Errorf("expected no face for a region outside the frame")
	}
}

func TestLocate_NoDetections(t *testing.T) {
	face, err := newLocator().Locate(context.Background(), frame(200, 200))
	if err != nil || face != nil {
		t.Errorf("expected nil face and nil error, got %v, %v", face, err)
	}
}

func TestLocate_DetectorError(t *testing.T) {
	l := NewLocator(stubDetector{err: errors.New("sidecar down")}, config.LocatorPolicy{MinConfidence: 0.6, Margin: 40})

	if _, err := l.Locate(context.Background(), frame(200, 200)); err == nil {
		t.Error("expected detector error to propagate")
	}
}
