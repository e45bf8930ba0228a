package facedetect

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	pigo "github.com/esimov/pigo/core"
)

// Cascade file names looked up in the cascade directory.
const (
	FaceCascadeFile   = "facefinder"
	PuplocCascadeFile = "puploc"
)

// pigoFullConfidenceQ is the cascade score treated as certain detection.
const pigoFullConfidenceQ = 100.0

// PigoDetector is an in-process Detector and LandmarkLocator built on pigo cascades.
type PigoDetector struct {
	classifier *pigo.Pigo
	puploc     *pigo.PuplocCascade // nil disables landmarks
	minSize    int
	maxSize    int
}

// NewPigoDetector loads the face cascade, and the pupil cascade when present, from dir.
func NewPigoDetector(dir string) (*PigoDetector, error) {
	faceBytes, err := os.ReadFile(filepath.Join(dir, FaceCascadeFile))
	if err != nil {
		return nil, fmt.Errorf("reading face cascade: %w", err)
	}
	classifier, err := pigo.NewPigo().Unpack(faceBytes)
	if err != nil {
		return nil, fmt.Errorf("unpacking face cascade: %w", err)
	}

	d := &PigoDetector{classifier: classifier, minSize: 60, maxSize: 1000}

	pupBytes, err := os.ReadFile(filepath.Join(dir, PuplocCascadeFile))
	switch {
	case err == nil:
		plc, err := pigo.NewPuplocCascade().UnpackCascade(pupBytes)
		if err != nil {
			return nil, fmt.Errorf("unpacking pupil cascade: %w", err)
		}
		d.puploc = plc
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("reading pupil cascade: %w", err)
	}

	return d, nil
}

func imageParams(img image.Image) pigo.ImageParams {
	src := pigo.ImgToNRGBA(img)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()
	return pigo.ImageParams{
		Pixels: pigo.RgbToGrayscale(src),
		Rows:   rows,
		Cols:   cols,
		Dim:    cols,
	}
}

func (d *PigoDetector) run(params pigo.ImageParams) []pigo.Detection {
	cParams := pigo.CascadeParams{
		MinSize:     d.minSize,
		MaxSize:     min(d.maxSize, max(params.Rows, params.Cols)),
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: params,
	}
	dets := d.classifier.RunCascade(cParams, 0.0)
	return d.classifier.ClusterDetections(dets, 0.2)
}

// Detect runs the face cascade over img.
func (d *PigoDetector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	origin := img.Bounds().Min
	raw := d.run(imageParams(img))

	out := make([]Detection, 0, len(raw))
	for _, det := range raw {
		half := det.Scale / 2
		box := image.Rect(det.Col-half, det.Row-half, det.Col+half, det.Row+half).Add(origin)
		out = append(out, Detection{
			Box:        box,
			Confidence: min(1, max(0, float64(det.Q)/pigoFullConfidenceQ)),
		})
	}
	return out, nil
}

// Landmarks locates both pupils in a face crop. Returns nil when the pupil cascade is
// not loaded or no face is found in the crop.
func (d *PigoDetector) Landmarks(ctx context.Context, face image.Image) (*EyeLandmarks, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.puploc == nil {
		return nil, nil
	}

	params := imageParams(face)
	dets := d.run(params)
	if len(dets) == 0 {
		return nil, nil
	}
	best := dets[0]
	for _, det := range dets[1:] {
		if det.Q > best.Q {
			best = det
		}
	}

	scale := float32(best.Scale)
	left := d.puploc.RunDetector(pigo.Puploc{
		Row:      best.Row - int(0.075*scale),
		Col:      best.Col - int(0.175*scale),
		Scale:    scale * 0.25,
		Perturbs: 50,
	}, params, 0.0, false)
	right := d.puploc.RunDetector(pigo.Puploc{
		Row:      best.Row - int(0.075*scale),
		Col:      best.Col + int(0.185*scale),
		Scale:    scale * 0.25,
		Perturbs: 50,
	}, params, 0.0, false)

	if left == nil || right == nil || left.Row <= 0 || left.Col <= 0 || right.Row <= 0 || right.Col <= 0 {
		return nil, nil
	}

	origin := face.Bounds().Min
	return &EyeLandmarks{
		Left:  []image.Point{image.Pt(left.Col, left.Row).Add(origin)},
		Right: []image.Point{image.Pt(right.Col, right.Row).Add(origin)},
	}, nil
}
