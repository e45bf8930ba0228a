// Package align normalizes a face crop before it is embedded: a light denoise and
// exposure rescale, then a 2D rotation that levels the eyes.
package align

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/facedetect"
)

// Result is a prepared face together with how it was aligned.
type Result struct {
	Image   image.Image
	Aligned bool    // false when no landmarks were found and the crop passed through
	Angle   float64 // rotation applied, in degrees
}

// Preparer enhances and aligns face crops.
type Preparer struct {
	policy    config.EnhancePolicy
	landmarks facedetect.LandmarkLocator // nil disables alignment
}

// NewPreparer creates a preparer. landmarks may be nil.
func NewPreparer(policy config.EnhancePolicy, landmarks facedetect.LandmarkLocator) *Preparer {
	return &Preparer{policy: policy, landmarks: landmarks}
}

// Prepare enhances face, then aligns the enhanced crop.
func (p *Preparer) Prepare(ctx context.Context, face image.Image) (Result, error) {
	return p.Align(ctx, p.Enhance(face))
}

// Enhance blurs face slightly and applies out = |gain*in + bias| saturated to [0, 255].
func (p *Preparer) Enhance(face image.Image) *image.NRGBA {
	img := imaging.Clone(face)
	if p.policy.BlurSigma > 0 {
		img = imaging.Blur(img, p.policy.BlurSigma)
	}

	var lut [256]uint8
	for i := range lut {
		lut[i] = saturate(math.Abs(p.policy.Gain*float64(i) + p.policy.Bias))
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: lut[c.R], G: lut[c.G], B: lut[c.B], A: c.A}
	})
}

func saturate(v float64) uint8 {
	v = math.Round(v)
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return uint8(v)
}

// Align rotates face about the left-eye centroid so the eye line becomes horizontal.
// Without a landmark locator, or when it finds no eyes, face is returned unchanged.
func (p *Preparer) Align(ctx context.Context, face image.Image) (Result, error) {
	if p.landmarks == nil {
		return Result{Image: face}, nil
	}

	lm, err := p.landmarks.Landmarks(ctx, face)
	if err != nil {
		return Result{}, fmt.Errorf("locating landmarks: %w", err)
	}
	if !lm.Valid() {
		return Result{Image: face}, nil
	}

	lx, ly := facedetect.Centroid(lm.Left)
	rx, ry := facedetect.Centroid(lm.Right)
	angle := math.Atan2(ry-ly, rx-lx) * 180 / math.Pi

	return Result{Image: Rotate(face, lx, ly, angle), Aligned: true, Angle: angle}, nil
}

// RotationMatrix returns the affine map rotating by angle degrees about (cx, cy), in
// image coordinates where y grows downward. It maps source points to destination points.
func RotationMatrix(cx, cy, angle float64) f64.Aff3 {
	rad := angle * math.Pi / 180
	a, b := math.Cos(rad), math.Sin(rad)
	return f64.Aff3{
		a, b, (1-a)*cx - b*cy,
		-b, a, b*cx + (1-a)*cy,
	}
}

// Rotate applies RotationMatrix to img with bilinear sampling. The output keeps the
// input size; pixels with no source are opaque black.
func Rotate(img image.Image, cx, cy, angle float64) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	// Work in zero-origin coordinates so crops with a non-zero origin rotate correctly.
	m := RotationMatrix(cx-float64(b.Min.X), cy-float64(b.Min.Y), angle)
	m[2] -= m[0]*float64(b.Min.X) + m[1]*float64(b.Min.Y)
	m[5] -= m[3]*float64(b.Min.X) + m[4]*float64(b.Min.Y)

	draw.BiLinear.Transform(dst, m, img, b, draw.Src, nil)
	return dst
}

// Apply maps a point through m.
func Apply(m f64.Aff3, x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}
