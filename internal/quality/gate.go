// Package quality scores a frame before any detection work is spent on it.
package quality

import (
	"image"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat"

	"github.com/kozaktomas/facegate/internal/config"
)

// Issue messages reported by Assess.
const (
	IssueTooDark     = "too dark"
	IssueTooBright   = "too bright"
	IssueBlurry      = "blurry"
	IssueLowContrast = "low contrast"
	IssueTooSmall    = "too small"
)

// pointsPerCheck is the score contribution of each passing check.
const pointsPerCheck = 25

// Metrics are the raw grayscale measurements of a frame.
type Metrics struct {
	Brightness float64 `json:"brightness"` // mean intensity
	Sharpness  float64 `json:"sharpness"`  // variance of the Laplacian
	Contrast   float64 `json:"contrast"`   // standard deviation of intensity
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// Report is the verdict of the quality gate.
type Report struct {
	Score      int      `json:"score"`
	Acceptable bool     `json:"is_acceptable"`
	Issues     []string `json:"issues"`
	Metrics    Metrics  `json:"metrics"`
}

// Message joins the issues for user-facing errors.
func (r Report) Message() string {
	if len(r.Issues) == 0 {
		return "ok"
	}
	msg := r.Issues[0]
	for _, issue := range r.Issues[1:] {
		msg += ", " + issue
	}
	return msg
}

// Gate applies a QualityPolicy.
type Gate struct {
	policy config.QualityPolicy
}

// NewGate creates a gate with the given thresholds.
func NewGate(policy config.QualityPolicy) *Gate {
	return &Gate{policy: policy}
}

// Assess scores img. Each of the four checks (brightness, sharpness, contrast, size)
// is worth 25 points and the frame is acceptable at MinScore or above.
func (g *Gate) Assess(img image.Image) Report {
	m := Measure(img)
	p := g.policy
	r := Report{Metrics: m, Issues: []string{}}

	switch {
	case m.Brightness < p.MinBrightness:
		r.Issues = append(r.Issues, IssueTooDark)
	case m.Brightness > p.MaxBrightness:
		r.Issues = append(r.Issues, IssueTooBright)
	default:
		r.Score += pointsPerCheck
	}

	if m.Sharpness > p.MinSharpness {
		r.Score += pointsPerCheck
	} else {
		r.Issues = append(r.Issues, IssueBlurry)
	}

	if m.Contrast > p.MinContrast {
		r.Score += pointsPerCheck
	} else {
		r.Issues = append(r.Issues, IssueLowContrast)
	}

	if m.Width >= p.MinWidth && m.Height >= p.MinHeight {
		r.Score += pointsPerCheck
	} else {
		r.Issues = append(r.Issues, IssueTooSmall)
	}

	r.Acceptable = r.Score >= p.MinScore
	return r
}

// Measure computes grayscale brightness, Laplacian-variance sharpness and contrast.
// An empty image measures as all zeros.
func Measure(img image.Image) Metrics {
	b := img.Bounds()
	m := Metrics{Width: b.Dx(), Height: b.Dy()}
	if m.Width <= 0 || m.Height <= 0 {
		m.Width, m.Height = max(m.Width, 0), max(m.Height, 0)
		return m
	}

	gray := luminance(img)
	if len(gray) < 2 {
		m.Brightness = gray[0]
		return m
	}
	m.Brightness, m.Contrast = stat.MeanStdDev(gray, nil)
	m.Sharpness = stat.Variance(laplacian(gray, m.Width, m.Height), nil)
	return m
}

// luminance returns row-major gray levels using Rec. 601 weights.
func luminance(img image.Image) []float64 {
	g := imaging.Grayscale(img)
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := make([]float64, 0, w*h)
	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+w*4]
		for x := 0; x < w; x++ {
			out = append(out, float64(row[x*4]))
		}
	}
	return out
}

// reflect101 mirrors an out-of-range index without repeating the edge pixel.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	if i < 0 {
		return -i
	}
	if i >= n {
		return 2*n - i - 2
	}
	return i
}

// laplacian applies the 4-neighbour kernel [0 1 0; 1 -4 1; 0 1 0].
func laplacian(gray []float64, w, h int) []float64 {
	out := make([]float64, len(gray))
	at := func(x, y int) float64 {
		return gray[reflect101(y, h)*w+reflect101(x, w)]
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[y*w+x] = at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
		}
	}
	return out
}
