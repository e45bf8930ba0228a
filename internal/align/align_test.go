package align

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/facedetect"
)

type stubLandmarks struct {
	lm  *facedetect.EyeLandmarks
	err error
}

func (s stubLandmarks) Landmarks(ctx context.Context, face image.Image) (*facedetect.EyeLandmarks, error) {
	return s.lm, s.err
}

func gray(w, h int, level uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = level, level, level, 255
	}
	return img
}

func defaultPreparer(l facedetect.LandmarkLocator) *Preparer {
	return NewPreparer(config.DefaultPolicy().Enhance, l)
}

func TestEnhance_GainAndBias(t *testing.T) {
	out := defaultPreparer(nil).Enhance(gray(20, 20, 100))

	c := out.NRGBAAt(10, 10)
	// 1.15 * 100 + 6 = 121
	assert.InDelta(t, 121, int(c.R), 1)
	assert.Equal(t, uint8(255), c.A)
}

func TestEnhance_Saturates(t *testing.T) {
	out := defaultPreparer(nil).Enhance(gray(20, 20, 250))

	assert.Equal(t, uint8(255), out.NRGBAAt(10, 10).R)
}

func TestEnhance_DoesNotModifyInput(t *testing.T) {
	in := gray(10, 10, 50)
	defaultPreparer(nil).Enhance(in)

	assert.Equal(t, uint8(50), in.NRGBAAt(5, 5).R)
}

func TestAlign_PassThroughWithoutLocator(t *testing.T) {
	in := gray(30, 30, 80)

	res, err := defaultPreparer(nil).Align(context.Background(), in)

	require.NoError(t, err)
	assert.False(t, res.Aligned)
	assert.Same(t, in, res.Image)
}

func TestAlign_PassThroughWithoutLandmarks(t *testing.T) {
	in := gray(30, 30, 80)

	res, err := defaultPreparer(stubLandmarks{}).Align(context.Background(), in)

	require.NoError(t, err)
	assert.False(t, res.Aligned)
	assert.Same(t, in, res.Image)
}

func TestAlign_RotatesToLevelEyes(t *testing.T) {
	lm := &facedetect.EyeLandmarks{
		Left:  []image.Point{{9, 19}, {11, 21}},
		Right: []image.Point{{29, 39}, {31, 41}},
	}
	in := gray(64, 48, 120)

	res, err := defaultPreparer(stubLandmarks{lm: lm}).Align(context.Background(), in)

	require.NoError(t, err)
	assert.True(t, res.Aligned)
	assert.InDelta(t, 45.0, res.Angle, 1e-9)
	assert.Equal(t, in.Bounds().Size(), res.Image.Bounds().Size())
}

func TestAlign_LocatorError(t *testing.T) {
	_, err := defaultPreparer(stubLandmarks{err: errors.New("boom")}).Align(context.Background(), gray(10, 10, 1))
	assert.Error(t, err)
}

func TestRotationMatrix_LevelsEyeLine(t *testing.T) {
	lx, ly := 10.0, 20.0
	rx, ry := 30.0, 40.0
	angle := math.Atan2(ry-ly, rx-lx) * 180 / math.Pi

	m := RotationMatrix(lx, ly, angle)

	px, py := Apply(m, lx, ly)
	assert.InDelta(t, lx, px, 1e-9, "center is fixed")
	assert.InDelta(t, ly, py, 1e-9, "center is fixed")

	_, qy := Apply(m, rx, ry)
	assert.InDelta(t, ly, qy, 1e-9, "right eye ends on the left eye's row")
}

func TestRotate_ZeroAngleKeepsPixels(t *testing.T) {
	in := gray(16, 16, 0)
	in.SetNRGBA(4, 7, color.NRGBA{R: 200, G: 200, B: 200, A: 255})

	out := Rotate(in, 8, 8, 0)

	assert.InDelta(t, 200, int(out.NRGBAAt(4, 7).R), 1)
	assert.InDelta(t, 0, int(out.NRGBAAt(5, 7).R), 1)
}

func TestRotate_NonZeroOrigin(t *testing.T) {
	in := gray(40, 40, 90).SubImage(image.Rect(10, 10, 30, 30))

	out := Rotate(in, 20, 20, 0)

	assert.Equal(t, image.Rect(0, 0, 20, 20), out.Bounds())
	assert.InDelta(t, 90, int(out.NRGBAAt(10, 10).R), 1)
}

func TestPrepare_EnhancesThenAligns(t *testing.T) {
	res, err := defaultPreparer(nil).Prepare(context.Background(), gray(20, 20, 100))

	require.NoError(t, err)
	c := res.Image.(*image.NRGBA).NRGBAAt(10, 10)
	assert.InDelta(t, 121, int(c.R), 1)
}
