package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/engine"
)

// fakeEngine records calls and returns canned results.
type fakeEngine struct {
	enrollIdentity int64
	enrollMethod   database.CaptureMethod
	enrollResult   *engine.Enrollment
	enrollErr      error

	recognizeResult *engine.Recognition
	recognizeErr    error

	verifiedSession string
	verifiedResult  *engine.VerifiedRecognition

	resetSession string

	deactivated    int64
	deactivateN    int
	deactivateErr  error
	revokeResult   bool
	revokeErr      error
	countResult    int
	statsResult    *engine.Stats
	statsErr       error
	lastImageWidth int
}

func (f *fakeEngine) Enroll(ctx context.Context, identity int64, img image.Image, method database.CaptureMethod) (*engine.Enrollment, error) {
	f.enrollIdentity = identity
	f.enrollMethod = method
	f.lastImageWidth = img.Bounds().Dx()
	return f.enrollResult, f.enrollErr
}

func (f *fakeEngine) Recognize(ctx context.Context, img image.Image) (*engine.Recognition, error) {
	f.lastImageWidth = img.Bounds().Dx()
	return f.recognizeResult, f.recognizeErr
}

func (f *fakeEngine) RecognizeVerified(ctx context.Context, session string, img image.Image) (*engine.VerifiedRecognition, error) {
	f.verifiedSession = session
	return f.verifiedResult, nil
}

func (f *fakeEngine) ResetSession(session string) {
	f.resetSession = session
}

func (f *fakeEngine) Deactivate(ctx context.Context, identity int64) (int, error) {
	f.deactivated = identity
	return f.deactivateN, f.deactivateErr
}

func (f *fakeEngine) DeactivateEmbedding(ctx context.Context, embeddingID int64) (bool, error) {
	return f.revokeResult, f.revokeErr
}

func (f *fakeEngine) CountSamples(ctx context.Context, identity int64) (int, error) {
	return f.countResult, nil
}

func (f *fakeEngine) Stats(ctx context.Context) (*engine.Stats, error) {
	return f.statsResult, f.statsErr
}

// testPNG returns a small encoded frame.
func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 200, 255
	}
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

// jsonFrameRequest builds a JSON request carrying a base64 frame.
func jsonFrameRequest(t *testing.T, method, path string, body map[string]any) *http.Request {
	t.Helper()
	if _, ok := body["image"]; !ok {
		body["image"] = base64.StdEncoding.EncodeToString(testPNG(t, 40, 30))
	}
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", rec.Body.String(), err)
	}
}
