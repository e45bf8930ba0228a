// Package fingerprint talks to the face service that detects faces, finds eye
// landmarks and turns an aligned face into its numeric fingerprint (embedding).
package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/kozaktomas/facegate/internal/constants"
	"github.com/kozaktomas/facegate/internal/facedetect"
)

const (
	defaultServiceURL = "http://localhost:8000"
	maxUploadSide     = 1600 // frames larger than this are downscaled before upload
)

// Client calls the face service over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new face service client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultServiceURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: constants.FaceServiceTimeout},
	}
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// detectResponse represents the response from the detection endpoint
type detectResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
}

// landmarksResponse holds eye contours as [x, y] pairs
type landmarksResponse struct {
	LeftEye  [][2]float64 `json:"left_eye"`
	RightEye [][2]float64 `json:"right_eye"`
}

// embeddingResponse represents the response from the embedding endpoint
type embeddingResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float64 `json:"embedding"`
}

// encodeImage serializes img as PNG, downscaling frames wider or taller than maxSide.
// It returns the scale factor applied so callers can map coordinates back.
func encodeImage(img image.Image, maxSide int) ([]byte, float64, error) {
	scale := 1.0
	b := img.Bounds()
	if maxSide > 0 && (b.Dx() > maxSide || b.Dy() > maxSide) {
		resized := imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
		scale = float64(b.Dx()) / float64(resized.Bounds().Dx())
		img = resized
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, 0, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), scale, nil
}

// postMultipartImage constructs a multipart form with the image data and posts it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="face.png"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	return "application/octet-stream"
}

// Detect sends the frame to /detect and returns face candidates in service order.
func (c *Client) Detect(ctx context.Context, img image.Image) ([]facedetect.Detection, error) {
	data, scale, err := encodeImage(img, maxUploadSide)
	if err != nil {
		return nil, err
	}
	body, err := c.postMultipartImage(ctx, "/detect", data)
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	origin := img.Bounds().Min
	out := make([]facedetect.Detection, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		bbox := make([]float64, len(f.BBox))
		for i, v := range f.BBox {
			bbox[i] = v * scale
		}
		box, ok := facedetect.RectFromCorners(bbox)
		if !ok {
			continue
		}
		out = append(out, facedetect.Detection{
			Box:        box.Add(origin),
			Confidence: min(1, max(0, f.DetScore)),
		})
	}
	return out, nil
}

// Landmarks sends a face crop to /landmarks. Returns nil when the service finds no eyes.
func (c *Client) Landmarks(ctx context.Context, face image.Image) (*facedetect.EyeLandmarks, error) {
	data, _, err := encodeImage(face, 0)
	if err != nil {
		return nil, err
	}
	body, err := c.postMultipartImage(ctx, "/landmarks", data)
	if err != nil {
		return nil, err
	}

	var resp landmarksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	origin := face.Bounds().Min
	lm := &facedetect.EyeLandmarks{
		Left:  toPoints(resp.LeftEye, origin),
		Right: toPoints(resp.RightEye, origin),
	}
	if !lm.Valid() {
		return nil, nil
	}
	return lm, nil
}

func toPoints(pairs [][2]float64, origin image.Point) []image.Point {
	pts := make([]image.Point, 0, len(pairs))
	for _, p := range pairs {
		pts = append(pts, image.Pt(int(p[0]+0.5), int(p[1]+0.5)).Add(origin))
	}
	return pts
}

// Embed sends an aligned face to /embed. Returns nil without error when the service
// could not compute a vector for the face.
func (c *Client) Embed(ctx context.Context, face image.Image) ([]float64, error) {
	data, _, err := encodeImage(face, 0)
	if err != nil {
		return nil, err
	}
	body, err := c.postMultipartImage(ctx, "/embed", data)
	if err != nil {
		return nil, err
	}

	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, nil
	}
	return resp.Embedding, nil
}

// Health checks that the service answers on /health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("face service unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}
