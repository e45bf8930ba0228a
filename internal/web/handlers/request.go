package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facegate/internal/constants"
	"github.com/kozaktomas/facegate/internal/frame"
)

// FrameRequest is the JSON body of enroll and recognize calls. Image is base64 or a data URL.
// The same fields are accepted as multipart form values, with the image in "file".
type FrameRequest struct {
	Identity      int64  `json:"identity,omitempty"`
	Image         string `json:"image"`
	CaptureMethod string `json:"capture_method,omitempty"`
	Session       string `json:"session,omitempty"`
}

// readFrame parses a JSON or multipart request and decodes its image.
func readFrame(w http.ResponseWriter, r *http.Request) (*FrameRequest, image.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return readMultipartFrame(r)
	}

	var req FrameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, nil, err
		}
		return nil, nil, errors.New(errInvalidRequestBody)
	}
	if req.Image == "" {
		return nil, nil, errors.New("image is required")
	}
	img, err := frame.DecodeBase64(req.Image)
	if err != nil {
		return nil, nil, err
	}
	return &req, img, nil
}

func readMultipartFrame(r *http.Request) (*FrameRequest, image.Image, error) {
	if err := r.ParseMultipartForm(constants.MaxMultipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, nil, err
		}
		return nil, nil, errors.New("failed to parse multipart form")
	}

	req := FrameRequest{
		CaptureMethod: r.FormValue("capture_method"),
		Session:       r.FormValue("session"),
	}
	if s := r.FormValue("identity"); s != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid identity %q", s)
		}
		req.Identity = id
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, nil, errors.New("file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, fmt.Errorf("reading upload: %w", err)
	}
	img, err := frame.Decode(data)
	if err != nil {
		return nil, nil, err
	}
	return &req, img, nil
}

// respondFrameError answers a request whose frame could not be read.
func respondFrameError(w http.ResponseWriter, err error) {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) || errors.Is(err, frame.ErrTooLarge) {
		respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	respondError(w, http.StatusBadRequest, err.Error())
}

// int64Param reads a positive integer URL parameter.
func int64Param(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
