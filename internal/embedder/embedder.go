// Package embedder talks to the face detection and embedding server.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/frame"
)

const (
	defaultEmbeddingURL = "http://localhost:8000"
	defaultTimeout      = 30 * time.Second
	maxResponseSize     = 16 << 20
)

var (
	// ErrDimensionMismatch is returned when the server produces vectors of a
	// different length than the store was configured for.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrBadResponse is returned for responses that cannot be interpreted.
	ErrBadResponse = errors.New("bad response from embedding server")
)

// Face is one detected face. Faces are returned in detection order.
type Face struct {
	Index     int
	Embedding []float32
	BBox      []float64 // [x1, y1, x2, y2]
	DetScore  float64
}

// Embedder detects faces in a frame and computes one embedding per face.
type Embedder interface {
	DetectAndEmbed(ctx context.Context, f frame.Frame) ([]Face, error)
}

// Client computes face embeddings using the embedding server.
type Client struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
}

// NewClient creates a client. dim is the expected embedding length; 0
// disables the check.
func NewClient(baseURL, model string, dim int) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		dim:     dim,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// Model returns the model name being used
func (c *Client) Model() string {
	return c.model
}

// Dim returns the expected embedding dimension.
func (c *Client) Dim() int {
	return c.dim
}

// faceDetection represents a single detected face
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"`
	DetScore  float64   `json:"det_score"`
}

// faceResponse represents the response from the face embedding endpoint
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// postMultipartImage constructs a multipart form with the image data and posts it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, f frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	format := f.Format
	if format == "" {
		format = frame.DetectFormat(f.Data)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="frame.%s"`, extension(format)))
	h.Set("Content-Type", frame.Frame{Format: format}.MIMEType())
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(f.Data); err != nil {
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

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}

// DetectAndEmbed detects faces and computes their embeddings. An image with
// no faces yields an empty slice and no error.
func (c *Client) DetectAndEmbed(ctx context.Context, f frame.Frame) ([]Face, error) {
	if len(f.Data) == 0 {
		return nil, fmt.Errorf("empty frame: %w", frame.ErrUnsupportedFormat)
	}

	body, err := c.postMultipartImage(ctx, "/embed/face", f)
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w: %w", ErrBadResponse, err)
	}

	faces := make([]Face, 0, len(faceResp.Faces))
	for i, det := range faceResp.Faces {
		if len(det.Embedding) == 0 {
			return nil, fmt.Errorf("face %d has an empty embedding: %w", i, ErrBadResponse)
		}
		if c.dim > 0 && len(det.Embedding) != c.dim {
			return nil, fmt.Errorf("face %d: got %d values, want %d: %w", i, len(det.Embedding), c.dim, ErrDimensionMismatch)
		}
		faces = append(faces, Face{
			Index:     det.FaceIndex,
			Embedding: det.Embedding,
			BBox:      det.BBox,
			DetScore:  det.DetScore,
		})
	}
	return faces, nil
}

func extension(format string) string {
	switch format {
	case frame.FormatJPEG, "":
		return "jpg"
	default:
		return format
	}
}
