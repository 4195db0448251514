package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/uprightlabs/backend/internal/models"
)

// Detector produces body landmarks for a single frame image. Implementations
// must be safe for concurrent use.
type Detector interface {
	Detect(ctx context.Context, frame []byte) (*Result, error)
}

// Result is one inference from the pose detector. Landmarks are normalized to
// [0,1]; Pose and AnnotatedImage are optional pass-through fields from the
// inference service.
type Result struct {
	Detected       bool              `json:"detected"`
	Pose           string            `json:"pose,omitempty"`
	Landmarks      []models.Landmark `json:"landmarks,omitempty"`
	AnnotatedImage string            `json:"annotated_image,omitempty"`
}

// Client calls an external pose-inference service over HTTP. The engine
// treats the detector as a black box: raw image in, landmarks out.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a detector client for the given service base URL.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Detect posts the frame bytes to the inference service and decodes its
// landmark response.
func (c *Client) Detect(ctx context.Context, frame []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detector request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("detector returned non-200", zap.Int("status", resp.StatusCode), zap.ByteString("body", body))
		return nil, fmt.Errorf("detector status: %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode detector response: %w", err)
	}
	return &result, nil
}
