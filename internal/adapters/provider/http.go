package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kamal-hamza/cardforge/internal/core/ports"
)

// ErrMissingKey is returned when a request reaches the HTTP provider
// without credentials
var ErrMissingKey = errors.New("no API key supplied")

// HTTPClient posts generation requests to a JSON endpoint
type HTTPClient struct {
	Endpoint string
	Model    string
	HTTP     *http.Client
}

func NewHTTPClient(endpoint, model string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		Endpoint: endpoint,
		Model:    model,
		HTTP:     &http.Client{Timeout: timeout},
	}
}

// Ensure it implements the interface
var _ ports.ImageProvider = (*HTTPClient)(nil)

type generateRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio,omitempty"`
	Resolution  string `json:"resolution,omitempty"`
	Model       string `json:"model,omitempty"`
}

type generateResponse struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
	Error    string `json:"error,omitempty"`
}

func (c *HTTPClient) Name() string { return "http" }

func (c *HTTPClient) Generate(ctx context.Context, req ports.ImageRequest) (*ports.ImageResponse, error) {
	if req.APIKey == "" {
		return nil, ErrMissingKey
	}

	b, err := json.Marshal(generateRequest{
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		Resolution:  req.Resolution,
		Model:       c.Model,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("image request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("image request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("image response: %w", err)
	}

	var out generateResponse
	decodeErr := json.Unmarshal(body, &out)
	if resp.StatusCode >= 400 {
		if decodeErr == nil && out.Error != "" {
			return nil, fmt.Errorf("image service error (status %d): %s", resp.StatusCode, out.Error)
		}
		return nil, fmt.Errorf("image service error (status %d)", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("image decode: %w", decodeErr)
	}

	data, err := base64.StdEncoding.DecodeString(out.Data)
	if err != nil {
		return nil, fmt.Errorf("image decode: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("image service returned no data")
	}
	return &ports.ImageResponse{Data: data, MimeType: out.MimeType}, nil
}
