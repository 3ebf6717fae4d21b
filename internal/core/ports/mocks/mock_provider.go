package mocks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/ports"
)

// MockImageProvider returns a tiny PNG per call. Calls listed in FailOn
// (1-based) return an error instead.
type MockImageProvider struct {
	mu       sync.Mutex
	calls    []ports.ImageRequest
	FailOn   map[int]error
	MimeType string
}

func NewMockImageProvider() *MockImageProvider {
	return &MockImageProvider{FailOn: map[int]error{}, MimeType: "image/png"}
}

var _ ports.ImageProvider = (*MockImageProvider)(nil)

func (m *MockImageProvider) Name() string { return "mock" }

func (m *MockImageProvider) Generate(ctx context.Context, req ports.ImageRequest) (*ports.ImageResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	n := len(m.calls)
	failErr, fail := m.FailOn[n]
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fail {
		if failErr == nil {
			failErr = fmt.Errorf("mock provider failure on call %d", n)
		}
		return nil, failErr
	}
	return &ports.ImageResponse{Data: TinyPNG(), MimeType: m.MimeType}, nil
}

// Calls returns the requests the provider has seen
func (m *MockImageProvider) Calls() []ports.ImageRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.ImageRequest(nil), m.calls...)
}

// TinyPNG encodes a 2x2 image
func TinyPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// ErrMockEmbed is returned by a failing MockProvenanceCodec
var ErrMockEmbed = errors.New("mock embed failure")

// MockProvenanceCodec records embeds and can be told to fail
type MockProvenanceCodec struct {
	mu        sync.Mutex
	FailEmbed bool
	Embedded  []domain.Provenance
	ReadValue *domain.Provenance
}

var _ ports.ProvenanceCodec = (*MockProvenanceCodec)(nil)

func (m *MockProvenanceCodec) Embed(data []byte, mimeType string, p domain.Provenance) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailEmbed {
		return nil, ErrMockEmbed
	}
	m.Embedded = append(m.Embedded, p)
	return data, nil
}

func (m *MockProvenanceCodec) Read(path string) (*domain.Provenance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadValue == nil {
		return &domain.Provenance{}, nil
	}
	v := *m.ReadValue
	return &v, nil
}
