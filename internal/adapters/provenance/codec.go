package provenance

import (
	"fmt"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/ports"
	"github.com/kamal-hamza/cardforge/pkg/provenance"
)

// Codec adapts pkg/provenance to the ProvenanceCodec port. The project name
// is stored as the image author.
type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

// Ensure it implements the interface
var _ ports.ProvenanceCodec = (*Codec)(nil)

// Embed writes provenance into PNG or JPEG data. The mime type must agree
// with the bytes; a provider that mislabels its output is reported here.
func (c *Codec) Embed(data []byte, mimeType string, p domain.Provenance) ([]byte, error) {
	ext, ok := domain.ExtensionForMime(mimeType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", provenance.ErrUnsupportedFormat, mimeType)
	}
	switch format := provenance.Detect(data); {
	case ext == ".png" && format != provenance.FormatPNG,
		ext == ".jpg" && format != provenance.FormatJPEG:
		return nil, fmt.Errorf("%w: data does not match %s", provenance.ErrMalformed, mimeType)
	}

	return provenance.Embed(data, provenance.Metadata{
		Title:     p.Title,
		Prompt:    p.Prompt,
		Author:    p.ProjectName,
		CardID:    p.CardID,
		CardName:  p.CardName,
		Software:  p.Software,
		CreatedAt: p.CreatedAt,
	})
}

// Read returns the provenance stored in an image file
func (c *Codec) Read(path string) (*domain.Provenance, error) {
	m, err := provenance.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &domain.Provenance{
		Prompt:      m.Prompt,
		Title:       m.Title,
		ProjectName: m.Author,
		CardID:      m.CardID,
		CardName:    m.CardName,
		Software:    m.Software,
		CreatedAt:   m.CreatedAt,
		HasPrompt:   m.HasPrompt,
	}, nil
}
