// Package provenance embeds generation details into image files and reads
// them back, so the image itself is the record of how it was made.
package provenance

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrUnsupportedFormat is returned for formats without an embedding strategy
var ErrUnsupportedFormat = errors.New("unsupported image format for metadata")

// ErrMalformed is returned when the container structure cannot be parsed
var ErrMalformed = errors.New("malformed image data")

// Standard PNG keywords
const (
	KeyTitle        = "Title"
	KeyDescription  = "Description"
	KeyAuthor       = "Author"
	KeyCreationTime = "Creation Time"
	KeySoftware     = "Software"
	KeyComment      = "Comment"
)

// Metadata represents the provenance tags of an image
type Metadata struct {
	Title     string    `json:"title,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	Author    string    `json:"author,omitempty"`
	CardID    string    `json:"cardId,omitempty"`
	CardName  string    `json:"cardName,omitempty"`
	Software  string    `json:"software,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`

	// HasPrompt is set by Read when a description tag was present
	HasPrompt bool `json:"-"`
}

// bundle is the JSON stored in PNG Comment chunks and JPEG COM segments
type bundle struct {
	CardID   string `json:"cardId,omitempty"`
	CardName string `json:"cardName,omitempty"`
}

// Format of an encoded image
type Format int

const (
	FormatUnknown Format = iota
	FormatPNG
	FormatJPEG
)

var (
	pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	jpegSOI      = []byte{0xFF, 0xD8}
)

// Detect identifies the container format from the leading bytes
func Detect(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, pngSignature):
		return FormatPNG
	case bytes.HasPrefix(data, jpegSOI):
		return FormatJPEG
	}
	return FormatUnknown
}

// Embed returns a copy of data with the metadata written into it
func Embed(data []byte, m Metadata) ([]byte, error) {
	switch Detect(data) {
	case FormatPNG:
		return embedPNG(data, m)
	case FormatJPEG:
		return embedJPEG(data, m)
	}
	return nil, ErrUnsupportedFormat
}

// Read extracts metadata from encoded image data. A file without tags
// yields empty Metadata with HasPrompt unset, not an error.
func Read(data []byte) (*Metadata, error) {
	switch Detect(data) {
	case FormatPNG:
		return readPNG(data)
	case FormatJPEG:
		return readJPEG(data)
	}
	return nil, ErrUnsupportedFormat
}

// ReadFile is Read for a file on disk
func ReadFile(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Read(data)
}

func encodeBundle(m Metadata) string {
	b, err := json.Marshal(bundle{CardID: m.CardID, CardName: m.CardName})
	if err != nil {
		return ""
	}
	return string(b)
}

func applyBundle(m *Metadata, raw string) {
	var b bundle
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &b); err != nil {
		return
	}
	m.CardID = b.CardID
	m.CardName = b.CardName
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
