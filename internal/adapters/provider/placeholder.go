package provider

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"strings"

	"github.com/kamal-hamza/cardforge/internal/core/ports"
)

// Placeholder renders a gradient locally instead of calling a service. The
// colors are derived from the prompt, so the same prompt gives the same image.
type Placeholder struct {
	// MaxSide caps the longer edge; real resolutions are scaled down to it
	MaxSide int
}

const defaultPlaceholderSide = 256

func NewPlaceholder() *Placeholder {
	return &Placeholder{MaxSide: defaultPlaceholderSide}
}

// Ensure it implements the interface
var _ ports.ImageProvider = (*Placeholder)(nil)

func (p *Placeholder) Name() string { return "placeholder" }

func (p *Placeholder) Generate(ctx context.Context, req ports.ImageRequest) (*ports.ImageResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, h, err := Dimensions(req.AspectRatio, req.Resolution)
	if err != nil {
		return nil, err
	}
	w, h = fit(w, h, p.MaxSide)

	h32 := fnv.New32a()
	h32.Write([]byte(req.Prompt))
	seed := h32.Sum32()
	from := color.RGBA{R: uint8(seed), G: uint8(seed >> 8), B: uint8(seed >> 16), A: 255}
	to := color.RGBA{R: 255 - from.R, G: 255 - from.G, B: 255 - from.B, A: 255}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			t := float64(x+y) / float64(w+h)
			img.SetRGBA(x, y, color.RGBA{
				R: lerp(from.R, to.R, t),
				G: lerp(from.G, to.G, t),
				B: lerp(from.B, to.B, t),
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return &ports.ImageResponse{Data: buf.Bytes(), MimeType: "image/png"}, nil
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t)
}

// Dimensions converts an aspect ratio such as "16:9" and a resolution such
// as "2K" into pixel sizes. The longer edge gets the resolution.
func Dimensions(aspect, resolution string) (int, int, error) {
	long, err := parseResolution(resolution)
	if err != nil {
		return 0, 0, err
	}
	aw, ah, err := parseAspect(aspect)
	if err != nil {
		return 0, 0, err
	}
	if aw >= ah {
		return long, max(1, long*ah/aw), nil
	}
	return max(1, long*aw/ah), long, nil
}

func parseResolution(s string) (int, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		s = "1K"
	}
	if n, ok := strings.CutSuffix(s, "K"); ok {
		k, err := strconv.Atoi(n)
		if err != nil || k <= 0 || k > 8 {
			return 0, fmt.Errorf("invalid resolution %q", s)
		}
		return k * 1024, nil
	}
	px, err := strconv.Atoi(s)
	if err != nil || px <= 0 || px > 8192 {
		return 0, fmt.Errorf("invalid resolution %q", s)
	}
	return px, nil
}

func parseAspect(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1, 1, nil
	}
	a, b, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q", s)
	}
	w, errW := strconv.Atoi(strings.TrimSpace(a))
	h, errH := strconv.Atoi(strings.TrimSpace(b))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q", s)
	}
	return w, h, nil
}

func fit(w, h, maxSide int) (int, int) {
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return w, h
	}
	if w >= h {
		return maxSide, max(1, h*maxSide/w)
	}
	return max(1, w*maxSide/h), maxSide
}
