package services

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/pkg/logging"
)

func TestThumbnail_RendersAndCaches(t *testing.T) {
	r := newTestResolver(t)
	dir := cardDir(t, r)
	require.NoError(t, os.MkdirAll(dir, 0755))

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 400, 200))))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fox_1.png"), buf.Bytes(), 0644))

	cache := filepath.Join(r.DataRoot, "cache", "thumbs")
	svc := NewThumbnailService(r, cache, logging.NewNop())

	path, err := svc.Thumbnail(context.Background(), "output/woodland/fox/fox_1.png", 100)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)

	again, err := svc.Thumbnail(context.Background(), "output/woodland/fox/fox_1.png", 100)
	require.NoError(t, err)
	assert.Equal(t, path, again)

	entries, err := os.ReadDir(cache)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestThumbnail_Errors(t *testing.T) {
	r := newTestResolver(t)
	dir := cardDir(t, r)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not an image"), 0644))

	svc := NewThumbnailService(r, filepath.Join(r.DataRoot, "cache"), logging.NewNop())
	ctx := context.Background()

	_, err := svc.Thumbnail(ctx, "records/cards/c1.json", 64)
	assert.ErrorIs(t, err, domain.ErrSecurityViolation)

	_, err = svc.Thumbnail(ctx, "output/woodland/fox/missing.png", 64)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Thumbnail(ctx, "output/woodland/fox/broken.png", 64)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Thumbnail(ctx, "output/woodland/fox/broken.png", 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
