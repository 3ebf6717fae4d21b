package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nfnt/resize"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/pkg/logging"
	"github.com/kamal-hamza/cardforge/pkg/safepath"
)

// ThumbnailService renders and caches downscaled previews of images
type ThumbnailService struct {
	resolver *safepath.Resolver
	cacheDir string
	logger   *slog.Logger
}

func NewThumbnailService(resolver *safepath.Resolver, cacheDir string, logger *slog.Logger) *ThumbnailService {
	return &ThumbnailService{
		resolver: resolver,
		cacheDir: cacheDir,
		logger:   logging.Component(logger, "thumbs"),
	}
}

// Thumbnail returns the path of a PNG preview whose longer side is size
// pixels. Previews are keyed by path, mtime and size, so an edited or
// regenerated image gets a fresh one.
func (s *ThumbnailService) Thumbnail(ctx context.Context, relPath string, size int) (string, error) {
	if size <= 0 {
		return "", domain.Wrap(domain.ErrValidation, "thumbnail", "image", relPath, fmt.Errorf("size must be positive, got %d", size))
	}
	abs, err := s.resolver.Resolve(relPath)
	if err != nil {
		s.logger.Warn("thumbnail path rejected", slog.String(logging.FieldPath, relPath), logging.Error(err))
		return "", domain.Wrap(domain.ErrSecurityViolation, "thumbnail", "image", relPath, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", domain.Wrap(domain.ErrNotFound, "thumbnail", "image", relPath, nil)
		}
		return "", domain.Wrap(domain.ErrIO, "thumbnail", "image", relPath, err)
	}

	target := filepath.Join(s.cacheDir, cacheKey(relPath, info.ModTime().UnixNano(), size)+".png")
	if _, err := os.Stat(target); err == nil {
		return target, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(abs)
	if err != nil {
		return "", domain.Wrap(domain.ErrIO, "thumbnail", "image", relPath, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", domain.Wrap(domain.ErrValidation, "thumbnail", "image", relPath, err)
	}

	thumb := resize.Thumbnail(uint(size), uint(size), img, resize.Lanczos3)

	if err := os.MkdirAll(s.cacheDir, 0755); err != nil {
		return "", domain.Wrap(domain.ErrIO, "thumbnail", "image", relPath, err)
	}
	tmp, err := os.CreateTemp(s.cacheDir, ".thumb-*")
	if err != nil {
		return "", domain.Wrap(domain.ErrIO, "thumbnail", "image", relPath, err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, thumb); err != nil {
		tmp.Close()
		return "", domain.Wrap(domain.ErrIO, "thumbnail", "image", relPath, err)
	}
	if err := tmp.Close(); err != nil {
		return "", domain.Wrap(domain.ErrIO, "thumbnail", "image", relPath, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", domain.Wrap(domain.ErrIO, "thumbnail", "image", relPath, err)
	}

	s.logger.Debug("thumbnail rendered", slog.String(logging.FieldPath, relPath), slog.Int("size", size))
	return target, nil
}

func cacheKey(relPath string, mtime int64, size int) string {
	h := sha256.New()
	h.Write([]byte(relPath))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(mtime, 10)))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.Itoa(size)))
	return hex.EncodeToString(h.Sum(nil))
}
