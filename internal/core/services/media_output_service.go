package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/ports"
	"github.com/kamal-hamza/cardforge/pkg/logging"
	"github.com/kamal-hamza/cardforge/pkg/safepath"
)

// Stages of the save pipeline reported on ErrIO failures
const (
	StageMkdir   = "mkdir"
	StageWrite   = "write"
	StagePublish = "publish"
)

const (
	pendingPrefix = ".pending-"
	pendingSuffix = ".tmp"

	// maxPublishAttempts bounds the counter advance when other writers keep
	// taking the name we picked
	maxPublishAttempts = 1000
)

// SaveRequest carries one generated image to disk
type SaveRequest struct {
	Data       []byte
	MimeType   string
	Dir        string // absolute, already resolved through safepath
	BaseName   string // filename stem, slugged before use
	Provenance domain.Provenance
}

// SaveResult describes a published image
type SaveResult struct {
	Filename string
	AbsPath  string
	RelPath  string // relative to the data root, forward slashes

	// ProvenanceErr is set when the image was saved without its metadata
	ProvenanceErr error
}

// StageError marks at which point a save stopped
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// MediaOutputService names, writes and annotates generated images
type MediaOutputService struct {
	resolver *safepath.Resolver
	codec    ports.ProvenanceCodec
	logger   *slog.Logger
}

func NewMediaOutputService(resolver *safepath.Resolver, codec ports.ProvenanceCodec, logger *slog.Logger) *MediaOutputService {
	return &MediaOutputService{
		resolver: resolver,
		codec:    codec,
		logger:   logging.Component(logger, "media"),
	}
}

// Save writes the image under the first free <slug>_<n><ext> name. Two
// concurrent saves into the same directory always produce two files.
func (s *MediaOutputService) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	ext, ok := domain.ExtensionForMime(req.MimeType)
	if !ok {
		return nil, domain.Wrap(domain.ErrValidation, "save", "image", req.Provenance.CardID,
			fmt.Errorf("unsupported mime type %q", req.MimeType))
	}
	if len(req.Data) == 0 {
		return nil, domain.Wrap(domain.ErrValidation, "save", "image", req.Provenance.CardID, errors.New("empty image data"))
	}
	if !safepath.Within(s.resolver.OutputRoot, req.Dir) || filepath.Clean(req.Dir) == filepath.Clean(s.resolver.OutputRoot) {
		s.logger.Warn("refusing save outside output root", slog.String(logging.FieldPath, req.Dir))
		return nil, domain.Wrap(domain.ErrSecurityViolation, "save", "image", req.Provenance.CardID, safepath.ErrOutsideRoot)
	}

	if err := os.MkdirAll(req.Dir, 0755); err != nil {
		return nil, s.ioErr(StageMkdir, req, err)
	}

	data := req.Data
	var provErr error
	if embedded, err := s.codec.Embed(req.Data, req.MimeType, req.Provenance); err != nil {
		provErr = domain.Wrap(domain.ErrProvenance, "embed", "image", req.Provenance.CardID, err)
		s.logger.Warn("saving image without provenance", slog.String(logging.FieldCardID, req.Provenance.CardID), logging.Error(err))
	} else {
		data = embedded
	}

	pending, err := writePending(req.Dir, data)
	if err != nil {
		return nil, s.ioErr(StageWrite, req, err)
	}
	defer os.Remove(pending)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slug := filenameSlug(req.BaseName)
	name, err := publish(ctx, pending, req.Dir, slug, ext)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, s.ioErr(StagePublish, req, err)
	}

	abs := filepath.Join(req.Dir, name)
	rel, err := s.resolver.Rel(abs)
	if err != nil {
		return nil, s.ioErr(StagePublish, req, err)
	}

	s.logger.Debug("image saved", slog.String(logging.FieldPath, rel), slog.String(logging.FieldCardID, req.Provenance.CardID))
	return &SaveResult{Filename: name, AbsPath: abs, RelPath: rel, ProvenanceErr: provErr}, nil
}

func (s *MediaOutputService) ioErr(stage string, req SaveRequest, err error) error {
	return domain.Wrap(domain.ErrIO, "save", "image", req.Provenance.CardID, &StageError{Stage: stage, Err: err})
}

// writePending writes data to a hidden temp file in dir. The name never
// carries an image extension, so listings cannot surface it.
func writePending(dir string, data []byte) (string, error) {
	path := filepath.Join(dir, pendingPrefix+uuid.NewString()+pendingSuffix)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// publish hard-links pending to the next free name. Link fails with EEXIST
// instead of replacing, so a racing writer bumps the counter and retries.
func publish(ctx context.Context, pending, dir, slug, ext string) (string, error) {
	n, err := nextCounter(dir, slug)
	if err != nil {
		return "", err
	}
	for range maxPublishAttempts {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		name := fmt.Sprintf("%s_%d%s", slug, n, ext)
		err := os.Link(pending, filepath.Join(dir, name))
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", err
		}
		n++
	}
	return "", fmt.Errorf("no free filename for %q after %d attempts", slug, maxPublishAttempts)
}

// nextCounter returns one past the highest counter used by slug in dir,
// whatever the extension
func nextCounter(dir, slug string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(slug) + `_(\d+)\.[A-Za-z0-9]+$`)
	highest := 0
	for _, e := range entries {
		m := pattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

func filenameSlug(base string) string {
	slug := domain.GenerateSlug(base)
	if slug == domain.DefaultFolder && strings.TrimSpace(base) == "" {
		return "image"
	}
	return slug
}
