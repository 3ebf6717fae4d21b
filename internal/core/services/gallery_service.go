package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/ports"
	"github.com/kamal-hamza/cardforge/pkg/logging"
	"github.com/kamal-hamza/cardforge/pkg/safepath"
)

// GalleryService lists and annotates the images of a card
type GalleryService struct {
	projects ports.ProjectRepository
	cards    ports.CardRepository
	resolver *safepath.Resolver
	codec    ports.ProvenanceCodec
	logger   *slog.Logger
}

func NewGalleryService(projects ports.ProjectRepository, cards ports.CardRepository, resolver *safepath.Resolver, codec ports.ProvenanceCodec, logger *slog.Logger) *GalleryService {
	return &GalleryService{
		projects: projects,
		cards:    cards,
		resolver: resolver,
		codec:    codec,
		logger:   logging.Component(logger, "gallery"),
	}
}

// CardDir resolves the output directory of a card
func (s *GalleryService) CardDir(ctx context.Context, projectID, cardID string) (string, *domain.Project, *domain.Card, error) {
	p, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return "", nil, nil, err
	}
	c, err := s.cards.GetCard(ctx, projectID, cardID)
	if err != nil {
		return "", nil, nil, err
	}
	dir, err := resolveCardDir(s.resolver, p, c)
	if err != nil {
		s.logger.Warn("card folder rejected",
			slog.String(logging.FieldProjectID, projectID),
			slog.String(logging.FieldCardID, cardID),
			logging.Error(err))
		return "", nil, nil, err
	}
	return dir, p, c, nil
}

// ListImages returns the card's images, newest counter first. Archived
// images are left out unless includeArchived is set.
func (s *GalleryService) ListImages(ctx context.Context, projectID, cardID string, includeArchived bool) ([]domain.ImageEntry, error) {
	dir, _, c, err := s.CardDir(ctx, projectID, cardID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.ImageEntry{}, nil
		}
		return nil, domain.Wrap(domain.ErrIO, "list", "image", cardID, err)
	}

	images := make([]domain.ImageEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !domain.IsImageFile(e.Name()) {
			continue
		}
		archived := c.IsArchived(e.Name())
		if archived && !includeArchived {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed while listing
		}
		rel, err := s.resolver.Rel(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		images = append(images, domain.ImageEntry{
			Filename:   e.Name(),
			RelPath:    rel,
			ModTime:    info.ModTime(),
			Size:       info.Size(),
			IsFavorite: c.IsFavorite(e.Name()),
			IsArchived: archived,
		})
	}

	SortImages(images)
	return images, nil
}

// CountImages counts the non-archived images of a card
func (s *GalleryService) CountImages(ctx context.Context, projectID, cardID string) (int, error) {
	images, err := s.ListImages(ctx, projectID, cardID, false)
	if err != nil {
		return 0, err
	}
	return len(images), nil
}

// SortImages orders entries by filename in descending natural order, so
// image_10 comes before image_9. Equal names fall back to newest first.
func SortImages(images []domain.ImageEntry) {
	// a Collator keeps scratch buffers and is not safe for concurrent use
	col := collate.New(language.Und, collate.Numeric)
	sort.SliceStable(images, func(i, j int) bool {
		if c := col.CompareString(images[i].Filename, images[j].Filename); c != 0 {
			return c > 0
		}
		return images[i].ModTime.After(images[j].ModTime)
	})
}

// ReadMetadata returns the provenance of an image given its data-root
// relative path. Files without tags are not an error.
func (s *GalleryService) ReadMetadata(ctx context.Context, relPath string) (*domain.ImageMetadata, error) {
	abs, err := s.resolver.Resolve(relPath)
	if err != nil {
		s.logger.Warn("metadata path rejected", slog.String(logging.FieldPath, relPath), logging.Error(err))
		return nil, domain.Wrap(domain.ErrSecurityViolation, "read", "image", relPath, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.Wrap(domain.ErrNotFound, "read", "image", relPath, nil)
		}
		return nil, domain.Wrap(domain.ErrIO, "read", "image", relPath, err)
	}

	meta := &domain.ImageMetadata{
		RelPath:   relPath,
		CreatedAt: info.ModTime(),
		ModTime:   info.ModTime(),
		Size:      info.Size(),
	}

	p, err := s.codec.Read(abs)
	if err != nil {
		// formats without an embedding strategy still have file facts
		s.logger.Debug("no readable provenance", slog.String(logging.FieldPath, relPath), logging.Error(err))
		return meta, nil
	}
	meta.Prompt = p.Prompt
	meta.HasPrompt = p.HasPrompt
	meta.Title = p.Title
	meta.Author = p.ProjectName
	meta.CardID = p.CardID
	if !p.CreatedAt.IsZero() {
		meta.CreatedAt = p.CreatedAt
	}
	return meta, nil
}

// ToggleFavorite flips the favorite flag and returns the new state
func (s *GalleryService) ToggleFavorite(ctx context.Context, projectID, cardID, filename string) (bool, error) {
	if err := domain.ValidateImageFilename(filename); err != nil {
		return false, err
	}
	var state bool
	_, err := s.cards.UpdateCard(ctx, projectID, cardID, func(c *domain.Card) error {
		state = c.ToggleFavorite(filename)
		return nil
	})
	return state, err
}

// Archive hides an image from default listings. The file is kept.
func (s *GalleryService) Archive(ctx context.Context, projectID, cardID, filename string) error {
	if err := domain.ValidateImageFilename(filename); err != nil {
		return err
	}
	_, err := s.cards.UpdateCard(ctx, projectID, cardID, func(c *domain.Card) error {
		if !c.Archive(filename) {
			return ports.ErrSkipWrite
		}
		return nil
	})
	return err
}

// Unarchive returns an archived image to default listings
func (s *GalleryService) Unarchive(ctx context.Context, projectID, cardID, filename string) error {
	if err := domain.ValidateImageFilename(filename); err != nil {
		return err
	}
	_, err := s.cards.UpdateCard(ctx, projectID, cardID, func(c *domain.Card) error {
		if !c.Unarchive(filename) {
			return ports.ErrSkipWrite
		}
		return nil
	})
	return err
}

// resolveCardDir maps a project/card pair to its sandboxed directory
func resolveCardDir(r *safepath.Resolver, p *domain.Project, c *domain.Card) (string, error) {
	dir, err := r.CardDir(p.OutputFolder(), c.OutputFolder())
	if err != nil {
		return "", domain.Wrap(domain.ErrSecurityViolation, "resolve", "card", c.ID, err)
	}
	return dir, nil
}
