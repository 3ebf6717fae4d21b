package domain

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Card is a unit of generation work under a project
type Card struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"projectId"`
	Name            string    `json:"name"`
	Prompt          string    `json:"prompt"`
	OutputSubfolder string    `json:"outputSubfolder,omitempty"`
	AspectRatio     string    `json:"aspectRatio,omitempty"`
	Resolution      string    `json:"resolution,omitempty"`
	ArchivedImages  []string  `json:"archivedImages,omitempty"`
	FavoriteImages  []string  `json:"favoriteImages,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// NewCard creates a card with defaults applied
func NewCard(id, projectID, name, prompt string) (*Card, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if err := ValidateID(projectID); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Card{
		ID:              id,
		ProjectID:       projectID,
		Name:            name,
		Prompt:          prompt,
		OutputSubfolder: GenerateSlug(name),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Validate checks the fields required to persist a card
func (c *Card) Validate() error {
	if strings.TrimSpace(c.ProjectID) == "" {
		return fmt.Errorf("%w: card %q has no project id", ErrValidation, c.ID)
	}
	if err := ValidateID(c.ProjectID); err != nil {
		return err
	}
	if err := ValidateID(c.ID); err != nil {
		return err
	}
	return ValidateName(c.Name)
}

// OutputFolder returns the subfolder fragment, defaulting when unset
func (c *Card) OutputFolder() string {
	if strings.TrimSpace(c.OutputSubfolder) == "" {
		return DefaultFolder
	}
	return c.OutputSubfolder
}

// EffectiveAspectRatio resolves the card override against the project default
func (c *Card) EffectiveAspectRatio(p *Project) string {
	if c.AspectRatio != "" {
		return c.AspectRatio
	}
	if p != nil {
		return p.DefaultAspectRatio
	}
	return ""
}

// EffectiveResolution resolves the card override against the project default
func (c *Card) EffectiveResolution(p *Project) string {
	if c.Resolution != "" {
		return c.Resolution
	}
	if p != nil {
		return p.DefaultResolution
	}
	return ""
}

// IsArchived reports whether filename is in the archived set
func (c *Card) IsArchived(filename string) bool {
	return slices.Contains(c.ArchivedImages, filename)
}

// IsFavorite reports whether filename is in the favorite set
func (c *Card) IsFavorite(filename string) bool {
	return slices.Contains(c.FavoriteImages, filename)
}

// Archive adds filename to the archived set. Returns false if already present.
func (c *Card) Archive(filename string) bool {
	if c.IsArchived(filename) {
		return false
	}
	c.ArchivedImages = append(c.ArchivedImages, filename)
	return true
}

// Unarchive removes filename from the archived set. Returns false if absent.
func (c *Card) Unarchive(filename string) bool {
	before := len(c.ArchivedImages)
	c.ArchivedImages = slices.DeleteFunc(c.ArchivedImages, func(s string) bool { return s == filename })
	return len(c.ArchivedImages) != before
}

// ToggleFavorite flips membership of filename and returns the new state
func (c *Card) ToggleFavorite(filename string) bool {
	if c.IsFavorite(filename) {
		c.FavoriteImages = slices.DeleteFunc(c.FavoriteImages, func(s string) bool { return s == filename })
		return false
	}
	c.FavoriteImages = append(c.FavoriteImages, filename)
	return true
}

// ValidateImageFilename rejects anything that is not a plain base name
func ValidateImageFilename(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: invalid image filename %q", ErrValidation, name)
	}
	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: image filename %q must not contain path separators", ErrValidation, name)
	}
	return nil
}
