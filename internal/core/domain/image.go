package domain

import (
	"strings"
	"time"
)

// ImageEntry is one listed artifact in a card's output directory
type ImageEntry struct {
	Filename   string
	RelPath    string // relative to the data root, forward slashes
	ModTime    time.Time
	Size       int64
	IsFavorite bool
	IsArchived bool
}

// ImageMetadata is the provenance recovered from an artifact on disk
type ImageMetadata struct {
	RelPath   string
	CreatedAt time.Time
	ModTime   time.Time
	Size      int64
	Prompt    string
	HasPrompt bool
	Title     string
	Author    string
	CardID    string
}

// Provenance is embedded in every generated image
type Provenance struct {
	Prompt      string
	Title       string
	ProjectName string
	CardID      string
	CardName    string
	Software    string
	CreatedAt   time.Time

	// HasPrompt is set when reading back and the file carried a prompt tag
	HasPrompt bool
}

// ImageExtensions are the raster formats the gallery lists
var ImageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".webp": {},
	".gif":  {},
}

// IsImageFile reports whether a directory entry name is a listable image
func IsImageFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	dot := strings.LastIndex(name, ".")
	if dot < 0 {
		return false
	}
	_, ok := ImageExtensions[strings.ToLower(name[dot:])]
	return ok
}

// ExtensionForMime maps a provider mime type to a file extension
func ExtensionForMime(mime string) (string, bool) {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "image/png":
		return ".png", true
	case "image/jpeg", "image/jpg":
		return ".jpg", true
	case "image/webp":
		return ".webp", true
	case "image/gif":
		return ".gif", true
	}
	return "", false
}
