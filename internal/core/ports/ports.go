package ports

import (
	"context"
	"errors"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
)

// Kind names a record collection; each kind is one directory of records
type Kind string

const (
	KindProjects Kind = "projects"
	KindCards    Kind = "cards"
	KindKeyring  Kind = "keyring"
)

// ErrSkipWrite may be returned from an Update callback to leave the record
// untouched. Update then returns nil.
var ErrSkipWrite = errors.New("skip write")

// RecordStore defines the port for keyed JSON record persistence
type RecordStore interface {
	// Load decodes the record into out. ErrNotFound when absent,
	// ErrCorruptRecord when present but undecodable.
	Load(ctx context.Context, kind Kind, id string, out any) error

	// Save atomically replaces the record
	Save(ctx context.Context, kind Kind, id string, record any) error

	// Update runs a read-modify-write cycle under the record lock. out is
	// populated first when the record exists.
	Update(ctx context.Context, kind Kind, id string, out any, fn func(exists bool) error) error

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, kind Kind, id string) error

	// ListIDs returns the ids of all records of a kind
	ListIDs(ctx context.Context, kind Kind) ([]string, error)
}

// ProjectRepository defines the port for project persistence
type ProjectRepository interface {
	// ListProjects returns the readable projects, plus an error wrapping
	// ErrCorruptRecord when some records could not be decoded
	ListProjects(ctx context.Context) ([]domain.Project, error)
	GetProject(ctx context.Context, id string) (*domain.Project, error)
	SaveProject(ctx context.Context, p *domain.Project) error

	// DeleteProject removes the project and all of its cards. The returned
	// cascade lists what was removed; output files are not touched.
	DeleteProject(ctx context.Context, id string) (*domain.Cascade, error)

	GenerateProjectID(ctx context.Context) (string, error)
}

// CardRepository defines the port for card persistence
type CardRepository interface {
	// ListCards returns the cards of one project, or of all projects when
	// projectID is empty. Unreadable records are reported as an error
	// wrapping ErrCorruptRecord, returned together with the readable cards.
	ListCards(ctx context.Context, projectID string) ([]domain.Card, error)
	GetCard(ctx context.Context, projectID, cardID string) (*domain.Card, error)
	SaveCard(ctx context.Context, c *domain.Card) error

	// UpdateCard applies fn to the stored card under its record lock
	UpdateCard(ctx context.Context, projectID, cardID string, fn func(c *domain.Card) error) (*domain.Card, error)

	DeleteCard(ctx context.Context, projectID, cardID string) (*domain.Cascade, error)
	GenerateCardID(ctx context.Context, projectID string) (string, error)
}

// KeyRepository defines the port for stored provider credentials
type KeyRepository interface {
	SaveKey(ctx context.Context, name, key string) error
	GetKeys(ctx context.Context) ([]domain.APIKey, error)
}

// ImageRequest is what a provider needs to render one image
type ImageRequest struct {
	Prompt      string
	AspectRatio string
	Resolution  string
	APIKey      string
}

// ImageResponse is one encoded image returned by a provider
type ImageResponse struct {
	Data     []byte
	MimeType string
}

// ImageProvider defines the port for image generation backends
type ImageProvider interface {
	Name() string
	Generate(ctx context.Context, req ImageRequest) (*ImageResponse, error)
}

// ProvenanceCodec defines the port for embedded image metadata
type ProvenanceCodec interface {
	// Embed returns data with provenance written into it
	Embed(data []byte, mimeType string, p domain.Provenance) ([]byte, error)

	// Read recovers provenance from an image file on disk
	Read(path string) (*domain.Provenance, error)
}

// FileOpener defines the port for opening files with default applications
type FileOpener interface {
	// Open opens a file with the system's default application
	Open(ctx context.Context, filepath string) error
}
