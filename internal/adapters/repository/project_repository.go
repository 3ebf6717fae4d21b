package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/ports"
	"github.com/kamal-hamza/cardforge/pkg/logging"
)

// maxIDAttempts bounds the retries when a random id collides
const maxIDAttempts = 16

type ProjectRepository struct {
	store  ports.RecordStore
	cards  *CardRepository
	logger *slog.Logger
}

// NewProjectRepository creates a project repository. Cards are needed so a
// project delete can cascade to them.
func NewProjectRepository(store ports.RecordStore, cards *CardRepository, logger *slog.Logger) *ProjectRepository {
	return &ProjectRepository{
		store:  store,
		cards:  cards,
		logger: logging.Component(logger, "projects"),
	}
}

// Ensure it implements the interface
var _ ports.ProjectRepository = (*ProjectRepository)(nil)

// ListProjects returns every readable project. Corrupt records do not hide
// the rest: they come back as a joined ErrCorruptRecord error next to the
// readable projects.
func (r *ProjectRepository) ListProjects(ctx context.Context) ([]domain.Project, error) {
	ids, err := r.store.ListIDs(ctx, ports.KindProjects)
	if err != nil {
		return nil, err
	}

	projects := make([]domain.Project, 0, len(ids))
	var corrupt []error
	for _, id := range ids {
		var p domain.Project
		if err := r.store.Load(ctx, ports.KindProjects, id, &p); err != nil {
			switch {
			case domain.IsNotFound(err):
				continue // removed between listing and reading
			case domain.IsCorrupt(err):
				r.logger.Warn("unreadable project", slog.String(logging.FieldProjectID, id), logging.Error(err))
				corrupt = append(corrupt, err)
				continue
			}
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, errors.Join(corrupt...)
}

func (r *ProjectRepository) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	var p domain.Project
	if err := r.store.Load(ctx, ports.KindProjects, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveProject upserts a project. CreatedAt of an existing record is kept.
func (r *ProjectRepository) SaveProject(ctx context.Context, p *domain.Project) error {
	if p.OutputRoot == "" {
		p.OutputRoot = domain.DefaultFolder
	}
	if err := p.Validate(); err != nil {
		return err
	}

	var stored domain.Project
	return r.store.Update(ctx, ports.KindProjects, p.ID, &stored, func(exists bool) error {
		now := nowUTC()
		if exists && !stored.CreatedAt.IsZero() {
			p.CreatedAt = stored.CreatedAt
		} else if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		stored = *p
		return nil
	})
}

// DeleteProject removes the project's cards first, then the project record.
// Nothing is removed while any card record is unreadable, since it may
// belong to this project.
func (r *ProjectRepository) DeleteProject(ctx context.Context, id string) (*domain.Cascade, error) {
	p, err := r.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	cards, err := r.cards.ListCards(ctx, id)
	if err != nil {
		return nil, err
	}

	cascade := &domain.Cascade{Project: p}
	for _, c := range cards {
		if err := r.store.Delete(ctx, ports.KindCards, c.ID); err != nil {
			return cascade, err
		}
		cascade.Cards = append(cascade.Cards, c)
	}

	if err := r.store.Delete(ctx, ports.KindProjects, id); err != nil {
		return cascade, err
	}
	return cascade, nil
}

// GenerateProjectID returns an unused random project id
func (r *ProjectRepository) GenerateProjectID(ctx context.Context) (string, error) {
	ids, err := r.store.ListIDs(ctx, ports.KindProjects)
	if err != nil {
		return "", err
	}
	return freshID(domain.ProjectIDPrefix, toSet(ids))
}

func freshID(prefix string, taken map[string]struct{}) (string, error) {
	for range maxIDAttempts {
		id, err := domain.NewTextID(prefix)
		if err != nil {
			return "", err
		}
		if _, clash := taken[id]; !clash {
			return id, nil
		}
	}
	return "", domain.Wrap(domain.ErrConflict, "generate", prefix, "", fmt.Errorf("no free id after %d attempts", maxIDAttempts))
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
