package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/ports"
	"github.com/kamal-hamza/cardforge/pkg/logging"
	"github.com/kamal-hamza/cardforge/pkg/safepath"
)

// EntityService creates projects and cards and runs cascading deletes
type EntityService struct {
	projects ports.ProjectRepository
	cards    ports.CardRepository
	resolver *safepath.Resolver
	logger   *slog.Logger
}

func NewEntityService(projects ports.ProjectRepository, cards ports.CardRepository, resolver *safepath.Resolver, logger *slog.Logger) *EntityService {
	return &EntityService{
		projects: projects,
		cards:    cards,
		resolver: resolver,
		logger:   logging.Component(logger, "entities"),
	}
}

// CreateProjectRequest describes a new project
type CreateProjectRequest struct {
	ID                 string // generated when empty
	Name               string
	Description        string
	OutputRoot         string // slug of the name when empty
	GlobalPrefix       string
	GlobalSuffix       string
	DefaultAspectRatio string
	DefaultResolution  string
	PromptModifiers    []domain.PromptModifier
}

// CreateProject stores a new project. An explicit id that already exists
// is a conflict.
func (s *EntityService) CreateProject(ctx context.Context, req CreateProjectRequest) (*domain.Project, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		generated, err := s.projects.GenerateProjectID(ctx)
		if err != nil {
			return nil, err
		}
		id = generated
	} else if _, err := s.projects.GetProject(ctx, id); err == nil {
		return nil, domain.Wrap(domain.ErrConflict, "create", "project", id, errors.New("already exists"))
	} else if !domain.IsNotFound(err) {
		return nil, err
	}

	p, err := domain.NewProject(id, req.Name)
	if err != nil {
		return nil, err
	}
	p.Description = req.Description
	if req.OutputRoot != "" {
		p.OutputRoot = req.OutputRoot
	}
	p.GlobalPrefix = req.GlobalPrefix
	p.GlobalSuffix = req.GlobalSuffix
	p.DefaultAspectRatio = req.DefaultAspectRatio
	p.DefaultResolution = req.DefaultResolution
	p.PromptModifiers = req.PromptModifiers

	if _, err := s.resolver.ProjectDir(p.OutputFolder()); err != nil {
		s.logger.Warn("project folder rejected", slog.String(logging.FieldProjectID, id), logging.Error(err))
		return nil, domain.Wrap(domain.ErrSecurityViolation, "create", "project", id, err)
	}
	if err := s.projects.SaveProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// CreateCardRequest describes a new card
type CreateCardRequest struct {
	ID              string // generated when empty
	ProjectID       string
	Name            string
	Prompt          string
	OutputSubfolder string // slug of the name when empty
	AspectRatio     string
	Resolution      string
}

// CreateCard stores a new card after checking that its project exists.
// Bulk flows that must create cards first use CardRepository.SaveCard.
func (s *EntityService) CreateCard(ctx context.Context, req CreateCardRequest) (*domain.Card, error) {
	p, err := s.projects.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		generated, err := s.cards.GenerateCardID(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		id = generated
	} else if taken, err := s.cardIDTaken(ctx, id); err != nil {
		return nil, err
	} else if taken {
		return nil, domain.Wrap(domain.ErrConflict, "create", "card", id, errors.New("already exists"))
	}

	c, err := domain.NewCard(id, p.ID, req.Name, req.Prompt)
	if err != nil {
		return nil, err
	}
	if req.OutputSubfolder != "" {
		c.OutputSubfolder = req.OutputSubfolder
	}
	c.AspectRatio = req.AspectRatio
	c.Resolution = req.Resolution

	if _, err := resolveCardDir(s.resolver, p, c); err != nil {
		s.logger.Warn("card folder rejected", slog.String(logging.FieldCardID, id), logging.Error(err))
		return nil, err
	}
	if err := s.cards.SaveCard(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// cardIDTaken checks the readable cards. A corrupt record under id makes the
// later save fail on load, so it does not need to be seen here.
func (s *EntityService) cardIDTaken(ctx context.Context, id string) (bool, error) {
	all, err := s.cards.ListCards(ctx, "")
	if err != nil && !domain.IsCorrupt(err) {
		return false, err
	}
	for _, c := range all {
		if c.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// UpdateProject applies fn to a stored project and saves it. The id cannot
// be changed.
func (s *EntityService) UpdateProject(ctx context.Context, id string, fn func(p *domain.Project) error) (*domain.Project, error) {
	p, err := s.projects.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	if p.ID != id {
		return nil, domain.Wrap(domain.ErrValidation, "update", "project", id, errors.New("id is immutable"))
	}
	if _, err := s.resolver.ProjectDir(p.OutputFolder()); err != nil {
		return nil, domain.Wrap(domain.ErrSecurityViolation, "update", "project", id, err)
	}
	if err := s.projects.SaveProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateCard applies fn to a stored card under its record lock
func (s *EntityService) UpdateCard(ctx context.Context, projectID, cardID string, fn func(c *domain.Card) error) (*domain.Card, error) {
	p, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.cards.UpdateCard(ctx, projectID, cardID, func(c *domain.Card) error {
		if err := fn(c); err != nil {
			return err
		}
		if c.ID != cardID || c.ProjectID != projectID {
			return domain.Wrap(domain.ErrValidation, "update", "card", cardID, errors.New("id and project are immutable"))
		}
		_, err := resolveCardDir(s.resolver, p, c)
		return err
	})
}

// DeleteProject removes the project and its cards, then their output
// directories. When only the second phase fails the records are gone and
// the error wraps ErrPartialCascade.
func (s *EntityService) DeleteProject(ctx context.Context, id string) (*domain.DeleteReport, error) {
	cascade, err := s.projects.DeleteProject(ctx, id)
	if err != nil {
		return nil, err
	}

	report := &domain.DeleteReport{ProjectRemoved: true}
	for _, c := range cascade.Cards {
		report.CardsRemoved = append(report.CardsRemoved, c.ID)
	}

	survivors, err := s.survivingDirs(ctx)
	if err != nil {
		return s.partial(report, "project", id, err)
	}

	var errs []error
	p := cascade.Project
	projectDir, err := s.resolver.ProjectDir(p.OutputFolder())
	if err != nil {
		errs = append(errs, domain.Wrap(domain.ErrSecurityViolation, "delete", "project", id, err))
	} else if !survivors.overlaps(projectDir) {
		errs = append(errs, s.removeDir(report, projectDir))
	} else {
		report.DirsShared = append(report.DirsShared, s.relOrAbs(projectDir))
		errs = append(errs, s.removeCardDirs(report, p, cascade.Cards, survivors)...)
	}

	return s.partial(report, "project", id, errors.Join(errs...))
}

// DeleteCard removes one card record, then its output directory unless
// another card still writes there
func (s *EntityService) DeleteCard(ctx context.Context, projectID, cardID string) (*domain.DeleteReport, error) {
	p, err := s.projects.GetProject(ctx, projectID)
	if err != nil && !domain.IsNotFound(err) {
		return nil, err
	}

	cascade, err := s.cards.DeleteCard(ctx, projectID, cardID)
	if err != nil {
		return nil, err
	}
	report := &domain.DeleteReport{}
	for _, c := range cascade.Cards {
		report.CardsRemoved = append(report.CardsRemoved, c.ID)
	}
	if p == nil {
		// orphan card: nothing resolvable to clean up
		return report, nil
	}

	survivors, err := s.survivingDirs(ctx)
	if err != nil {
		return s.partial(report, "card", cardID, err)
	}
	errs := s.removeCardDirs(report, p, cascade.Cards, survivors)
	return s.partial(report, "card", cardID, errors.Join(errs...))
}

func (s *EntityService) partial(report *domain.DeleteReport, entity, id string, err error) (*domain.DeleteReport, error) {
	if err == nil {
		return report, nil
	}
	report.FilesErr = err
	s.logger.Error("cascade left files behind", slog.String(logging.FieldOp, "delete "+entity), slog.String("id", id), logging.Error(err))
	return report, domain.Wrap(domain.ErrPartialCascade, "delete", entity, id, err)
}

func (s *EntityService) removeCardDirs(report *domain.DeleteReport, p *domain.Project, cards []domain.Card, survivors dirSet) []error {
	var errs []error
	for i := range cards {
		dir, err := resolveCardDir(s.resolver, p, &cards[i])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if survivors.overlaps(dir) {
			report.DirsShared = append(report.DirsShared, s.relOrAbs(dir))
			continue
		}
		errs = append(errs, s.removeDir(report, dir))
	}
	return errs
}

func (s *EntityService) removeDir(report *domain.DeleteReport, dir string) error {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return domain.Wrap(domain.ErrIO, "remove", "directory", s.relOrAbs(dir), err)
	}
	report.DirsRemoved = append(report.DirsRemoved, s.relOrAbs(dir))
	return nil
}

func (s *EntityService) relOrAbs(dir string) string {
	if rel, err := s.resolver.Rel(dir); err == nil {
		return rel
	}
	return dir
}

// dirSet holds directories still in use by surviving entities
type dirSet []string

// overlaps reports whether removing dir would take a surviving directory
// with it
func (d dirSet) overlaps(dir string) bool {
	for _, kept := range d {
		if safepath.Within(dir, kept) {
			return true
		}
	}
	return false
}

// survivingDirs resolves the directories of every remaining project and
// card. An unreadable record fails the whole call: its directory is unknown,
// so nothing may be removed.
func (s *EntityService) survivingDirs(ctx context.Context) (dirSet, error) {
	projects, err := s.projects.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list surviving projects: %w", err)
	}
	cards, err := s.cards.ListCards(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list surviving cards: %w", err)
	}

	byID := make(map[string]*domain.Project, len(projects))
	var dirs dirSet
	for i := range projects {
		p := &projects[i]
		byID[p.ID] = p
		if dir, err := s.resolver.ProjectDir(p.OutputFolder()); err == nil {
			dirs = append(dirs, dir)
		}
	}
	for i := range cards {
		p, ok := byID[cards[i].ProjectID]
		if !ok {
			continue
		}
		if dir, err := resolveCardDir(s.resolver, p, &cards[i]); err == nil {
			dirs = append(dirs, dir)
		}
	}
	return dirs, nil
}
