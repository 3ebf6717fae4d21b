package services

import (
	"context"
	"errors"
	"strings"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
)

// CardPatch lists the card fields a tool call may change. Nil fields are
// left alone.
type CardPatch struct {
	Name            *string
	Prompt          *string
	OutputSubfolder *string
	AspectRatio     *string
	Resolution      *string
}

func (p CardPatch) apply(c *domain.Card) error {
	if p.Name != nil {
		if err := domain.ValidateName(*p.Name); err != nil {
			return err
		}
		c.Name = *p.Name
	}
	if p.Prompt != nil {
		c.Prompt = *p.Prompt
	}
	if p.OutputSubfolder != nil {
		c.OutputSubfolder = *p.OutputSubfolder
	}
	if p.AspectRatio != nil {
		c.AspectRatio = *p.AspectRatio
	}
	if p.Resolution != nil {
		c.Resolution = *p.Resolution
	}
	return nil
}

// Empty reports whether the patch changes nothing
func (p CardPatch) Empty() bool {
	return p == CardPatch{}
}

// ToolService fronts the operations an assistant may trigger. Each call
// returns a domain.Action describing what the caller should show.
type ToolService struct {
	entities   *EntityService
	finder     *FinderService
	generation *GenerationService
}

func NewToolService(entities *EntityService, finder *FinderService, generation *GenerationService) *ToolService {
	return &ToolService{entities: entities, finder: finder, generation: generation}
}

// EditCard applies a patch and reports the stored card
func (s *ToolService) EditCard(ctx context.Context, projectID, cardID string, patch CardPatch) (domain.Action, error) {
	if patch.Empty() {
		return nil, domain.Wrap(domain.ErrValidation, "edit", "card", cardID, errors.New("nothing to change"))
	}
	c, err := s.entities.UpdateCard(ctx, projectID, cardID, patch.apply)
	if err != nil {
		return nil, err
	}
	return domain.CardUpdated{Card: *c}, nil
}

// Navigate selects the best matching card for a free text query
func (s *ToolService) Navigate(ctx context.Context, query, projectID string) (domain.Action, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.Wrap(domain.ErrValidation, "navigate", "card", "", errors.New("empty query"))
	}
	matches, err := s.finder.FindCards(ctx, query, projectID)
	if err != nil && !domain.IsCorrupt(err) {
		return nil, err
	}
	if len(matches) == 0 {
		// the card may be one of the unreadable records
		if err != nil {
			return nil, err
		}
		return nil, domain.Wrap(domain.ErrNotFound, "navigate", "card", query, errors.New("no card matches"))
	}
	best := matches[0].Card
	return domain.Navigated{ProjectID: best.ProjectID, CardID: best.ID}, nil
}

// GenerationJob is a generation running in the background
type GenerationJob struct {
	done   chan struct{}
	result *GenerateResult
	err    error
}

// Wait blocks until the job finishes or ctx is done
func (j *GenerationJob) Wait(ctx context.Context) (*GenerateResult, error) {
	select {
	case <-j.done:
		return j.result, j.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// StartGeneration validates the request synchronously and then runs it in
// the background. A rejected request never starts a job.
func (s *ToolService) StartGeneration(ctx context.Context, req GenerateRequest) (domain.Action, *GenerationJob, error) {
	pl, err := s.generation.prepare(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	job := &GenerationJob{done: make(chan struct{})}
	go func() {
		defer close(job.done)
		job.result, job.err = s.generation.Generate(ctx, req)
	}()

	return domain.GenerationStarted{
		ProjectID: pl.project.ID,
		CardID:    pl.card.ID,
		Count:     pl.count,
		Prompt:    pl.prompt,
	}, job, nil
}
