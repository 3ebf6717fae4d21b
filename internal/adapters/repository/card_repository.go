package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/ports"
	"github.com/kamal-hamza/cardforge/pkg/logging"
)

// CardRepository stores cards in one global namespace so ids stay unique
// across projects; the owning project is a field of the record.
type CardRepository struct {
	store  ports.RecordStore
	logger *slog.Logger
}

func NewCardRepository(store ports.RecordStore, logger *slog.Logger) *CardRepository {
	return &CardRepository{
		store:  store,
		logger: logging.Component(logger, "cards"),
	}
}

// Ensure it implements the interface
var _ ports.CardRepository = (*CardRepository)(nil)

var nowUTC = func() time.Time { return time.Now().UTC() }

// ListCards scans the card records on every call. An empty projectID lists
// cards of all projects. A corrupt record cannot be attributed to a project,
// so it is reported through the joined ErrCorruptRecord error alongside the
// readable cards whatever the filter.
func (r *CardRepository) ListCards(ctx context.Context, projectID string) ([]domain.Card, error) {
	ids, err := r.store.ListIDs(ctx, ports.KindCards)
	if err != nil {
		return nil, err
	}

	cards := make([]domain.Card, 0, len(ids))
	var corrupt []error
	for _, id := range ids {
		var c domain.Card
		if err := r.store.Load(ctx, ports.KindCards, id, &c); err != nil {
			switch {
			case domain.IsNotFound(err):
				continue
			case domain.IsCorrupt(err):
				r.logger.Warn("unreadable card", slog.String(logging.FieldCardID, id), logging.Error(err))
				corrupt = append(corrupt, err)
				continue
			}
			return nil, err
		}
		if projectID != "" && c.ProjectID != projectID {
			continue
		}
		cards = append(cards, c)
	}
	return cards, errors.Join(corrupt...)
}

// GetCard returns NotFound when the card exists but belongs to another project
func (r *CardRepository) GetCard(ctx context.Context, projectID, cardID string) (*domain.Card, error) {
	if err := domain.ValidateID(projectID); err != nil {
		return nil, err
	}
	var c domain.Card
	if err := r.store.Load(ctx, ports.KindCards, cardID, &c); err != nil {
		return nil, err
	}
	if c.ProjectID != projectID {
		return nil, domain.Wrap(domain.ErrNotFound, "load", "card", cardID, nil)
	}
	return &c, nil
}

// SaveCard upserts a card. The project is not required to exist, but a
// stored card keeps its project: saving it under another one is a conflict.
func (r *CardRepository) SaveCard(ctx context.Context, c *domain.Card) error {
	if c.OutputSubfolder == "" {
		c.OutputSubfolder = domain.DefaultFolder
	}
	if err := c.Validate(); err != nil {
		return err
	}

	var stored domain.Card
	return r.store.Update(ctx, ports.KindCards, c.ID, &stored, func(exists bool) error {
		if exists && stored.ProjectID != c.ProjectID {
			return domain.Wrap(domain.ErrConflict, "save", "card", c.ID,
				fmt.Errorf("card belongs to project %q", stored.ProjectID))
		}
		now := nowUTC()
		if exists && !stored.CreatedAt.IsZero() {
			c.CreatedAt = stored.CreatedAt
		} else if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		stored = *c
		return nil
	})
}

// UpdateCard applies fn to the stored card under its record lock. If fn
// returns ports.ErrSkipWrite the card is returned unchanged.
func (r *CardRepository) UpdateCard(ctx context.Context, projectID, cardID string, fn func(c *domain.Card) error) (*domain.Card, error) {
	if err := domain.ValidateID(projectID); err != nil {
		return nil, err
	}

	var c domain.Card
	err := r.store.Update(ctx, ports.KindCards, cardID, &c, func(exists bool) error {
		if !exists || c.ProjectID != projectID {
			return domain.Wrap(domain.ErrNotFound, "update", "card", cardID, nil)
		}
		if err := fn(&c); err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		c.UpdatedAt = nowUTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteCard removes one card record and reports it in the cascade
func (r *CardRepository) DeleteCard(ctx context.Context, projectID, cardID string) (*domain.Cascade, error) {
	c, err := r.GetCard(ctx, projectID, cardID)
	if err != nil {
		return nil, err
	}
	if err := r.store.Delete(ctx, ports.KindCards, cardID); err != nil {
		return nil, err
	}
	return &domain.Cascade{Cards: []domain.Card{*c}}, nil
}

// GenerateCardID returns a random card id unused in the project and in the
// global card namespace
func (r *CardRepository) GenerateCardID(ctx context.Context, projectID string) (string, error) {
	if err := domain.ValidateID(projectID); err != nil {
		return "", err
	}
	ids, err := r.store.ListIDs(ctx, ports.KindCards)
	if err != nil {
		return "", err
	}
	taken := toSet(ids)

	// ids of corrupt records are already in taken
	cards, err := r.ListCards(ctx, projectID)
	if err != nil && !domain.IsCorrupt(err) {
		return "", err
	}
	for _, c := range cards {
		taken[c.ID] = struct{}{}
	}
	return freshID(domain.CardIDPrefix, taken)
}
