package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/ports"
	"github.com/kamal-hamza/cardforge/pkg/logging"
)

// CardStats counts the images of one card. Only files present on disk are
// counted, so stale favorite or archive entries do not show up.
type CardStats struct {
	CardID    string
	Name      string
	Images    int // not archived
	Favorites int
	Archived  int
	Bytes     int64
	Err       error // set when the card directory could not be listed
}

// ProjectStats aggregates the cards of one project
type ProjectStats struct {
	ProjectID string
	Name      string
	Cards     []CardStats
	Images    int
	Favorites int
	Archived  int
	Bytes     int64
}

// Stats is a snapshot of the whole data root
type Stats struct {
	Projects []ProjectStats
	Cards    int
	Images   int
	Bytes    int64
}

// StatsService walks every card directory and counts what it finds
type StatsService struct {
	projects ports.ProjectRepository
	cards    ports.CardRepository
	gallery  *GalleryService
	logger   *slog.Logger
}

func NewStatsService(projects ports.ProjectRepository, cards ports.CardRepository, gallery *GalleryService, logger *slog.Logger) *StatsService {
	return &StatsService{
		projects: projects,
		cards:    cards,
		gallery:  gallery,
		logger:   logging.Component(logger, "stats"),
	}
}

// Collect counts every readable project and card. Corrupt records are left
// out of the totals and returned as an ErrCorruptRecord error with the stats.
func (s *StatsService) Collect(ctx context.Context) (*Stats, error) {
	projects, projectErr := s.projects.ListProjects(ctx)
	if projectErr != nil && !domain.IsCorrupt(projectErr) {
		return nil, projectErr
	}
	all, cardErr := s.cards.ListCards(ctx, "")
	if cardErr != nil && !domain.IsCorrupt(cardErr) {
		return nil, cardErr
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	byProject := make(map[string][]domain.Card, len(projects))
	for _, c := range all {
		byProject[c.ProjectID] = append(byProject[c.ProjectID], c)
	}

	out := &Stats{}
	for _, p := range projects {
		cards := byProject[p.ID]
		ps := ProjectStats{ProjectID: p.ID, Name: p.Name}
		for _, c := range cards {
			cs := s.card(ctx, p.ID, c)
			ps.Cards = append(ps.Cards, cs)
			ps.Images += cs.Images
			ps.Favorites += cs.Favorites
			ps.Archived += cs.Archived
			ps.Bytes += cs.Bytes
		}
		out.Projects = append(out.Projects, ps)
		out.Cards += len(cards)
		out.Images += ps.Images
		out.Bytes += ps.Bytes
	}

	err := errors.Join(projectErr, cardErr)
	if err != nil {
		s.logger.Warn("statistics skip unreadable records", logging.Error(err))
	}
	return out, err
}

func (s *StatsService) card(ctx context.Context, projectID string, c domain.Card) CardStats {
	cs := CardStats{CardID: c.ID, Name: c.Name}
	images, err := s.gallery.ListImages(ctx, projectID, c.ID, true)
	if err != nil {
		s.logger.Warn("skipping card", slog.String(logging.FieldCardID, c.ID), logging.Error(err))
		cs.Err = err
		return cs
	}
	for _, img := range images {
		cs.Bytes += img.Size
		if img.IsArchived {
			cs.Archived++
		} else {
			cs.Images++
		}
		if img.IsFavorite {
			cs.Favorites++
		}
	}
	return cs
}
