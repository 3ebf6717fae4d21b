package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/ports"
)

// FinderService lists and searches entities. It keeps no index; every call
// re-reads the repositories.
type FinderService struct {
	projects ports.ProjectRepository
	cards    ports.CardRepository
}

// NewFinderService creates a new finder service
func NewFinderService(projects ports.ProjectRepository, cards ports.CardRepository) *FinderService {
	return &FinderService{
		projects: projects,
		cards:    cards,
	}
}

// ListRequest represents a request to list projects or cards
type ListRequest struct {
	ProjectID string // restrict cards to one project (optional)
	SortBy    string // "name", "created", "updated" (default: name)
	Reverse   bool   // Reverse sort order
}

// ListProjects returns projects sorted per the request. Corrupt records
// are returned as an ErrCorruptRecord error next to the readable projects.
func (s *FinderService) ListProjects(ctx context.Context, req ListRequest) ([]domain.Project, error) {
	projects, err := s.projects.ListProjects(ctx)
	if err != nil && !domain.IsCorrupt(err) {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	sort.SliceStable(projects, func(i, j int) bool {
		return less(req, projects[i].Name, projects[j].Name,
			projects[i].CreatedAt.UnixNano(), projects[j].CreatedAt.UnixNano(),
			projects[i].UpdatedAt.UnixNano(), projects[j].UpdatedAt.UnixNano())
	})
	return projects, err
}

// ListCards returns cards sorted per the request, with the same corrupt
// record reporting as ListProjects
func (s *FinderService) ListCards(ctx context.Context, req ListRequest) ([]domain.Card, error) {
	cards, err := s.cards.ListCards(ctx, req.ProjectID)
	if err != nil && !domain.IsCorrupt(err) {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	sort.SliceStable(cards, func(i, j int) bool {
		return less(req, cards[i].Name, cards[j].Name,
			cards[i].CreatedAt.UnixNano(), cards[j].CreatedAt.UnixNano(),
			cards[i].UpdatedAt.UnixNano(), cards[j].UpdatedAt.UnixNano())
	})
	return cards, err
}

func less(req ListRequest, nameA, nameB string, createdA, createdB, updatedA, updatedB int64) bool {
	var l bool
	switch req.SortBy {
	case "created":
		l = createdA < createdB
	case "updated":
		l = updatedA < updatedB
	default: // "name"
		l = strings.ToLower(nameA) < strings.ToLower(nameB)
	}
	if req.Reverse {
		return !l
	}
	return l
}

// CardMatch is a search hit with its owning project, when known
type CardMatch struct {
	Card    domain.Card
	Project *domain.Project
	Score   int
}

// FindCards returns cards whose name contains query, ignoring case, across
// one project or all of them. Better matches come first. Corrupt records are
// reported through an ErrCorruptRecord error returned with the matches.
func (s *FinderService) FindCards(ctx context.Context, query, projectID string) ([]CardMatch, error) {
	if projectID != "" {
		if err := domain.ValidateID(projectID); err != nil {
			return nil, err
		}
	}
	cards, cardErr := s.cards.ListCards(ctx, projectID)
	if cardErr != nil && !domain.IsCorrupt(cardErr) {
		return nil, fmt.Errorf("failed to list cards: %w", cardErr)
	}

	projects, projectErr := s.projects.ListProjects(ctx)
	if projectErr != nil && !domain.IsCorrupt(projectErr) {
		return nil, fmt.Errorf("failed to list projects: %w", projectErr)
	}
	byID := make(map[string]*domain.Project, len(projects))
	for i := range projects {
		byID[projects[i].ID] = &projects[i]
	}

	query = strings.TrimSpace(query)
	var matches []CardMatch
	for _, c := range cards {
		score := substringScore(c.Name, query)
		if score == 0 {
			continue
		}
		matches = append(matches, CardMatch{Card: c, Project: byID[c.ProjectID], Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return strings.ToLower(matches[i].Card.Name) < strings.ToLower(matches[j].Card.Name)
	})
	return matches, errors.Join(cardErr, projectErr)
}

// substringScore returns 0 when query is not a case-insensitive substring of
// text. An empty query matches everything with the lowest score.
func substringScore(text, query string) int {
	if query == "" {
		return 1
	}

	textLower := strings.ToLower(text)
	queryLower := strings.ToLower(query)

	// Exact match gets highest score
	if text == query {
		return 10000
	}

	// Case-insensitive exact match
	if textLower == queryLower {
		return 9000
	}

	idx := strings.Index(textLower, queryLower)
	if idx < 0 {
		return 0
	}
	score := 5000
	// Bonus for match at start
	if idx == 0 {
		score += 2000
	} else if r := textLower[idx-1]; r == ' ' || r == '-' || r == '_' {
		// Bonus for matching at word boundary
		score += 1000
	}
	return score
}
