package services

import (
	"context"
	"testing"
	"time"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/ports/mocks"
)

func seedFinder(t *testing.T) *FinderService {
	t.Helper()
	ctx := context.Background()
	cards := mocks.NewMockCardRepository()
	projects := mocks.NewMockProjectRepository(cards)

	for _, p := range []struct{ id, name string }{{"tarot", "Tarot"}, {"runes", "Runes"}} {
		proj, err := domain.NewProject(p.id, p.name)
		if err != nil {
			t.Fatal(err)
		}
		if err := projects.SaveProject(ctx, proj); err != nil {
			t.Fatal(err)
		}
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed := []struct{ id, project, name string }{
		{"c1", "tarot", "The Moon"},
		{"c2", "tarot", "Moonlit Path"},
		{"c3", "tarot", "The Fool"},
		{"c4", "runes", "moon rune"},
		{"c5", "runes", "Honeymoon"},
	}
	for i, s := range seed {
		c, err := domain.NewCard(s.id, s.project, s.name, "")
		if err != nil {
			t.Fatal(err)
		}
		c.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if err := cards.SaveCard(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	return NewFinderService(projects, cards)
}

func TestFinderService_FindCards(t *testing.T) {
	svc := seedFinder(t)

	tests := []struct {
		name      string
		query     string
		projectID string
		expected  []string
	}{
		{
			name:     "case insensitive across projects, prefix first",
			query:    "MOON",
			expected: []string{"c4", "c2", "c1", "c5"},
		},
		{
			name:      "restricted to one project",
			query:     "moon",
			projectID: "runes",
			expected:  []string{"c4", "c5"},
		},
		{
			name:     "no match",
			query:    "sun",
			expected: nil,
		},
		{
			name:     "exact name wins",
			query:    "The Fool",
			expected: []string{"c3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := svc.FindCards(context.Background(), tt.query, tt.projectID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(matches) != len(tt.expected) {
				t.Fatalf("expected %d matches, got %d", len(tt.expected), len(matches))
			}
			for i, id := range tt.expected {
				if matches[i].Card.ID != id {
					t.Errorf("match %d: expected %s, got %s", i, id, matches[i].Card.ID)
				}
				if matches[i].Project == nil || matches[i].Project.ID != matches[i].Card.ProjectID {
					t.Errorf("match %d: owning project not attached", i)
				}
			}
		})
	}
}

func TestFinderService_FindCardsSeesNewCards(t *testing.T) {
	cards := mocks.NewMockCardRepository()
	svc := NewFinderService(mocks.NewMockProjectRepository(cards), cards)
	ctx := context.Background()

	matches, _ := svc.FindCards(ctx, "star", "")
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}

	c, _ := domain.NewCard("c9", "p", "The Star", "")
	if err := cards.SaveCard(ctx, c); err != nil {
		t.Fatal(err)
	}

	matches, _ = svc.FindCards(ctx, "star", "")
	if len(matches) != 1 {
		t.Fatalf("expected new card to be found without reindexing, got %d", len(matches))
	}
}

func TestFinderService_ListCardsSorting(t *testing.T) {
	svc := seedFinder(t)

	tests := []struct {
		name     string
		req      ListRequest
		expected []string
	}{
		{"by name", ListRequest{ProjectID: "tarot"}, []string{"c2", "c3", "c1"}},
		{"by name reversed", ListRequest{ProjectID: "tarot", Reverse: true}, []string{"c1", "c3", "c2"}},
		{"by created", ListRequest{ProjectID: "tarot", SortBy: "created"}, []string{"c1", "c2", "c3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cards, err := svc.ListCards(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for i, id := range tt.expected {
				if cards[i].ID != id {
					t.Errorf("position %d: expected %s, got %s", i, id, cards[i].ID)
				}
			}
		})
	}
}

func TestFinderService_ReportsUnreadableCards(t *testing.T) {
	cards := mocks.NewMockCardRepository()
	svc := NewFinderService(mocks.NewMockProjectRepository(cards), cards)
	ctx := context.Background()

	c, _ := domain.NewCard("c1", "p", "The Star", "")
	if err := cards.SaveCard(ctx, c); err != nil {
		t.Fatal(err)
	}
	cards.ListErr = domain.Wrap(domain.ErrCorruptRecord, "load", "cards", "c2", nil)

	listed, err := svc.ListCards(ctx, ListRequest{})
	if !domain.IsCorrupt(err) {
		t.Fatalf("expected corrupt record error, got %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected the readable card, got %d", len(listed))
	}

	matches, err := svc.FindCards(ctx, "star", "")
	if !domain.IsCorrupt(err) {
		t.Fatalf("expected corrupt record error, got %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one match, got %d", len(matches))
	}
}

func TestSubstringScore(t *testing.T) {
	tests := []struct {
		text, query string
		wantMatch   bool
	}{
		{"The Moon", "moon", true},
		{"The Moon", "the m", true},
		{"The Moon", "mn", false},
		{"", "x", false},
		{"anything", "", true},
	}
	for _, tt := range tests {
		got := substringScore(tt.text, tt.query) > 0
		if got != tt.wantMatch {
			t.Errorf("substringScore(%q, %q) match = %v, want %v", tt.text, tt.query, got, tt.wantMatch)
		}
	}
}
