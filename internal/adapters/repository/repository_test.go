package repository

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/ports"
	"github.com/kamal-hamza/cardforge/pkg/logging"
)

type repos struct {
	store    *FileRecordStore
	projects *ProjectRepository
	cards    *CardRepository
	keys     *KeyRepository
}

func newRepos(t *testing.T) repos {
	t.Helper()
	store := NewFileRecordStore(t.TempDir(), time.Millisecond)
	cards := NewCardRepository(store, logging.NewNop())
	return repos{
		store:    store,
		projects: NewProjectRepository(store, cards, logging.NewNop()),
		cards:    cards,
		keys:     NewKeyRepository(store),
	}
}

func mustProject(t *testing.T, r repos, id string) *domain.Project {
	t.Helper()
	p, err := domain.NewProject(id, "Deck "+id)
	require.NoError(t, err)
	require.NoError(t, r.projects.SaveProject(context.Background(), p))
	return p
}

func mustCard(t *testing.T, r repos, projectID, id string) *domain.Card {
	t.Helper()
	c, err := domain.NewCard(id, projectID, "Card "+id, "prompt "+id)
	require.NoError(t, err)
	require.NoError(t, r.cards.SaveCard(context.Background(), c))
	return c
}

func TestProjectRepository_SavePreservesCreatedAt(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	p := mustProject(t, r, "p1")
	created := p.CreatedAt

	replacement := &domain.Project{ID: "p1", Name: "Renamed"}
	require.NoError(t, r.projects.SaveProject(ctx, replacement))

	got, err := r.projects.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, domain.DefaultFolder, got.OutputRoot)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.False(t, got.UpdatedAt.Before(created))
}

func TestProjectRepository_DeleteCascadesToCards(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	mustProject(t, r, "p1")
	mustProject(t, r, "p2")
	mustCard(t, r, "p1", "c1")
	mustCard(t, r, "p1", "c2")
	mustCard(t, r, "p2", "c3")

	cascade, err := r.projects.DeleteProject(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, cascade.Project)
	assert.Equal(t, "p1", cascade.Project.ID)
	assert.Len(t, cascade.Cards, 2)

	_, err = r.projects.GetProject(ctx, "p1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	for _, id := range []string{"c1", "c2"} {
		_, err := r.cards.GetCard(ctx, "p1", id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}

	// other project untouched
	_, err = r.cards.GetCard(ctx, "p2", "c3")
	assert.NoError(t, err)
}

// truncate leaves a record that exists but no longer decodes
func truncate(t *testing.T, r repos, kind ports.Kind, id string) {
	t.Helper()
	path := r.store.recordPath(kind, id)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)/2], 0644))
}

func TestCardRepository_ListReportsCorruptRecords(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	mustCard(t, r, "p1", "c1")
	mustCard(t, r, "p1", "c2")
	truncate(t, r, ports.KindCards, "c2")

	cards, err := r.cards.ListCards(ctx, "p1")
	assert.ErrorIs(t, err, domain.ErrCorruptRecord)
	require.Len(t, cards, 1)
	assert.Equal(t, "c1", cards[0].ID)

	// the owner of a corrupt record is unknown, so every filter reports it
	_, err = r.cards.ListCards(ctx, "other")
	assert.ErrorIs(t, err, domain.ErrCorruptRecord)
}

func TestProjectRepository_ListReportsCorruptRecords(t *testing.T) {
	r := newRepos(t)
	mustProject(t, r, "p1")
	mustProject(t, r, "p2")
	truncate(t, r, ports.KindProjects, "p2")

	projects, err := r.projects.ListProjects(context.Background())
	assert.ErrorIs(t, err, domain.ErrCorruptRecord)
	require.Len(t, projects, 1)
	assert.Equal(t, "p1", projects[0].ID)
}

func TestProjectRepository_DeleteStopsOnCorruptCard(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	mustProject(t, r, "p1")
	mustCard(t, r, "p1", "c1")
	mustCard(t, r, "p1", "c2")
	truncate(t, r, ports.KindCards, "c2")

	cascade, err := r.projects.DeleteProject(ctx, "p1")
	assert.ErrorIs(t, err, domain.ErrCorruptRecord)
	assert.Nil(t, cascade)

	_, err = r.projects.GetProject(ctx, "p1")
	assert.NoError(t, err)
	_, err = r.cards.GetCard(ctx, "p1", "c1")
	assert.NoError(t, err)
	_, err = os.Stat(r.store.recordPath(ports.KindCards, "c2"))
	assert.NoError(t, err)
}

func TestCardRepository_SaveKeepsOwningProject(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	mustCard(t, r, "pa", "x")

	moved, err := domain.NewCard("x", "pb", "Card x", "prompt")
	require.NoError(t, err)
	err = r.cards.SaveCard(ctx, moved)
	assert.ErrorIs(t, err, domain.ErrConflict)

	inA, err := r.cards.ListCards(ctx, "pa")
	require.NoError(t, err)
	assert.Len(t, inA, 1)
	inB, err := r.cards.ListCards(ctx, "pb")
	require.NoError(t, err)
	assert.Empty(t, inB)
}

func TestCardRepository_GetCardWrongProject(t *testing.T) {
	r := newRepos(t)
	mustCard(t, r, "p1", "c1")

	_, err := r.cards.GetCard(context.Background(), "p2", "c1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCardRepository_SaveRequiresProjectID(t *testing.T) {
	r := newRepos(t)
	err := r.cards.SaveCard(context.Background(), &domain.Card{ID: "c1", Name: "Orphan"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCardRepository_SaveDoesNotRequireProject(t *testing.T) {
	r := newRepos(t)
	mustCard(t, r, "ghost", "c1")

	cards, err := r.cards.ListCards(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Len(t, cards, 1)
}

func TestCardRepository_UpdateCard(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	mustCard(t, r, "p1", "c1")

	updated, err := r.cards.UpdateCard(ctx, "p1", "c1", func(c *domain.Card) error {
		c.ToggleFavorite("fox_1.png")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, updated.IsFavorite("fox_1.png"))

	got, err := r.cards.GetCard(ctx, "p1", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"fox_1.png"}, got.FavoriteImages)

	_, err = r.cards.UpdateCard(ctx, "p2", "c1", func(*domain.Card) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = r.cards.UpdateCard(ctx, "p1", "nope", func(*domain.Card) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCardRepository_GenerateCardID(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	pattern := regexp.MustCompile(`^card-\d{5}-\d{4}$`)

	seen := map[string]bool{}
	for range 10 {
		id, err := r.cards.GenerateCardID(ctx, "p1")
		require.NoError(t, err)
		assert.Regexp(t, pattern, id)
		assert.NoError(t, domain.ValidateID(id))
		mustCard(t, r, "p1", id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestCardRepository_ConcurrentSaveDifferentIDs(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := domain.NewCard(fmt.Sprintf("c%02d", i), "p1", "Card", "prompt")
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, r.cards.SaveCard(ctx, c))
		}(i)
	}
	wg.Wait()

	cards, err := r.cards.ListCards(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, cards, n)
}

func TestCardRepository_ConcurrentSaveSameID(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	prompts := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	var wg sync.WaitGroup
	for _, prompt := range prompts {
		wg.Add(1)
		go func(prompt string) {
			defer wg.Done()
			c, err := domain.NewCard("same", "p1", "Card", prompt)
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, r.cards.SaveCard(ctx, c))
		}(prompt)
	}
	wg.Wait()

	got, err := r.cards.GetCard(ctx, "p1", "same")
	require.NoError(t, err)
	assert.Contains(t, prompts, got.Prompt)
}

func TestKeyRepository_SaveReplacesByName(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	keys, err := r.keys.GetKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, r.keys.SaveKey(ctx, "work", "key-1"))
	require.NoError(t, r.keys.SaveKey(ctx, "home", "key-2"))
	require.NoError(t, r.keys.SaveKey(ctx, "work", "key-3"))

	keys, err = r.keys.GetKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.APIKey{
		{Name: "work", Key: "key-3"},
		{Name: "home", Key: "key-2"},
	}, keys)

	assert.ErrorIs(t, r.keys.SaveKey(ctx, "", "x"), domain.ErrValidation)
}
