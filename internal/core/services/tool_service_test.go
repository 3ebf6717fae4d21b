package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/ports/mocks"
	"github.com/kamal-hamza/cardforge/pkg/logging"
)

func newToolFixture(t *testing.T) (*ToolService, *mocks.MockImageProvider) {
	t.Helper()
	ctx := context.Background()
	cards := mocks.NewMockCardRepository()
	projects := mocks.NewMockProjectRepository(cards)
	resolver := newTestResolver(t)
	entities := NewEntityService(projects, cards, resolver, logging.NewNop())

	_, err := entities.CreateProject(ctx, CreateProjectRequest{ID: "tarot", Name: "Tarot"})
	require.NoError(t, err)
	_, err = entities.CreateCard(ctx, CreateCardRequest{ID: "moon", ProjectID: "tarot", Name: "The Moon", Prompt: "a pale moon"})
	require.NoError(t, err)
	_, err = entities.CreateCard(ctx, CreateCardRequest{ID: "sun", ProjectID: "tarot", Name: "The Sun", Prompt: "a bright sun"})
	require.NoError(t, err)

	provider := mocks.NewMockImageProvider()
	media := NewMediaOutputService(resolver, &mocks.MockProvenanceCodec{}, logging.NewNop())
	generation := NewGenerationService(projects, cards, mocks.NewMockKeyRepository(), provider, media, resolver,
		GenerationDefaults{Count: 1}, logging.NewNop())

	return NewToolService(entities, NewFinderService(projects, cards), generation), provider
}

func strPtr(s string) *string { return &s }

func TestToolService_EditCard(t *testing.T) {
	svc, _ := newToolFixture(t)
	ctx := context.Background()

	action, err := svc.EditCard(ctx, "tarot", "moon", CardPatch{Prompt: strPtr("a blood moon"), AspectRatio: strPtr("2:3")})
	require.NoError(t, err)

	updated, ok := action.(domain.CardUpdated)
	require.True(t, ok, "expected CardUpdated, got %T", action)
	assert.Equal(t, "a blood moon", updated.Card.Prompt)
	assert.Equal(t, "2:3", updated.Card.AspectRatio)
	assert.Equal(t, "The Moon", updated.Card.Name)

	_, err = svc.EditCard(ctx, "tarot", "moon", CardPatch{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.EditCard(ctx, "tarot", "moon", CardPatch{Name: strPtr(" ")})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestToolService_Navigate(t *testing.T) {
	svc, _ := newToolFixture(t)
	ctx := context.Background()

	action, err := svc.Navigate(ctx, "sun", "")
	require.NoError(t, err)
	assert.Equal(t, domain.Navigated{ProjectID: "tarot", CardID: "sun"}, action)

	_, err = svc.Navigate(ctx, "star", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestToolService_StartGeneration(t *testing.T) {
	svc, provider := newToolFixture(t)
	ctx := context.Background()

	action, job, err := svc.StartGeneration(ctx, GenerateRequest{ProjectID: "tarot", CardID: "moon", Count: 2})
	require.NoError(t, err)
	assert.Equal(t, domain.GenerationStarted{ProjectID: "tarot", CardID: "moon", Count: 2, Prompt: "a pale moon"}, action)

	res, err := job.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"output/tarot/the-moon/the-moon_1.png", "output/tarot/the-moon/the-moon_2.png"}, res.Paths)
	assert.Len(t, provider.Calls(), 2)

	_, job, err = svc.StartGeneration(ctx, GenerateRequest{ProjectID: "tarot", CardID: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Nil(t, job)
}

func TestToolService_ActionsSwitch(t *testing.T) {
	describe := func(a domain.Action) string {
		switch v := a.(type) {
		case domain.CardUpdated:
			return "updated " + v.Card.ID
		case domain.Navigated:
			return "navigated " + v.CardID
		case domain.GenerationStarted:
			return "generating " + v.CardID
		}
		return "unknown"
	}
	assert.Equal(t, "updated c1", describe(domain.CardUpdated{Card: domain.Card{ID: "c1"}}))
	assert.Equal(t, "navigated c2", describe(domain.Navigated{CardID: "c2"}))
	assert.Equal(t, "generating c3", describe(domain.GenerationStarted{CardID: "c3"}))
}
