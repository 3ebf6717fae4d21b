package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/ports/mocks"
	"github.com/kamal-hamza/cardforge/pkg/logging"
	"github.com/kamal-hamza/cardforge/pkg/safepath"
)

type generationFixture struct {
	provider *mocks.MockImageProvider
	keys     *mocks.MockKeyRepository
	resolver *safepath.Resolver
	gallery  *GalleryService
	svc      *GenerationService
}

func newGenerationFixture(t *testing.T, keys ...domain.APIKey) *generationFixture {
	t.Helper()
	ctx := context.Background()
	cards := mocks.NewMockCardRepository()
	projects := mocks.NewMockProjectRepository(cards)

	p, err := domain.NewProject("woodland", "Woodland")
	require.NoError(t, err)
	p.GlobalPrefix = "storybook illustration"
	p.GlobalSuffix = "soft light"
	p.DefaultAspectRatio = "3:4"
	p.PromptModifiers = []domain.PromptModifier{
		{ID: "m1", Name: "style", Text: "watercolor", Type: domain.ModifierPrefix},
		{ID: "m2", Name: "detail", Text: "highly detailed", Type: domain.ModifierSuffix},
	}
	require.NoError(t, projects.SaveProject(ctx, p))

	c, err := domain.NewCard("fox", "woodland", "Fox", "a red fox")
	require.NoError(t, err)
	require.NoError(t, cards.SaveCard(ctx, c))

	resolver := newTestResolver(t)
	codec := &mocks.MockProvenanceCodec{}
	provider := mocks.NewMockImageProvider()
	keyRepo := mocks.NewMockKeyRepository(keys...)
	media := NewMediaOutputService(resolver, codec, logging.NewNop())

	return &generationFixture{
		provider: provider,
		keys:     keyRepo,
		resolver: resolver,
		gallery:  NewGalleryService(projects, cards, resolver, codec, logging.NewNop()),
		svc: NewGenerationService(projects, cards, keyRepo, provider, media, resolver,
			GenerationDefaults{AspectRatio: "1:1", Resolution: "1K", Count: 1}, logging.NewNop()),
	}
}

func TestGenerationService_PartialFailure(t *testing.T) {
	f := newGenerationFixture(t)
	f.provider.FailOn[2] = errors.New("upstream timeout")
	ctx := context.Background()

	res, err := f.svc.Generate(ctx, GenerateRequest{ProjectID: "woodland", CardID: "fox", Count: 3})
	require.NoError(t, err)
	assert.Len(t, res.Paths, 2)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 2, res.Failures[0].Index)
	assert.ErrorIs(t, res.Failures[0].Err, domain.ErrProvider)
	assert.Contains(t, res.Failures[0].Err.Error(), "upstream timeout")

	images, err := f.gallery.ListImages(ctx, "woodland", "fox", true)
	require.NoError(t, err)
	assert.Len(t, images, 2)
	assert.Equal(t, []string{"fox_2.png", "fox_1.png"}, []string{images[0].Filename, images[1].Filename})
}

func TestGenerationService_AllFailReturnsError(t *testing.T) {
	f := newGenerationFixture(t)
	f.provider.FailOn[1] = nil
	f.provider.FailOn[2] = nil

	res, err := f.svc.Generate(context.Background(), GenerateRequest{ProjectID: "woodland", CardID: "fox", Count: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProvider)
	require.NotNil(t, res)
	assert.Empty(t, res.Paths)
	assert.Len(t, res.Failures, 2)
}

func TestGenerationService_PromptAndSize(t *testing.T) {
	f := newGenerationFixture(t)
	ctx := context.Background()

	res, err := f.svc.Generate(ctx, GenerateRequest{ProjectID: "woodland", CardID: "fox"})
	require.NoError(t, err)
	assert.Equal(t, "storybook illustration, watercolor, a red fox, highly detailed, soft light", res.Prompt)

	calls := f.provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, res.Prompt, calls[0].Prompt)
	assert.Equal(t, "3:4", calls[0].AspectRatio, "project default beats config")
	assert.Equal(t, "1K", calls[0].Resolution, "config default fills the gap")

	_, err = f.svc.Generate(ctx, GenerateRequest{
		ProjectID: "woodland", CardID: "fox",
		PromptOverride: "  an arctic fox ", AspectRatio: "16:9", Resolution: "2K",
	})
	require.NoError(t, err)
	calls = f.provider.Calls()
	assert.Equal(t, "storybook illustration, watercolor, an arctic fox, highly detailed, soft light", calls[1].Prompt)
	assert.Equal(t, "16:9", calls[1].AspectRatio)
	assert.Equal(t, "2K", calls[1].Resolution)
}

func TestBuildPrompt_DropsEmptyParts(t *testing.T) {
	p := &domain.Project{GlobalPrefix: "  ", PromptModifiers: []domain.PromptModifier{{Text: "", Type: domain.ModifierPrefix}}}
	c := &domain.Card{Prompt: " moon "}
	assert.Equal(t, "moon", BuildPrompt(p, c, ""))
	assert.Equal(t, "", BuildPrompt(&domain.Project{}, &domain.Card{}, ""))
}

func TestGenerationService_InvalidRequests(t *testing.T) {
	f := newGenerationFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  GenerateRequest
		kind error
	}{
		{"count too high", GenerateRequest{ProjectID: "woodland", CardID: "fox", Count: MaxImagesPerRequest + 1}, domain.ErrValidation},
		{"negative count", GenerateRequest{ProjectID: "woodland", CardID: "fox", Count: -1}, domain.ErrValidation},
		{"unknown project", GenerateRequest{ProjectID: "nope", CardID: "fox"}, domain.ErrNotFound},
		{"unknown card", GenerateRequest{ProjectID: "woodland", CardID: "nope"}, domain.ErrNotFound},
		{"unknown key name", GenerateRequest{ProjectID: "woodland", CardID: "fox", Credentials: Credentials{KeyName: "missing"}}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Generate(ctx, tt.req)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
	assert.Empty(t, f.provider.Calls(), "invalid requests never reach the provider")
}

func TestGenerationService_KeysArePerRequest(t *testing.T) {
	f := newGenerationFixture(t,
		domain.APIKey{Name: "personal", Key: "sk-personal"},
		domain.APIKey{Name: "work", Key: "sk-work"},
	)
	ctx := context.Background()

	_, err := f.svc.Generate(ctx, GenerateRequest{ProjectID: "woodland", CardID: "fox"})
	require.NoError(t, err)
	_, err = f.svc.Generate(ctx, GenerateRequest{ProjectID: "woodland", CardID: "fox", Credentials: Credentials{KeyName: "work"}})
	require.NoError(t, err)
	_, err = f.svc.Generate(ctx, GenerateRequest{ProjectID: "woodland", CardID: "fox", Credentials: Credentials{APIKey: "sk-inline"}})
	require.NoError(t, err)

	calls := f.provider.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "sk-personal", calls[0].APIKey)
	assert.Equal(t, "sk-work", calls[1].APIKey)
	assert.Equal(t, "sk-inline", calls[2].APIKey)
	assert.Equal(t, 2, f.keys.Lookups, "keyring consulted on every call without an inline key")
}

func TestGenerationService_CancelledWritesNothing(t *testing.T) {
	f := newGenerationFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.svc.Generate(ctx, GenerateRequest{ProjectID: "woodland", CardID: "fox", Count: 3})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Paths)
	assert.Len(t, res.Failures, 3)

	dir, err := f.resolver.CardDir("woodland", "fox")
	require.NoError(t, err)
	assert.Empty(t, onDiskImages(t, dir))
}
