package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	provadapter "github.com/kamal-hamza/cardforge/internal/adapters/provenance"
	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/ports/mocks"
	"github.com/kamal-hamza/cardforge/pkg/logging"
	"github.com/kamal-hamza/cardforge/pkg/safepath"
)

type galleryFixture struct {
	projects *mocks.MockProjectRepository
	cards    *mocks.MockCardRepository
	resolver *safepath.Resolver
	svc      *GalleryService
	dir      string
}

func newGalleryFixture(t *testing.T) *galleryFixture {
	t.Helper()
	cards := mocks.NewMockCardRepository()
	projects := mocks.NewMockProjectRepository(cards)
	resolver := newTestResolver(t)
	ctx := context.Background()

	p, err := domain.NewProject("p1", "Woodland")
	require.NoError(t, err)
	require.NoError(t, projects.SaveProject(ctx, p))
	c, err := domain.NewCard("c1", "p1", "Fox", "a red fox")
	require.NoError(t, err)
	require.NoError(t, cards.SaveCard(ctx, c))

	dir, err := resolver.CardDir(p.OutputRoot, c.OutputSubfolder)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0755))

	return &galleryFixture{
		projects: projects,
		cards:    cards,
		resolver: resolver,
		svc:      NewGalleryService(projects, cards, resolver, provadapter.NewCodec(), logging.NewNop()),
		dir:      dir,
	}
}

func (f *galleryFixture) write(t *testing.T, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, name), data, 0644))
}

func filenames(images []domain.ImageEntry) []string {
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = img.Filename
	}
	return out
}

func TestGallery_NaturalDescendingOrder(t *testing.T) {
	f := newGalleryFixture(t)
	for _, name := range []string{"image_2.png", "image_1.png", "image_10.png", "image_100.png", "image_3.png"} {
		f.write(t, name, []byte("x"))
	}
	// not images, not listed
	f.write(t, ".pending-abc.tmp", []byte("x"))
	f.write(t, "notes.txt", []byte("x"))
	f.write(t, ".hidden.png", []byte("x"))

	images, err := f.svc.ListImages(context.Background(), "p1", "c1", false)
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"image_100.png", "image_10.png", "image_3.png", "image_2.png", "image_1.png"},
		filenames(images))
	assert.Equal(t, "output/woodland/fox/image_100.png", images[0].RelPath)
}

func TestSortImages_TiesNewestFirst(t *testing.T) {
	now := time.Now()
	images := []domain.ImageEntry{
		{Filename: "a_1.png", ModTime: now.Add(-time.Hour)},
		{Filename: "a_1.png", ModTime: now},
		{Filename: "a_2.png", ModTime: now.Add(-2 * time.Hour)},
	}
	SortImages(images)
	assert.Equal(t, "a_2.png", images[0].Filename)
	assert.True(t, images[1].ModTime.Equal(now))
}

func TestGallery_MissingDirIsEmpty(t *testing.T) {
	f := newGalleryFixture(t)
	require.NoError(t, os.RemoveAll(f.dir))

	images, err := f.svc.ListImages(context.Background(), "p1", "c1", true)
	require.NoError(t, err)
	assert.Empty(t, images)

	n, err := f.svc.CountImages(context.Background(), "p1", "c1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGallery_ArchiveAndFavorite(t *testing.T) {
	f := newGalleryFixture(t)
	ctx := context.Background()
	f.write(t, "x.png", []byte("x"))
	f.write(t, "y.png", []byte("y"))

	require.NoError(t, f.svc.Archive(ctx, "p1", "c1", "x.png"))
	// archiving twice is a no-op
	require.NoError(t, f.svc.Archive(ctx, "p1", "c1", "x.png"))

	visible, err := f.svc.ListImages(ctx, "p1", "c1", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"y.png"}, filenames(visible))

	all, err := f.svc.ListImages(ctx, "p1", "c1", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"y.png", "x.png"}, filenames(all))
	assert.True(t, all[1].IsArchived)

	_, err = os.Stat(filepath.Join(f.dir, "x.png"))
	assert.NoError(t, err, "archiving must not remove the file")

	require.NoError(t, f.svc.Unarchive(ctx, "p1", "c1", "x.png"))
	n, err := f.svc.CountImages(ctx, "p1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	on, err := f.svc.ToggleFavorite(ctx, "p1", "c1", "y.png")
	require.NoError(t, err)
	assert.True(t, on)
	off, err := f.svc.ToggleFavorite(ctx, "p1", "c1", "y.png")
	require.NoError(t, err)
	assert.False(t, off)

	c, err := f.cards.GetCard(ctx, "p1", "c1")
	require.NoError(t, err)
	assert.False(t, c.IsFavorite("y.png"))
	assert.Empty(t, c.ArchivedImages)
}

func TestGallery_StaleSetEntriesAreTolerated(t *testing.T) {
	f := newGalleryFixture(t)
	ctx := context.Background()
	f.write(t, "kept.png", []byte("x"))

	_, err := f.svc.ToggleFavorite(ctx, "p1", "c1", "deleted-long-ago.png")
	require.NoError(t, err)
	require.NoError(t, f.svc.Archive(ctx, "p1", "c1", "also-gone.png"))

	images, err := f.svc.ListImages(ctx, "p1", "c1", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"kept.png"}, filenames(images))
}

func TestGallery_RejectsPathFilenames(t *testing.T) {
	f := newGalleryFixture(t)
	_, err := f.svc.ToggleFavorite(context.Background(), "p1", "c1", "../other/x.png")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGallery_ReadMetadata(t *testing.T) {
	f := newGalleryFixture(t)
	ctx := context.Background()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	data, err := provadapter.NewCodec().Embed(mocks.TinyPNG(), "image/png", domain.Provenance{
		Prompt: "a red fox", Title: "Fox", ProjectName: "Woodland", CreatedAt: created,
	})
	require.NoError(t, err)
	f.write(t, "fox_1.png", data)
	f.write(t, "bare_1.png", mocks.TinyPNG())

	meta, err := f.svc.ReadMetadata(ctx, "output/woodland/fox/fox_1.png")
	require.NoError(t, err)
	assert.True(t, meta.HasPrompt)
	assert.Equal(t, "a red fox", meta.Prompt)
	assert.Equal(t, "Woodland", meta.Author)
	assert.True(t, created.Equal(meta.CreatedAt))

	bare, err := f.svc.ReadMetadata(ctx, "output/woodland/fox/bare_1.png")
	require.NoError(t, err)
	assert.False(t, bare.HasPrompt)
	assert.True(t, bare.CreatedAt.Equal(bare.ModTime))

	_, err = f.svc.ReadMetadata(ctx, "output/woodland/fox/missing.png")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.ReadMetadata(ctx, "output/../records/cards/c1.json")
	assert.ErrorIs(t, err, domain.ErrSecurityViolation)
}

func TestGallery_UnsafeCardFolder(t *testing.T) {
	f := newGalleryFixture(t)
	ctx := context.Background()

	c, err := f.cards.GetCard(ctx, "p1", "c1")
	require.NoError(t, err)
	c.OutputSubfolder = "a/../../../escape"
	require.NoError(t, f.cards.SaveCard(ctx, c))

	_, err = f.svc.ListImages(ctx, "p1", "c1", false)
	assert.ErrorIs(t, err, domain.ErrSecurityViolation)
}
