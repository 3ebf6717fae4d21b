package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	provadapter "github.com/kamal-hamza/cardforge/internal/adapters/provenance"
	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/ports/mocks"
	"github.com/kamal-hamza/cardforge/pkg/logging"
	"github.com/kamal-hamza/cardforge/pkg/provenance"
	"github.com/kamal-hamza/cardforge/pkg/safepath"
)

func newTestResolver(t *testing.T) *safepath.Resolver {
	t.Helper()
	root := t.TempDir()
	r, err := safepath.New(root, filepath.Join(root, "output"))
	require.NoError(t, err)
	return r
}

func cardDir(t *testing.T, r *safepath.Resolver) string {
	t.Helper()
	dir, err := r.CardDir("woodland", "fox")
	require.NoError(t, err)
	return dir
}

func onDiskImages(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestMediaOutput_SaveEmbedsProvenance(t *testing.T) {
	r := newTestResolver(t)
	svc := NewMediaOutputService(r, provadapter.NewCodec(), logging.NewNop())

	res, err := svc.Save(context.Background(), SaveRequest{
		Data:       mocks.TinyPNG(),
		MimeType:   "image/png",
		Dir:        cardDir(t, r),
		BaseName:   "Red Fox",
		Provenance: domain.Provenance{Prompt: "a red fox", Title: "Red Fox", ProjectName: "Woodland", CardID: "c1"},
	})
	require.NoError(t, err)
	assert.NoError(t, res.ProvenanceErr)
	assert.Equal(t, "red-fox_1.png", res.Filename)
	assert.Equal(t, "output/woodland/fox/red-fox_1.png", res.RelPath)

	meta, err := provenance.ReadFile(res.AbsPath)
	require.NoError(t, err)
	assert.Equal(t, "a red fox", meta.Prompt)
	assert.Equal(t, "Woodland", meta.Author)

	assert.Equal(t, []string{"red-fox_1.png"}, onDiskImages(t, cardDir(t, r)))
}

func TestMediaOutput_CounterContinuesFromHighest(t *testing.T) {
	r := newTestResolver(t)
	dir := cardDir(t, r)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fox_7.jpg"), []byte("x"), 0644))

	svc := NewMediaOutputService(r, &mocks.MockProvenanceCodec{}, logging.NewNop())
	res, err := svc.Save(context.Background(), SaveRequest{Data: mocks.TinyPNG(), MimeType: "image/png", Dir: dir, BaseName: "fox"})
	require.NoError(t, err)
	assert.Equal(t, "fox_8.png", res.Filename)
}

func TestMediaOutput_ConcurrentSavesNeverCollide(t *testing.T) {
	r := newTestResolver(t)
	dir := cardDir(t, r)
	svc := NewMediaOutputService(r, &mocks.MockProvenanceCodec{}, logging.NewNop())

	const n = 12
	var wg sync.WaitGroup
	names := make(chan string, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Save(context.Background(), SaveRequest{Data: mocks.TinyPNG(), MimeType: "image/png", Dir: dir, BaseName: "fox"})
			if assert.NoError(t, err) {
				names <- res.Filename
			}
		}()
	}
	wg.Wait()
	close(names)

	seen := map[string]bool{}
	for name := range names {
		assert.False(t, seen[name], "duplicate filename %s", name)
		seen[name] = true
	}
	assert.Len(t, seen, n)
	assert.Len(t, onDiskImages(t, dir), n, "no pending files may be left behind")
}

func TestMediaOutput_ProvenanceFailureStillSaves(t *testing.T) {
	r := newTestResolver(t)
	svc := NewMediaOutputService(r, &mocks.MockProvenanceCodec{FailEmbed: true}, logging.NewNop())

	data := mocks.TinyPNG()
	res, err := svc.Save(context.Background(), SaveRequest{Data: data, MimeType: "image/png", Dir: cardDir(t, r), BaseName: "fox"})
	require.NoError(t, err)
	assert.ErrorIs(t, res.ProvenanceErr, domain.ErrProvenance)

	written, err := os.ReadFile(res.AbsPath)
	require.NoError(t, err)
	assert.Equal(t, data, written)
}

func TestMediaOutput_WebPIsSavedWithoutProvenance(t *testing.T) {
	r := newTestResolver(t)
	svc := NewMediaOutputService(r, provadapter.NewCodec(), logging.NewNop())

	res, err := svc.Save(context.Background(), SaveRequest{Data: []byte("RIFF0000WEBPVP8 "), MimeType: "image/webp", Dir: cardDir(t, r), BaseName: "fox"})
	require.NoError(t, err)
	assert.Equal(t, "fox_1.webp", res.Filename)
	assert.ErrorIs(t, res.ProvenanceErr, domain.ErrProvenance)
}

func TestMediaOutput_RejectsBeforeAnyIO(t *testing.T) {
	r := newTestResolver(t)
	svc := NewMediaOutputService(r, &mocks.MockProvenanceCodec{}, logging.NewNop())
	dir := cardDir(t, r)

	tests := []struct {
		name string
		req  SaveRequest
		kind error
	}{
		{"unknown mime", SaveRequest{Data: []byte("x"), MimeType: "application/pdf", Dir: dir}, domain.ErrValidation},
		{"empty data", SaveRequest{MimeType: "image/png", Dir: dir}, domain.ErrValidation},
		{"outside root", SaveRequest{Data: []byte("x"), MimeType: "image/png", Dir: filepath.Join(r.DataRoot, "elsewhere")}, domain.ErrSecurityViolation},
		{"root itself", SaveRequest{Data: []byte("x"), MimeType: "image/png", Dir: r.OutputRoot}, domain.ErrSecurityViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Save(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.kind)
		})
	}

	_, err := os.Stat(r.OutputRoot)
	assert.True(t, errors.Is(err, os.ErrNotExist), "nothing should have been created")
}

func TestMediaOutput_CancelledLeavesNothing(t *testing.T) {
	r := newTestResolver(t)
	svc := NewMediaOutputService(r, &mocks.MockProvenanceCodec{}, logging.NewNop())
	dir := cardDir(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Save(ctx, SaveRequest{Data: mocks.TinyPNG(), MimeType: "image/png", Dir: dir, BaseName: "fox"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, onDiskImages(t, dir))
}

func TestMediaOutput_MkdirFailureReportsStage(t *testing.T) {
	r := newTestResolver(t)
	svc := NewMediaOutputService(r, &mocks.MockProvenanceCodec{}, logging.NewNop())

	// a regular file where the project directory should be
	require.NoError(t, os.MkdirAll(r.OutputRoot, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(r.OutputRoot, "woodland"), []byte("x"), 0644))

	_, err := svc.Save(context.Background(), SaveRequest{Data: mocks.TinyPNG(), MimeType: "image/png", Dir: cardDir(t, r)})
	require.ErrorIs(t, err, domain.ErrIO)

	var stage *StageError
	require.True(t, errors.As(err, &stage))
	assert.Equal(t, StageMkdir, stage.Stage)
	assert.True(t, strings.Contains(err.Error(), "mkdir"))
}
