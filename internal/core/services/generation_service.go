package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/ports"
	"github.com/kamal-hamza/cardforge/pkg/logging"
	"github.com/kamal-hamza/cardforge/pkg/safepath"
)

// MaxImagesPerRequest bounds Count on a single generate call
const MaxImagesPerRequest = 8

// Software is recorded in the provenance of every generated image
const Software = "cardforge"

// GenerationDefaults are the configured fallbacks for a request
type GenerationDefaults struct {
	AspectRatio       string
	Resolution        string
	Count             int
	KeyName           string
	RequestsPerMinute int // 0 disables throttling
}

// Credentials select the API key for one request. An explicit key wins over
// a keyring name.
type Credentials struct {
	APIKey  string
	KeyName string
}

// GenerateRequest asks for Count images of one card
type GenerateRequest struct {
	ProjectID      string
	CardID         string
	PromptOverride string
	AspectRatio    string
	Resolution     string
	Count          int
	Credentials    Credentials
}

// ImageFailure is one image of a request that did not make it to disk
type ImageFailure struct {
	Index int // 1-based
	Err   error
}

// GenerateResult lists what a request produced. Paths are data root
// relative.
type GenerateResult struct {
	Prompt         string
	AspectRatio    string
	Resolution     string
	Paths          []string
	Failures       []ImageFailure
	ProvenanceErrs []error
}

// Requested returns the number of images that were attempted
func (r *GenerateResult) Requested() int {
	return len(r.Paths) + len(r.Failures)
}

// GenerationService turns a card into images on disk
type GenerationService struct {
	projects ports.ProjectRepository
	cards    ports.CardRepository
	keys     ports.KeyRepository
	provider ports.ImageProvider
	media    *MediaOutputService
	resolver *safepath.Resolver
	defaults GenerationDefaults
	limiter  *rate.Limiter
	logger   *slog.Logger
}

func NewGenerationService(
	projects ports.ProjectRepository,
	cards ports.CardRepository,
	keys ports.KeyRepository,
	provider ports.ImageProvider,
	media *MediaOutputService,
	resolver *safepath.Resolver,
	defaults GenerationDefaults,
	logger *slog.Logger,
) *GenerationService {
	limit := rate.Inf
	if defaults.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(defaults.RequestsPerMinute))
	}
	return &GenerationService{
		projects: projects,
		cards:    cards,
		keys:     keys,
		provider: provider,
		media:    media,
		resolver: resolver,
		defaults: defaults,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logging.Component(logger, "generate"),
	}
}

// plan is a validated request ready to run
type plan struct {
	project *domain.Project
	card    *domain.Card
	dir     string
	prompt  string
	aspect  string
	res     string
	count   int
	apiKey  string
}

// prepare validates a request and resolves everything a run needs without
// calling the provider
func (s *GenerationService) prepare(ctx context.Context, req GenerateRequest) (*plan, error) {
	count := req.Count
	if count == 0 {
		count = max(1, s.defaults.Count)
	}
	if count < 1 || count > MaxImagesPerRequest {
		return nil, domain.Wrap(domain.ErrValidation, "generate", "card", req.CardID,
			fmt.Errorf("count must be between 1 and %d, got %d", MaxImagesPerRequest, req.Count))
	}

	p, err := s.projects.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	c, err := s.cards.GetCard(ctx, req.ProjectID, req.CardID)
	if err != nil {
		return nil, err
	}
	dir, err := resolveCardDir(s.resolver, p, c)
	if err != nil {
		s.logger.Warn("card folder rejected",
			slog.String(logging.FieldProjectID, p.ID),
			slog.String(logging.FieldCardID, c.ID),
			logging.Error(err))
		return nil, err
	}

	prompt := BuildPrompt(p, c, req.PromptOverride)
	if prompt == "" {
		return nil, domain.Wrap(domain.ErrValidation, "generate", "card", c.ID, errors.New("prompt is empty"))
	}

	apiKey, err := s.resolveKey(ctx, req.Credentials)
	if err != nil {
		return nil, err
	}

	return &plan{
		project: p,
		card:    c,
		dir:     dir,
		prompt:  prompt,
		aspect:  firstNonEmpty(req.AspectRatio, c.EffectiveAspectRatio(p), s.defaults.AspectRatio),
		res:     firstNonEmpty(req.Resolution, c.EffectiveResolution(p), s.defaults.Resolution),
		count:   count,
		apiKey:  apiKey,
	}, nil
}

// Generate runs Count provider calls and saves each image. Images fail
// independently; the error is non-nil only for an invalid request, a
// cancelled context, or when no image could be saved.
func (s *GenerationService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	pl, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &GenerateResult{Prompt: pl.prompt, AspectRatio: pl.aspect, Resolution: pl.res}
	for i := 1; i <= pl.count; i++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return result, s.abort(result, i, pl.count, err)
		}
		saved, err := s.one(ctx, pl)
		if err != nil {
			if ctx.Err() != nil {
				return result, s.abort(result, i, pl.count, ctx.Err())
			}
			s.logger.Warn("image failed",
				slog.String(logging.FieldCardID, pl.card.ID),
				slog.Int("index", i),
				logging.Error(err))
			result.Failures = append(result.Failures, ImageFailure{Index: i, Err: err})
			continue
		}
		result.Paths = append(result.Paths, saved.RelPath)
		if saved.ProvenanceErr != nil {
			result.ProvenanceErrs = append(result.ProvenanceErrs, saved.ProvenanceErr)
		}
	}

	if len(result.Paths) == 0 {
		return result, result.Failures[0].Err
	}
	return result, nil
}

func (s *GenerationService) one(ctx context.Context, pl *plan) (*SaveResult, error) {
	resp, err := s.provider.Generate(ctx, ports.ImageRequest{
		Prompt:      pl.prompt,
		AspectRatio: pl.aspect,
		Resolution:  pl.res,
		APIKey:      pl.apiKey,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, domain.Wrap(domain.ErrProvider, "generate", "card", pl.card.ID, err)
	}

	return s.media.Save(ctx, SaveRequest{
		Data:     resp.Data,
		MimeType: resp.MimeType,
		Dir:      pl.dir,
		BaseName: pl.card.Name,
		Provenance: domain.Provenance{
			Prompt:      pl.prompt,
			Title:       pl.card.Name,
			ProjectName: pl.project.Name,
			CardID:      pl.card.ID,
			CardName:    pl.card.Name,
			Software:    Software,
			CreatedAt:   time.Now().UTC(),
		},
	})
}

// abort records the images that will not be attempted
func (s *GenerationService) abort(result *GenerateResult, from, count int, err error) error {
	for i := from; i <= count; i++ {
		result.Failures = append(result.Failures, ImageFailure{Index: i, Err: err})
	}
	s.logger.Debug("generation cancelled", slog.Int("saved", len(result.Paths)), slog.Int("skipped", count-from+1))
	return err
}

// resolveKey picks the key for one call. Nothing is cached between calls.
func (s *GenerationService) resolveKey(ctx context.Context, cred Credentials) (string, error) {
	if cred.APIKey != "" {
		return cred.APIKey, nil
	}
	name := firstNonEmpty(cred.KeyName, s.defaults.KeyName)

	keys, err := s.keys.GetKeys(ctx)
	if err != nil {
		return "", err
	}
	if name != "" {
		ring := domain.Keyring{Keys: keys}
		k, ok := ring.Lookup(name)
		if !ok {
			return "", domain.Wrap(domain.ErrNotFound, "lookup", "key", name, errors.New("no key with that name"))
		}
		return k.Key, nil
	}
	if len(keys) > 0 {
		return keys[0].Key, nil
	}
	// providers that need a key reject the request themselves
	return "", nil
}

// BuildPrompt joins the project wrapping around the card prompt
func BuildPrompt(p *domain.Project, c *domain.Card, override string) string {
	core := c.Prompt
	if strings.TrimSpace(override) != "" {
		core = override
	}

	var parts []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	add(p.GlobalPrefix)
	for _, m := range p.Modifiers(domain.ModifierPrefix) {
		add(m.Text)
	}
	add(core)
	for _, m := range p.Modifiers(domain.ModifierSuffix) {
		add(m.Text)
	}
	add(p.GlobalSuffix)
	return strings.Join(parts, ", ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
