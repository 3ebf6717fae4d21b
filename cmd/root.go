package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	provadapter "github.com/kamal-hamza/cardforge/internal/adapters/provenance"
	"github.com/kamal-hamza/cardforge/internal/adapters/provider"
	"github.com/kamal-hamza/cardforge/internal/adapters/repository"
	"github.com/kamal-hamza/cardforge/internal/core/ports"
	"github.com/kamal-hamza/cardforge/internal/core/services"
	"github.com/kamal-hamza/cardforge/pkg/config"
	"github.com/kamal-hamza/cardforge/pkg/logging"
	"github.com/kamal-hamza/cardforge/pkg/safepath"
	"github.com/kamal-hamza/cardforge/pkg/ui"
	"github.com/kamal-hamza/cardforge/pkg/vault"
)

var (
	// Global vault instance
	appVault  *vault.Vault
	appConfig *config.Config
	appLogger *slog.Logger
	resolver  *safepath.Resolver

	// Repositories
	projectRepo *repository.ProjectRepository
	cardRepo    *repository.CardRepository
	keyRepo     *repository.KeyRepository

	// Services
	entityService     *services.EntityService
	galleryService    *services.GalleryService
	finderService     *services.FinderService
	generationService *services.GenerationService
	toolService       *services.ToolService
	thumbnailService  *services.ThumbnailService
	statsService      *services.StatsService

	// Global flags
	dataRootFlag string
	logLevelFlag string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cf",
	Short: "cardforge - projects, cards and generated artwork",
	Long: ui.StyleTitle.Render("cardforge") + " - card art workbench\n\n" +
		"Organise prompts into projects and cards, generate images for them,\n" +
		"and browse the results. Every image carries its prompt inside the file.",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initializeApp,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if stopSignals != nil {
		stopSignals()
	}
	if err != nil {
		fmt.Println(ui.FormatError(err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(cardCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(galleryCmd)
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringVar(&dataRootFlag, "data-root", "", "Override the data directory")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Diagnostic log level (debug, info, warn, error)")
}

// initializeApp initializes the application components
func initializeApp(cmd *cobra.Command, args []string) error {
	// version needs nothing
	if cmd.Name() == "version" {
		return nil
	}

	v, err := vault.New()
	if err != nil {
		return fmt.Errorf("failed to initialize vault: %w", err)
	}

	cfg, err := config.Load(v.ConfigPath)
	if err != nil {
		return err
	}
	appConfig = cfg
	ui.SetTheme(cfg.ColorTheme)

	switch {
	case dataRootFlag != "":
		v = v.WithRoot(dataRootFlag)
	case cfg.DataRoot != "":
		v = v.WithRoot(cfg.DataRoot)
	}
	appVault = v

	level := cfg.LogLevel
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	appLogger, err = logging.New(logging.Options{Level: level, Format: cfg.LogFormat})
	if err != nil {
		return err
	}

	// init and config work on an empty vault
	if cmd.Name() == "init" || cmd.Name() == "config" {
		return nil
	}

	if !appVault.Exists() {
		fmt.Println(ui.FormatInfo("Run 'cf init' to initialize the vault"))
		return errors.New("vault not initialized at " + appVault.RootPath)
	}

	return wireServices(appVault, appConfig, appLogger, newProvider(appConfig))
}

// wireServices builds repositories and services over a vault
func wireServices(v *vault.Vault, cfg *config.Config, logger *slog.Logger, imageProvider ports.ImageProvider) error {
	r, err := safepath.New(v.RootPath, v.OutputPath)
	if err != nil {
		return err
	}
	resolver = r

	// Initialize repositories
	store := repository.NewFileRecordStore(v.RecordsPath, time.Duration(cfg.LockRetryMS)*time.Millisecond)
	cardRepo = repository.NewCardRepository(store, logger)
	projectRepo = repository.NewProjectRepository(store, cardRepo, logger)
	keyRepo = repository.NewKeyRepository(store)

	// Initialize services
	codec := provadapter.NewCodec()
	media := services.NewMediaOutputService(resolver, codec, logger)
	entityService = services.NewEntityService(projectRepo, cardRepo, resolver, logger)
	galleryService = services.NewGalleryService(projectRepo, cardRepo, resolver, codec, logger)
	finderService = services.NewFinderService(projectRepo, cardRepo)
	generationService = services.NewGenerationService(projectRepo, cardRepo, keyRepo, imageProvider, media, resolver,
		services.GenerationDefaults{
			AspectRatio:       cfg.DefaultAspectRatio,
			Resolution:        cfg.DefaultResolution,
			Count:             cfg.DefaultCount,
			KeyName:           cfg.DefaultKeyName,
			RequestsPerMinute: cfg.Provider.RequestsPerMinute,
		}, logger)
	toolService = services.NewToolService(entityService, finderService, generationService)
	thumbnailService = services.NewThumbnailService(resolver, v.ThumbsPath(), logger)
	statsService = services.NewStatsService(projectRepo, cardRepo, galleryService, logger)
	return nil
}

func newProvider(cfg *config.Config) ports.ImageProvider {
	if cfg.Provider.Kind == config.ProviderHTTP {
		timeout := time.Duration(cfg.Provider.TimeoutSeconds) * time.Second
		return provider.NewHTTPClient(cfg.Provider.Endpoint, cfg.Provider.Model, timeout)
	}
	return provider.NewPlaceholder()
}

var (
	appCtx      context.Context
	stopSignals context.CancelFunc
	appCtxOnce  sync.Once
)

// getContext returns a context cancelled on Ctrl+C
func getContext() context.Context {
	appCtxOnce.Do(func() {
		appCtx, stopSignals = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	})
	return appCtx
}
