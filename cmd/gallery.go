package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/pkg/logging"
	"github.com/kamal-hamza/cardforge/pkg/ui"
)

var (
	galleryAll       bool
	gallerySize      int
	galleryThumbOpen bool
)

var galleryCmd = &cobra.Command{
	Use:     "gallery",
	Aliases: []string{"gal"},
	Short:   "Browse and curate generated images (alias: gal)",
	Long: `List, inspect and curate the images of a card.

Images are listed newest number first. Archived images are hidden unless
--all is given. Favorites and archive flags are stored on the card.`,
}

var galleryListCmd = &cobra.Command{
	Use:     "list [card]",
	Aliases: []string{"ls"},
	Short:   "List a card's images",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runGalleryList,
}

var galleryCountCmd = &cobra.Command{
	Use:   "count [card]",
	Short: "Count a card's visible images",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGalleryCount,
}

var galleryInfoCmd = &cobra.Command{
	Use:   "info <path>",
	Short: "Show the prompt and metadata embedded in an image",
	Long: `Show the metadata of an image. The path is relative to the data root,
e.g. output/tarot/the-moon/the-moon_1.png`,
	Args: cobra.ExactArgs(1),
	RunE: runGalleryInfo,
}

var galleryFavCmd = &cobra.Command{
	Use:   "fav <card> <filename>",
	Short: "Toggle the favorite flag of an image",
	Args:  cobra.ExactArgs(2),
	RunE:  runGalleryFav,
}

var galleryArchiveCmd = &cobra.Command{
	Use:   "archive <card> <filename>",
	Short: "Hide an image from listings",
	Args:  cobra.ExactArgs(2),
	RunE:  runGalleryArchive,
}

var galleryUnarchiveCmd = &cobra.Command{
	Use:   "unarchive <card> <filename>",
	Short: "Show an archived image again",
	Args:  cobra.ExactArgs(2),
	RunE:  runGalleryUnarchive,
}

var galleryOpenCmd = &cobra.Command{
	Use:   "open [card] [filename]",
	Short: "Open an image in the configured viewer (newest by default)",
	Args:  cobra.MaximumNArgs(2),
	RunE:  runGalleryOpen,
}

var galleryThumbCmd = &cobra.Command{
	Use:   "thumb <path>",
	Short: "Render a cached thumbnail and print its path",
	Args:  cobra.ExactArgs(1),
	RunE:  runGalleryThumb,
}

var galleryWatchCmd = &cobra.Command{
	Use:   "watch [card]",
	Short: "Report new images in a card's folder as they appear",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGalleryWatch,
}

func init() {
	galleryCmd.AddCommand(galleryListCmd, galleryCountCmd, galleryInfoCmd, galleryFavCmd,
		galleryArchiveCmd, galleryUnarchiveCmd, galleryOpenCmd, galleryThumbCmd, galleryWatchCmd, galleryBrowseCmd)
	galleryCmd.PersistentFlags().StringVarP(&projectFlag, "project", "p", "", "Project id or name")

	galleryListCmd.Flags().BoolVarP(&galleryAll, "all", "a", false, "Include archived images")
	galleryThumbCmd.Flags().IntVarP(&gallerySize, "size", "s", 0, "Longest side in pixels (default from config)")
	galleryThumbCmd.Flags().BoolVarP(&galleryThumbOpen, "open", "o", false, "Open the thumbnail")
}

// galleryCard resolves the card argument under the -p scope
func galleryCard(args []string) (*domain.Project, *domain.Card, error) {
	projectID, err := scopedProjectID()
	if err != nil {
		return nil, nil, err
	}
	return selectCard(getContext(), projectID, args)
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	ctx := getContext()
	p, c, err := galleryCard(args)
	if err != nil {
		return handleCancel(err)
	}

	images, err := galleryService.ListImages(ctx, p.ID, c.ID, galleryAll)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		fmt.Println(ui.FormatWarning("No images for " + c.Name))
		fmt.Println(ui.FormatMuted("Generate some with: cf generate " + strconv.Quote(c.Name)))
		return nil
	}

	table := ui.NewTable([]ui.TableColumn{
		{Header: " ", Width: 4},
		{Header: "File"},
		{Header: "Size", Align: "right"},
		{Header: "Modified"},
	})
	for _, img := range images {
		table.AddRow([]string{
			ui.FormatImageFlags(img.IsFavorite, img.IsArchived),
			img.Filename,
			ui.FormatBytes(img.Size),
			img.ModTime.Local().Format("2006-01-02 15:04"),
		})
	}

	fmt.Println(ui.FormatTitle(fmt.Sprintf("%s %s (%d)", ui.IconImage, c.Name, len(images))))
	fmt.Println(table.Render())
	return nil
}

func runGalleryCount(cmd *cobra.Command, args []string) error {
	p, c, err := galleryCard(args)
	if err != nil {
		return handleCancel(err)
	}
	n, err := galleryService.CountImages(getContext(), p.ID, c.ID)
	if err != nil {
		return err
	}
	fmt.Println(n)
	return nil
}

func runGalleryInfo(cmd *cobra.Command, args []string) error {
	meta, err := galleryService.ReadMetadata(getContext(), filepath.ToSlash(args[0]))
	if err != nil {
		return err
	}

	fmt.Println(ui.FormatTitle(ui.IconImage + " " + filepath.Base(meta.RelPath)))
	fmt.Println(ui.RenderKeyValue("Path", meta.RelPath))
	fmt.Println(ui.RenderKeyValue("Size", ui.FormatBytes(meta.Size)))
	fmt.Println(ui.RenderKeyValue("Created", meta.CreatedAt.Local().Format(time.RFC1123)))
	fmt.Println(ui.RenderKeyValue("Modified", meta.ModTime.Local().Format(time.RFC1123)))
	if meta.Title != "" {
		fmt.Println(ui.RenderKeyValue("Title", meta.Title))
	}
	if meta.Author != "" {
		fmt.Println(ui.RenderKeyValue("Project", meta.Author))
	}
	if meta.CardID != "" {
		fmt.Println(ui.RenderKeyValue("Card", meta.CardID))
	}
	if meta.HasPrompt {
		fmt.Println(ui.RenderKeyValue("Prompt", meta.Prompt))
	} else {
		fmt.Println(ui.FormatMuted("No embedded prompt"))
	}
	return nil
}

func runGalleryFav(cmd *cobra.Command, args []string) error {
	p, c, err := galleryCard(args[:1])
	if err != nil {
		return handleCancel(err)
	}
	on, err := galleryService.ToggleFavorite(getContext(), p.ID, c.ID, args[1])
	if err != nil {
		return err
	}
	if on {
		fmt.Println(ui.FormatSuccess(ui.IconStar + " Favorited " + args[1]))
	} else {
		fmt.Println(ui.FormatSuccess("Removed " + args[1] + " from favorites"))
	}
	return nil
}

func runGalleryArchive(cmd *cobra.Command, args []string) error {
	p, c, err := galleryCard(args[:1])
	if err != nil {
		return handleCancel(err)
	}
	if err := galleryService.Archive(getContext(), p.ID, c.ID, args[1]); err != nil {
		return err
	}
	fmt.Println(ui.FormatSuccess(ui.IconArchive + " Archived " + args[1]))
	return nil
}

func runGalleryUnarchive(cmd *cobra.Command, args []string) error {
	p, c, err := galleryCard(args[:1])
	if err != nil {
		return handleCancel(err)
	}
	if err := galleryService.Unarchive(getContext(), p.ID, c.ID, args[1]); err != nil {
		return err
	}
	fmt.Println(ui.FormatSuccess("Restored " + args[1]))
	return nil
}

func runGalleryOpen(cmd *cobra.Command, args []string) error {
	ctx := getContext()
	p, c, err := galleryCard(args[:min(len(args), 1)])
	if err != nil {
		return handleCancel(err)
	}
	dir, _, _, err := galleryService.CardDir(ctx, p.ID, c.ID)
	if err != nil {
		return err
	}

	var filename string
	if len(args) == 2 {
		if err := domain.ValidateImageFilename(args[1]); err != nil {
			return err
		}
		filename = args[1]
	} else {
		images, err := galleryService.ListImages(ctx, p.ID, c.ID, false)
		if err != nil {
			return err
		}
		if len(images) == 0 {
			return fmt.Errorf("no images for %s", c.Name)
		}
		filename = images[0].Filename
	}

	path := filepath.Join(dir, filename)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("image not found: %s", filename)
	}
	fmt.Println(ui.FormatInfo("Opening " + filename))
	return newOpener().Open(ctx, path)
}

func runGalleryThumb(cmd *cobra.Command, args []string) error {
	ctx := getContext()
	size := gallerySize
	if size <= 0 {
		size = appConfig.ThumbnailSize
	}
	path, err := thumbnailService.Thumbnail(ctx, filepath.ToSlash(args[0]), size)
	if err != nil {
		return err
	}
	fmt.Println(path)
	if galleryThumbOpen {
		return newOpener().Open(ctx, path)
	}
	return nil
}

func runGalleryWatch(cmd *cobra.Command, args []string) error {
	ctx := getContext()
	p, c, err := galleryCard(args)
	if err != nil {
		return handleCancel(err)
	}
	dir, _, _, err := galleryService.CardDir(ctx, p.ID, c.ID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create card folder: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch card folder: %w", err)
	}

	fmt.Println(ui.FormatRocket("Watching " + c.Name))
	fmt.Println(ui.FormatMuted(dir))
	fmt.Println(ui.FormatMuted("Press Ctrl+C to stop"))
	fmt.Println()

	// Several events arrive per published file; report each name once
	var (
		mu            sync.Mutex
		pending       = map[string]bool{}
		debounceTimer *time.Timer
	)
	const debounceDuration = 300 * time.Millisecond

	flush := func() {
		mu.Lock()
		names := make([]string, 0, len(pending))
		for name := range pending {
			names = append(names, name)
		}
		pending = map[string]bool{}
		mu.Unlock()

		sort.Strings(names)
		for _, name := range names {
			info, err := os.Stat(filepath.Join(dir, name))
			if err != nil {
				continue
			}
			fmt.Printf("%s %s %s\n", ui.StyleSuccess.Render("+"), name, ui.StyleMuted.Render(ui.FormatBytes(info.Size())))
		}
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(event.Name)
			// pending temp files start with a dot and are skipped here
			if !domain.IsImageFile(name) {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			mu.Lock()
			pending[name] = true
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDuration, flush)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			appLogger.Warn("watcher error", logging.Error(err))

		case <-ctx.Done():
			fmt.Println()
			fmt.Println(ui.FormatMuted("Stopped watching"))
			return nil
		}
	}
}
