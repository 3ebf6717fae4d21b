package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	fuzzyfinder "github.com/ktr0731/go-fuzzyfinder"
	"github.com/mattn/go-isatty"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/ports"
	"github.com/kamal-hamza/cardforge/internal/core/services"
	"github.com/kamal-hamza/cardforge/pkg/ui"
)

// errCancelled is returned by the pickers when the user backs out
var errCancelled = errors.New("operation cancelled")

// GetPreferredEditor returns the editor command from config, env, or default
func GetPreferredEditor() string {
	// 1. Check Config
	if appConfig != nil && appConfig.Editor != "" {
		return appConfig.Editor
	}
	// 2. Check Environment
	if env := os.Getenv("EDITOR"); env != "" {
		return env
	}
	// 3. Fallback
	return "vi"
}

// OpenFile opens a file using a custom viewer or the OS default application.
func OpenFile(path string, viewer string) error {
	var cmd *exec.Cmd

	if viewer != "" {
		cmd = exec.Command(viewer, path)
	} else {
		switch runtime.GOOS {
		case "darwin":
			cmd = exec.Command("open", path)
		case "windows":
			cmd = exec.Command("cmd", "/c", "start", path)
		default:
			cmd = exec.Command("xdg-open", path)
		}
	}

	// Start() detaches so cf can exit while the viewer stays open
	if err := cmd.Start(); err != nil {
		if viewer != "" {
			return fmt.Errorf("failed to open '%s' with '%s': %w", path, viewer, err)
		}
		return fmt.Errorf("failed to open '%s': %w", path, err)
	}

	return nil
}

// systemOpener opens images with the configured viewer
type systemOpener struct {
	viewer string
}

var _ ports.FileOpener = systemOpener{}

func (o systemOpener) Open(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return OpenFile(path, o.viewer)
}

func newOpener() ports.FileOpener {
	viewer := ""
	if appConfig != nil {
		viewer = appConfig.ImageViewer
	}
	return systemOpener{viewer: viewer}
}

// isInteractive reports whether stdin is a terminal a picker can use
func isInteractive() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// pick lets the user choose one item in a fuzzy finder
func pick[T any](items []T, label func(T) string, preview func(T) string) (*T, error) {
	if len(items) == 0 {
		return nil, errors.New("nothing to choose from")
	}
	if len(items) == 1 {
		return &items[0], nil
	}
	if !isInteractive() {
		return nil, fmt.Errorf("%d candidates match; be more specific", len(items))
	}
	idx, err := fuzzyfinder.Find(
		items,
		func(i int) string { return label(items[i]) },
		fuzzyfinder.WithPreviewWindow(func(i, w, h int) string {
			if i == -1 {
				return ""
			}
			return preview(items[i])
		}),
	)
	if err != nil {
		// User cancelled (Ctrl+C or ESC)
		return nil, errCancelled
	}
	return &items[idx], nil
}

// selectProject resolves an id or name fragment, or asks when none is given
func selectProject(ctx context.Context, args []string) (*domain.Project, error) {
	if len(args) > 0 {
		if domain.ValidateID(args[0]) == nil {
			p, err := projectRepo.GetProject(ctx, args[0])
			if err == nil {
				return p, nil
			}
			if !domain.IsNotFound(err) {
				return nil, err
			}
		}
	}

	projects, err := finderService.ListProjects(ctx, services.ListRequest{})
	if err := warnUnreadable(err); err != nil {
		return nil, err
	}

	candidates := projects
	if len(args) > 0 {
		query := strings.ToLower(args[0])
		candidates = nil
		for _, p := range projects {
			if strings.Contains(strings.ToLower(p.Name), query) {
				candidates = append(candidates, p)
			}
		}
		if len(candidates) == 0 {
			return nil, domain.Wrap(domain.ErrNotFound, "select", "project", args[0], errors.New("no project matches"))
		}
	} else if len(candidates) == 0 {
		return nil, errors.New("no projects yet; create one with 'cf project create'")
	}

	return pick(candidates,
		func(p domain.Project) string { return p.Name },
		func(p domain.Project) string {
			return fmt.Sprintf("Name: %s\nID: %s\nOutput: %s\n\n%s", p.Name, p.ID, p.OutputFolder(), p.Description)
		})
}

// selectCard resolves a card id or name query, optionally within one
// project. Without a terminal the best match wins.
func selectCard(ctx context.Context, projectID string, args []string) (*domain.Project, *domain.Card, error) {
	var card *domain.Card

	switch {
	case len(args) == 0:
		cards, err := finderService.ListCards(ctx, services.ListRequest{ProjectID: projectID})
		if err := warnUnreadable(err); err != nil {
			return nil, nil, err
		}
		if len(cards) == 0 {
			return nil, nil, errors.New("no cards yet; create one with 'cf card create'")
		}
		card, err = pick(cards, cardLabel, cardPreview)
		if err != nil {
			return nil, nil, err
		}

	default:
		query := args[0]
		if c, err := cardByID(ctx, projectID, query); err != nil {
			return nil, nil, err
		} else if c != nil {
			card = c
			break
		}

		matches, err := finderService.FindCards(ctx, query, projectID)
		if err := warnUnreadable(err); err != nil {
			return nil, nil, err
		}
		if len(matches) > 1 && isInteractive() && matches[0].Score == matches[1].Score {
			picked, err := pick(matches,
				func(m services.CardMatch) string { return cardLabel(m.Card) },
				func(m services.CardMatch) string { return cardPreview(m.Card) })
			if err != nil {
				return nil, nil, err
			}
			card = &picked.Card
			break
		}

		action, err := toolService.Navigate(ctx, query, projectID)
		if err != nil {
			return nil, nil, err
		}
		nav, ok := action.(domain.Navigated)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected action %T", action)
		}
		card, err = cardRepo.GetCard(ctx, nav.ProjectID, nav.CardID)
		if err != nil {
			return nil, nil, err
		}
	}

	p, err := projectRepo.GetProject(ctx, card.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return p, card, nil
}

// cardByID returns the card with exactly this id, or nil
func cardByID(ctx context.Context, projectID, id string) (*domain.Card, error) {
	if domain.ValidateID(id) != nil {
		return nil, nil
	}
	// unreadable records are reported by the name search that follows
	cards, err := cardRepo.ListCards(ctx, projectID)
	if err != nil && !domain.IsCorrupt(err) {
		return nil, err
	}
	for i := range cards {
		if cards[i].ID == id {
			return &cards[i], nil
		}
	}
	return nil, nil
}

// warnUnreadable prints corrupt record errors and lets the command carry on
// with the readable records. Any other error is returned.
func warnUnreadable(err error) error {
	if err == nil || !domain.IsCorrupt(err) {
		return err
	}
	fmt.Println(ui.FormatWarning("Some records could not be read:"))
	fmt.Print(ui.RenderSimpleList(strings.Split(err.Error(), "\n")))
	return nil
}

func cardLabel(c domain.Card) string {
	return c.Name + "  [" + c.ProjectID + "]"
}

func cardPreview(c domain.Card) string {
	return fmt.Sprintf("Name: %s\nID: %s\nProject: %s\nFolder: %s\n\nPrompt:\n%s",
		c.Name, c.ID, c.ProjectID, c.OutputFolder(), c.Prompt)
}

// confirm asks a y/n question on stdin
func confirm(question string) bool {
	fmt.Print(ui.StyleWarning.Render(question + " (y/n): "))
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.ToLower(strings.TrimSpace(response)) == "y"
}

// handleCancel turns a picker cancellation into a quiet exit
func handleCancel(err error) error {
	if errors.Is(err, errCancelled) {
		fmt.Println(ui.FormatInfo("Operation cancelled."))
		return nil
	}
	return err
}
