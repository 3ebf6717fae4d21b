package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/ports"
	"github.com/kamal-hamza/cardforge/pkg/ui"
)

var galleryBrowseCmd = &cobra.Command{
	Use:   "browse [card]",
	Short: "Browse a card's images interactively",
	Long: `Browse a card's images in a full-screen list.

Keyboard Shortcuts:
  ↑/k, ↓/j    Move
  f           Toggle favorite
  a           Archive / restore
  o, Enter    Open in viewer
  t           Show or hide archived images
  ?           Help
  q           Quit`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGalleryBrowse,
}

func runGalleryBrowse(cmd *cobra.Command, args []string) error {
	ctx := getContext()
	p, c, err := galleryCard(args)
	if err != nil {
		return handleCancel(err)
	}
	dir, _, _, err := galleryService.CardDir(ctx, p.ID, c.ID)
	if err != nil {
		return err
	}

	m := newBrowseModel(ctx, galleryService, newOpener(), p, c, dir)
	prog := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("error running browser: %w", err)
	}
	return nil
}

// imageCurator is the part of the gallery the browser drives
type imageCurator interface {
	ListImages(ctx context.Context, projectID, cardID string, includeArchived bool) ([]domain.ImageEntry, error)
	ToggleFavorite(ctx context.Context, projectID, cardID, filename string) (bool, error)
	Archive(ctx context.Context, projectID, cardID, filename string) error
	Unarchive(ctx context.Context, projectID, cardID, filename string) error
}

type browseKeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Favorite key.Binding
	Archive  key.Binding
	Open     key.Binding
	Toggle   key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func (k browseKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Favorite, k.Archive, k.Open, k.Help, k.Quit}
}

func (k browseKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Favorite, k.Archive, k.Open},
		{k.Toggle, k.Help, k.Quit},
	}
}

var browseKeys = browseKeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "move up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "move down"),
	),
	Favorite: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "favorite"),
	),
	Archive: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "archive/restore"),
	),
	Open: key.NewBinding(
		key.WithKeys("enter", "o"),
		key.WithHelp("enter/o", "open"),
	),
	Toggle: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "show archived"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// imagesLoadedMsg carries a fresh listing plus the outcome of the action
// that triggered it
type imagesLoadedMsg struct {
	images []domain.ImageEntry
	status string
	err    error
}

type browseModel struct {
	ctx          context.Context
	curator      imageCurator
	opener       ports.FileOpener
	project      *domain.Project
	card         *domain.Card
	dir          string
	images       []domain.ImageEntry
	cursor       int
	showArchived bool
	showHelp     bool
	help         help.Model
	keys         browseKeyMap
	status       string
	statusErr    bool
	width        int
	height       int
}

func newBrowseModel(ctx context.Context, curator imageCurator, opener ports.FileOpener, p *domain.Project, c *domain.Card, dir string) browseModel {
	return browseModel{
		ctx:     ctx,
		curator: curator,
		opener:  opener,
		project: p,
		card:    c,
		dir:     dir,
		help:    help.New(),
		keys:    browseKeys,
	}
}

func (m browseModel) Init() tea.Cmd {
	return m.reload("")
}

// reload lists the images again and reports status once done
func (m browseModel) reload(status string) tea.Cmd {
	ctx, curator, pid, cid, all := m.ctx, m.curator, m.project.ID, m.card.ID, m.showArchived
	return func() tea.Msg {
		images, err := curator.ListImages(ctx, pid, cid, all)
		return imagesLoadedMsg{images: images, status: status, err: err}
	}
}

func (m browseModel) selected() (domain.ImageEntry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.images) {
		return domain.ImageEntry{}, false
	}
	return m.images[m.cursor], true
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case imagesLoadedMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			m.statusErr = true
			return m, nil
		}
		m.images = msg.images
		m.status = msg.status
		m.statusErr = false
		if m.cursor >= len(m.images) {
			m.cursor = max(len(m.images)-1, 0)
		}
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m browseModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.images)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Toggle):
		m.showArchived = !m.showArchived
		if m.showArchived {
			return m, m.reload("Showing archived images")
		}
		return m, m.reload("Hiding archived images")

	case key.Matches(msg, m.keys.Favorite):
		img, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m, m.toggleFavorite(img.Filename)

	case key.Matches(msg, m.keys.Archive):
		img, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m, m.toggleArchive(img)

	case key.Matches(msg, m.keys.Open):
		img, ok := m.selected()
		if !ok {
			return m, nil
		}
		if err := m.opener.Open(m.ctx, filepath.Join(m.dir, img.Filename)); err != nil {
			m.status = err.Error()
			m.statusErr = true
		} else {
			m.status = "Opened " + img.Filename
			m.statusErr = false
		}
	}
	return m, nil
}

func (m browseModel) toggleFavorite(filename string) tea.Cmd {
	ctx, curator, pid, cid := m.ctx, m.curator, m.project.ID, m.card.ID
	reload := m.reload
	return func() tea.Msg {
		on, err := curator.ToggleFavorite(ctx, pid, cid, filename)
		if err != nil {
			return imagesLoadedMsg{err: err}
		}
		status := "Removed " + filename + " from favorites"
		if on {
			status = "Favorited " + filename
		}
		return reload(status)()
	}
}

func (m browseModel) toggleArchive(img domain.ImageEntry) tea.Cmd {
	ctx, curator, pid, cid := m.ctx, m.curator, m.project.ID, m.card.ID
	reload := m.reload
	return func() tea.Msg {
		if img.IsArchived {
			if err := curator.Unarchive(ctx, pid, cid, img.Filename); err != nil {
				return imagesLoadedMsg{err: err}
			}
			return reload("Restored " + img.Filename)()
		}
		if err := curator.Archive(ctx, pid, cid, img.Filename); err != nil {
			return imagesLoadedMsg{err: err}
		}
		return reload("Archived " + img.Filename)()
	}
}

func (m browseModel) View() string {
	var b strings.Builder

	title := fmt.Sprintf("%s %s / %s (%d)", ui.IconImage, m.project.Name, m.card.Name, len(m.images))
	if m.showArchived {
		title += " " + ui.StyleMuted.Render("[all]")
	}
	b.WriteString(ui.StyleTitle.Render(title))
	b.WriteString("\n")
	b.WriteString(ui.StyleSubtle.Render(m.dir))
	b.WriteString("\n\n")

	if len(m.images) == 0 {
		b.WriteString(ui.StyleMuted.Render("  No images"))
		b.WriteString("\n")
	}

	selected := lipgloss.NewStyle().Foreground(ui.ColorPrimary).Bold(true)
	for i, img := range m.images {
		line := fmt.Sprintf("%s %-32s %10s", ui.FormatImageFlags(img.IsFavorite, img.IsArchived), img.Filename, ui.FormatBytes(img.Size))
		if i == m.cursor {
			b.WriteString(selected.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.status != "" {
		if m.statusErr {
			b.WriteString(ui.StyleError.Render(m.status))
		} else {
			b.WriteString(ui.StyleSuccess.Render(m.status))
		}
		b.WriteString("\n")
	}

	if m.showHelp {
		b.WriteString(m.help.FullHelpView(m.keys.FullHelp()))
	} else {
		b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	}
	return b.String()
}
