package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/spf13/cobra"

	"github.com/kamal-hamza/cardforge/internal/core/services"
	"github.com/kamal-hamza/cardforge/pkg/ui"
)

var (
	statsHTML  string
	statsCards bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show image counts per project and card",
	Long: `Count images, favorites and archived images across the data root.

Use --html to write a bar chart of the same numbers.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsHTML, "html", "", "Write a chart to this HTML file")
	statsCmd.Flags().BoolVarP(&statsCards, "cards", "c", false, "Break projects down by card")
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := statsService.Collect(getContext())
	if err := warnUnreadable(err); err != nil {
		return err
	}
	if len(stats.Projects) == 0 {
		fmt.Println(ui.FormatWarning("No projects yet"))
		return nil
	}

	table := ui.NewTable([]ui.TableColumn{
		{Header: "Project", MaxWidth: 32},
		{Header: "Cards", Align: "right"},
		{Header: "Images", Align: "right"},
		{Header: ui.IconStar, Align: "right"},
		{Header: "Archived", Align: "right"},
		{Header: "Size", Align: "right"},
	})
	for _, p := range stats.Projects {
		table.AddRow([]string{
			p.Name,
			strconv.Itoa(len(p.Cards)),
			strconv.Itoa(p.Images),
			strconv.Itoa(p.Favorites),
			strconv.Itoa(p.Archived),
			ui.FormatBytes(p.Bytes),
		})
		if !statsCards {
			continue
		}
		for _, c := range p.Cards {
			images := strconv.Itoa(c.Images)
			if c.Err != nil {
				images = "!"
			}
			table.AddRow([]string{
				"  " + c.Name,
				"",
				images,
				strconv.Itoa(c.Favorites),
				strconv.Itoa(c.Archived),
				ui.FormatBytes(c.Bytes),
			})
		}
	}

	fmt.Println(ui.FormatTitle("Statistics"))
	fmt.Println(table.Render())
	fmt.Println(ui.FormatMuted(fmt.Sprintf("%d projects, %d cards, %d images, %s",
		len(stats.Projects), stats.Cards, stats.Images, ui.FormatBytes(stats.Bytes))))

	for _, p := range stats.Projects {
		for _, c := range p.Cards {
			if c.Err != nil {
				fmt.Println(ui.FormatWarning(p.Name + " / " + c.Name + ": " + c.Err.Error()))
			}
		}
	}

	if statsHTML == "" {
		return nil
	}
	f, err := os.Create(statsHTML)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	defer f.Close()
	if err := renderStatsChart(f, stats); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	fmt.Println(ui.FormatSuccess("Chart written to " + statsHTML))
	return nil
}

// renderStatsChart draws one bar group per project
func renderStatsChart(w io.Writer, stats *services.Stats) error {
	names := make([]string, 0, len(stats.Projects))
	images := make([]opts.BarData, 0, len(stats.Projects))
	favorites := make([]opts.BarData, 0, len(stats.Projects))
	archived := make([]opts.BarData, 0, len(stats.Projects))
	for _, p := range stats.Projects {
		names = append(names, p.Name)
		images = append(images, opts.BarData{Value: p.Images})
		favorites = append(favorites, opts.BarData{Value: p.Favorites})
		archived = append(archived, opts.BarData{Value: p.Archived})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "cardforge images",
			Subtitle: fmt.Sprintf("%d cards, %s on disk", stats.Cards, ui.FormatBytes(stats.Bytes)),
		}),
	)
	bar.SetXAxis(names).
		AddSeries("Images", images).
		AddSeries("Favorites", favorites).
		AddSeries("Archived", archived)
	return bar.Render(w)
}
