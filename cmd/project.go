package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/services"
	"github.com/kamal-hamza/cardforge/pkg/ui"
)

var (
	projectSortBy  string
	projectReverse bool
	projectYes     bool

	projectIDFlag   string
	projectDesc     string
	projectOutput   string
	projectPrefix   string
	projectSuffix   string
	projectAspect   string
	projectRes      string
	projectName     string
	projectMods     []string
	projectDropMods []string
)

var projectCmd = &cobra.Command{
	Use:     "project",
	Aliases: []string{"p"},
	Short:   "Manage projects (alias: p)",
	Long: `Projects group cards and wrap their prompts.

Each project has a global prefix and suffix and an ordered list of prompt
modifiers. Prompts are assembled as:
  prefix, prefix modifiers..., card prompt, suffix modifiers..., suffix`,
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List projects",
	RunE:    runProjectList,
}

var projectShowCmd = &cobra.Command{
	Use:   "show [query]",
	Short: "Show a project with its modifiers and cards",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runProjectShow,
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project",
	Long: `Create a project.

Modifiers are given as type:name=text, e.g.
  cf project create "Tarot Deck" --prefix "tarot card" \
     --modifier "prefix:style=art nouveau" --modifier "suffix:border=ornate gold border"`,
	Args: cobra.ExactArgs(1),
	RunE: runProjectCreate,
}

var projectEditCmd = &cobra.Command{
	Use:   "edit [query]",
	Short: "Change project settings",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runProjectEdit,
}

var projectDeleteCmd = &cobra.Command{
	Use:     "delete [query]",
	Aliases: []string{"rm"},
	Short:   "Delete a project, its cards and their images",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runProjectDelete,
}

func init() {
	projectCmd.AddCommand(projectListCmd, projectShowCmd, projectCreateCmd, projectEditCmd, projectDeleteCmd)

	projectListCmd.Flags().StringVarP(&projectSortBy, "sort", "s", "name", "Sort by: name, created, updated")
	projectListCmd.Flags().BoolVarP(&projectReverse, "reverse", "r", false, "Reverse sort order")

	for _, c := range []*cobra.Command{projectCreateCmd, projectEditCmd} {
		c.Flags().StringVar(&projectDesc, "description", "", "Project description")
		c.Flags().StringVar(&projectOutput, "output-root", "", "Output folder under output/")
		c.Flags().StringVar(&projectPrefix, "prefix", "", "Text placed before every prompt")
		c.Flags().StringVar(&projectSuffix, "suffix", "", "Text placed after every prompt")
		c.Flags().StringVar(&projectAspect, "aspect", "", "Default aspect ratio, e.g. 2:3")
		c.Flags().StringVar(&projectRes, "resolution", "", "Default resolution, e.g. 1K")
		c.Flags().StringArrayVarP(&projectMods, "modifier", "m", nil, "Add a modifier (type:name=text)")
	}
	projectCreateCmd.Flags().StringVar(&projectIDFlag, "id", "", "Explicit project id")
	projectEditCmd.Flags().StringVar(&projectName, "name", "", "Rename the project")
	projectEditCmd.Flags().StringArrayVar(&projectDropMods, "remove-modifier", nil, "Remove a modifier by name")

	projectDeleteCmd.Flags().BoolVarP(&projectYes, "yes", "y", false, "Skip confirmation")
}

func runProjectList(cmd *cobra.Command, args []string) error {
	ctx := getContext()
	projects, err := finderService.ListProjects(ctx, services.ListRequest{SortBy: projectSortBy, Reverse: projectReverse})
	if err := warnUnreadable(err); err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Println(ui.FormatWarning("No projects found"))
		fmt.Println(ui.FormatMuted("Create one with: cf project create \"My Deck\""))
		return nil
	}

	table := ui.NewTable([]ui.TableColumn{
		{Header: "Name", MaxWidth: 32},
		{Header: "ID"},
		{Header: "Cards", Align: "right"},
		{Header: "Output"},
		{Header: "Updated"},
	})
	cards, err := cardRepo.ListCards(ctx, "")
	if err := warnUnreadable(err); err != nil {
		return err
	}
	perProject := make(map[string]int, len(projects))
	for _, c := range cards {
		perProject[c.ProjectID]++
	}
	for _, p := range projects {
		table.AddRow([]string{
			p.Name,
			p.ID,
			strconv.Itoa(perProject[p.ID]),
			"output/" + p.OutputFolder(),
			p.UpdatedAt.Local().Format("2006-01-02"),
		})
	}

	fmt.Println(ui.FormatTitle(fmt.Sprintf("%s Projects (%d)", ui.IconProject, len(projects))))
	fmt.Println(table.Render())
	return nil
}

func runProjectShow(cmd *cobra.Command, args []string) error {
	ctx := getContext()
	p, err := selectProject(ctx, args)
	if err != nil {
		return handleCancel(err)
	}
	cards, err := finderService.ListCards(ctx, services.ListRequest{ProjectID: p.ID})
	if err := warnUnreadable(err); err != nil {
		return err
	}

	fmt.Println(ui.FormatTitle(ui.IconProject + " " + p.Name))
	fmt.Println(ui.RenderKeyValue("ID", p.ID))
	if p.Description != "" {
		fmt.Println(ui.RenderKeyValue("Description", p.Description))
	}
	fmt.Println(ui.RenderKeyValue("Output", "output/"+p.OutputFolder()))
	fmt.Println(ui.RenderKeyValue("Prefix", orDash(p.GlobalPrefix)))
	fmt.Println(ui.RenderKeyValue("Suffix", orDash(p.GlobalSuffix)))
	fmt.Println(ui.RenderKeyValue("Aspect ratio", orDash(p.DefaultAspectRatio)))
	fmt.Println(ui.RenderKeyValue("Resolution", orDash(p.DefaultResolution)))

	if len(p.PromptModifiers) > 0 {
		fmt.Println()
		fmt.Println(ui.FormatBold("Modifiers"))
		for _, m := range p.PromptModifiers {
			fmt.Printf("  %s %s %s\n", ui.StyleAccent.Render(string(m.Type)), ui.StyleBold.Render(m.Name), ui.StyleMuted.Render(m.Text))
		}
	}

	fmt.Println()
	fmt.Println(ui.FormatBold(fmt.Sprintf("Cards (%d)", len(cards))))
	for _, c := range cards {
		n, err := galleryService.CountImages(ctx, p.ID, c.ID)
		count := strconv.Itoa(n)
		if err != nil {
			count = "?"
		}
		fmt.Printf("  %s %s %s\n", ui.IconCard, c.Name, ui.StyleMuted.Render("("+c.ID+", "+count+" images)"))
	}
	return nil
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	ctx := getContext()
	mods, err := parseModifiers(projectMods)
	if err != nil {
		return err
	}

	p, err := entityService.CreateProject(ctx, services.CreateProjectRequest{
		ID:                 projectIDFlag,
		Name:               args[0],
		Description:        projectDesc,
		OutputRoot:         projectOutput,
		GlobalPrefix:       projectPrefix,
		GlobalSuffix:       projectSuffix,
		DefaultAspectRatio: projectAspect,
		DefaultResolution:  projectRes,
		PromptModifiers:    mods,
	})
	if err != nil {
		return err
	}

	fmt.Println(ui.FormatSuccess("Project created: " + ui.StyleBold.Render(p.Name)))
	fmt.Println(ui.RenderKeyValue("ID", p.ID))
	fmt.Println(ui.RenderKeyValue("Output", "output/"+p.OutputFolder()))
	return nil
}

func runProjectEdit(cmd *cobra.Command, args []string) error {
	ctx := getContext()
	selected, err := selectProject(ctx, args)
	if err != nil {
		return handleCancel(err)
	}
	added, err := parseModifiers(projectMods)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	p, err := entityService.UpdateProject(ctx, selected.ID, func(p *domain.Project) error {
		if flags.Changed("name") {
			if err := domain.ValidateName(projectName); err != nil {
				return err
			}
			p.Name = projectName
		}
		if flags.Changed("description") {
			p.Description = projectDesc
		}
		if flags.Changed("output-root") {
			p.OutputRoot = projectOutput
		}
		if flags.Changed("prefix") {
			p.GlobalPrefix = projectPrefix
		}
		if flags.Changed("suffix") {
			p.GlobalSuffix = projectSuffix
		}
		if flags.Changed("aspect") {
			p.DefaultAspectRatio = projectAspect
		}
		if flags.Changed("resolution") {
			p.DefaultResolution = projectRes
		}
		p.PromptModifiers = removeModifiers(p.PromptModifiers, projectDropMods)
		p.PromptModifiers = append(p.PromptModifiers, added...)
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Println(ui.FormatSuccess("Project updated: " + ui.StyleBold.Render(p.Name)))
	return nil
}

func runProjectDelete(cmd *cobra.Command, args []string) error {
	ctx := getContext()
	p, err := selectProject(ctx, args)
	if err != nil {
		return handleCancel(err)
	}
	cards, err := cardRepo.ListCards(ctx, p.ID)
	if err := warnUnreadable(err); err != nil {
		return err
	}

	fmt.Println(ui.FormatWarning("You are about to delete:"))
	fmt.Printf("  %s %s\n", ui.StyleBold.Render(p.Name), ui.StyleMuted.Render("("+p.ID+")"))
	fmt.Printf("  %d cards and every image under output/%s\n", len(cards), p.OutputFolder())
	fmt.Println()
	if !projectYes && !confirm("Delete project?") {
		fmt.Println("Cancelled.")
		return nil
	}

	report, err := entityService.DeleteProject(ctx, p.ID)
	printDeleteReport(report)
	if err != nil {
		return err
	}
	fmt.Println(ui.FormatSuccess("Project deleted."))
	return nil
}

func printDeleteReport(report *domain.DeleteReport) {
	if report == nil {
		return
	}
	if len(report.CardsRemoved) > 0 {
		fmt.Println(ui.FormatMuted(fmt.Sprintf("  removed %d card records", len(report.CardsRemoved))))
	}
	for _, d := range report.DirsRemoved {
		fmt.Println(ui.FormatMuted("  removed " + d))
	}
	for _, d := range report.DirsShared {
		fmt.Println(ui.FormatMuted("  kept " + d + " (still used)"))
	}
	if report.FilesErr != nil {
		fmt.Println(ui.FormatWarning("Records removed, files could not be removed"))
	}
}

// parseModifiers reads "type:name=text" flags. The name is optional.
func parseModifiers(raws []string) ([]domain.PromptModifier, error) {
	mods := make([]domain.PromptModifier, 0, len(raws))
	for _, raw := range raws {
		m, err := parseModifier(raw)
		if err != nil {
			return nil, err
		}
		mods = append(mods, m)
	}
	return mods, nil
}

func parseModifier(raw string) (domain.PromptModifier, error) {
	kind, rest, ok := strings.Cut(raw, ":")
	if !ok {
		return domain.PromptModifier{}, fmt.Errorf("modifier %q: expected type:name=text", raw)
	}
	t := domain.ModifierType(strings.ToLower(strings.TrimSpace(kind)))
	if t != domain.ModifierPrefix && t != domain.ModifierSuffix {
		return domain.PromptModifier{}, fmt.Errorf("modifier %q: type must be prefix or suffix", raw)
	}

	name, text, hasName := strings.Cut(rest, "=")
	if !hasName {
		text = rest
		name = rest
	}
	name, text = strings.TrimSpace(name), strings.TrimSpace(text)
	if text == "" {
		return domain.PromptModifier{}, errors.New("modifier text cannot be empty")
	}
	if name == "" {
		name = text
	}
	return domain.PromptModifier{ID: domain.GenerateSlug(name), Name: name, Text: text, Type: t}, nil
}

func removeModifiers(mods []domain.PromptModifier, names []string) []domain.PromptModifier {
	if len(names) == 0 {
		return mods
	}
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[strings.ToLower(n)] = true
	}
	kept := mods[:0]
	for _, m := range mods {
		if !drop[strings.ToLower(m.Name)] && !drop[strings.ToLower(m.ID)] {
			kept = append(kept, m)
		}
	}
	return kept
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
