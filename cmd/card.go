package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/services"
	"github.com/kamal-hamza/cardforge/pkg/ui"
)

var (
	// projectFlag scopes card, gallery and generate commands to one project
	projectFlag string

	cardSortBy  string
	cardReverse bool
	cardYes     bool

	cardIDFlag    string
	cardPrompt    string
	cardSubfolder string
	cardAspect    string
	cardRes       string
	cardName      string
)

var cardCmd = &cobra.Command{
	Use:     "card",
	Aliases: []string{"c"},
	Short:   "Manage cards (alias: c)",
	Long: `Cards hold a prompt and its generated images.

Cards can be addressed by id or by a fragment of their name. Use -p to
restrict matching to one project.`,
}

var cardListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List cards",
	RunE:    runCardList,
}

var cardShowCmd = &cobra.Command{
	Use:   "show [query]",
	Short: "Show a card and its effective prompt",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCardShow,
}

var cardCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a card in a project",
	Example: `  cf card create "The Moon" -p tarot --prompt "a full moon over still water"
  cf card create "Fox" -p woodland --aspect 3:4`,
	Args: cobra.ExactArgs(1),
	RunE: runCardCreate,
}

var cardEditCmd = &cobra.Command{
	Use:   "edit [query]",
	Short: "Change card fields",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCardEdit,
}

var cardDeleteCmd = &cobra.Command{
	Use:     "delete [query]",
	Aliases: []string{"rm"},
	Short:   "Delete a card and its images",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runCardDelete,
}

var cardFindCmd = &cobra.Command{
	Use:   "find <query>",
	Short: "Search cards by name",
	Args:  cobra.ExactArgs(1),
	RunE:  runCardFind,
}

func init() {
	cardCmd.AddCommand(cardListCmd, cardShowCmd, cardCreateCmd, cardEditCmd, cardDeleteCmd, cardFindCmd)
	cardCmd.PersistentFlags().StringVarP(&projectFlag, "project", "p", "", "Project id or name")

	cardListCmd.Flags().StringVarP(&cardSortBy, "sort", "s", "name", "Sort by: name, created, updated")
	cardListCmd.Flags().BoolVarP(&cardReverse, "reverse", "r", false, "Reverse sort order")

	for _, c := range []*cobra.Command{cardCreateCmd, cardEditCmd} {
		c.Flags().StringVar(&cardPrompt, "prompt", "", "Card prompt")
		c.Flags().StringVar(&cardSubfolder, "folder", "", "Output subfolder under the project folder")
		c.Flags().StringVar(&cardAspect, "aspect", "", "Aspect ratio override, e.g. 2:3")
		c.Flags().StringVar(&cardRes, "resolution", "", "Resolution override, e.g. 2K")
	}
	cardCreateCmd.Flags().StringVar(&cardIDFlag, "id", "", "Explicit card id")
	cardEditCmd.Flags().StringVar(&cardName, "name", "", "Rename the card")

	cardDeleteCmd.Flags().BoolVarP(&cardYes, "yes", "y", false, "Skip confirmation")
}

// scopedProjectID resolves -p to a project id. Empty means all projects.
func scopedProjectID() (string, error) {
	if projectFlag == "" {
		return "", nil
	}
	p, err := selectProject(getContext(), []string{projectFlag})
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

func runCardList(cmd *cobra.Command, args []string) error {
	ctx := getContext()
	projectID, err := scopedProjectID()
	if err != nil {
		return handleCancel(err)
	}

	cards, err := finderService.ListCards(ctx, services.ListRequest{ProjectID: projectID, SortBy: cardSortBy, Reverse: cardReverse})
	if err := warnUnreadable(err); err != nil {
		return err
	}
	if len(cards) == 0 {
		fmt.Println(ui.FormatWarning("No cards found"))
		return nil
	}

	table := ui.NewTable([]ui.TableColumn{
		{Header: "Name", MaxWidth: 28},
		{Header: "ID"},
		{Header: "Project"},
		{Header: "Images", Align: "right"},
		{Header: "Prompt", MaxWidth: 40},
	})
	for _, c := range cards {
		count := "?"
		if n, err := galleryService.CountImages(ctx, c.ProjectID, c.ID); err == nil {
			count = strconv.Itoa(n)
		}
		table.AddRow([]string{c.Name, c.ID, c.ProjectID, count, c.Prompt})
	}

	fmt.Println(ui.FormatTitle(fmt.Sprintf("%s Cards (%d)", ui.IconCard, len(cards))))
	fmt.Println(table.Render())
	return nil
}

func runCardShow(cmd *cobra.Command, args []string) error {
	ctx := getContext()
	projectID, err := scopedProjectID()
	if err != nil {
		return handleCancel(err)
	}
	p, c, err := selectCard(ctx, projectID, args)
	if err != nil {
		return handleCancel(err)
	}
	printCard(p, c)

	images, err := galleryService.ListImages(ctx, p.ID, c.ID, true)
	if err != nil {
		fmt.Println(ui.FormatWarning("Images unavailable: " + err.Error()))
		return nil
	}
	fmt.Println()
	fmt.Println(ui.StyleHeader.Render(fmt.Sprintf("Images (%d)", len(images))))
	for _, img := range images {
		fmt.Printf("  %s %s %s\n", ui.FormatImageFlags(img.IsFavorite, img.IsArchived), img.Filename, ui.StyleMuted.Render(ui.FormatBytes(img.Size)))
	}
	return nil
}

func printCard(p *domain.Project, c *domain.Card) {
	fmt.Println(ui.FormatTitle(ui.IconCard + " " + c.Name))
	fmt.Println(ui.RenderKeyValue("ID", c.ID))
	fmt.Println(ui.RenderKeyValue("Project", p.Name+" ("+p.ID+")"))
	fmt.Println(ui.RenderKeyValue("Folder", "output/"+p.OutputFolder()+"/"+c.OutputFolder()))
	fmt.Println(ui.RenderKeyValue("Aspect ratio", orDash(c.EffectiveAspectRatio(p))))
	fmt.Println(ui.RenderKeyValue("Resolution", orDash(c.EffectiveResolution(p))))
	fmt.Println(ui.RenderKeyValue("Prompt", orDash(c.Prompt)))
	fmt.Println(ui.RenderKeyValue("Full prompt", orDash(services.BuildPrompt(p, c, ""))))
}

func runCardCreate(cmd *cobra.Command, args []string) error {
	ctx := getContext()
	var projectArgs []string
	if projectFlag != "" {
		projectArgs = []string{projectFlag}
	}
	p, err := selectProject(ctx, projectArgs)
	if err != nil {
		return handleCancel(err)
	}

	c, err := entityService.CreateCard(ctx, services.CreateCardRequest{
		ID:              cardIDFlag,
		ProjectID:       p.ID,
		Name:            args[0],
		Prompt:          cardPrompt,
		OutputSubfolder: cardSubfolder,
		AspectRatio:     cardAspect,
		Resolution:      cardRes,
	})
	if err != nil {
		return err
	}

	fmt.Println(ui.FormatSuccess("Card created: " + ui.StyleBold.Render(c.Name)))
	fmt.Println(ui.RenderKeyValue("ID", c.ID))
	fmt.Println(ui.RenderKeyValue("Folder", "output/"+p.OutputFolder()+"/"+c.OutputFolder()))
	return nil
}

// patchFromFlags copies the changed edit flags into a CardPatch
func patchFromFlags(cmd *cobra.Command) services.CardPatch {
	var patch services.CardPatch
	flags := cmd.Flags()
	if flags.Changed("name") {
		patch.Name = &cardName
	}
	if flags.Changed("prompt") {
		patch.Prompt = &cardPrompt
	}
	if flags.Changed("folder") {
		patch.OutputSubfolder = &cardSubfolder
	}
	if flags.Changed("aspect") {
		patch.AspectRatio = &cardAspect
	}
	if flags.Changed("resolution") {
		patch.Resolution = &cardRes
	}
	return patch
}

func runCardEdit(cmd *cobra.Command, args []string) error {
	ctx := getContext()
	patch := patchFromFlags(cmd)
	if patch.Empty() {
		return fmt.Errorf("nothing to change; pass --name, --prompt, --folder, --aspect or --resolution")
	}

	projectID, err := scopedProjectID()
	if err != nil {
		return handleCancel(err)
	}
	p, c, err := selectCard(ctx, projectID, args)
	if err != nil {
		return handleCancel(err)
	}

	action, err := toolService.EditCard(ctx, p.ID, c.ID, patch)
	if err != nil {
		return err
	}
	fmt.Println(renderAction(action))
	return nil
}

func runCardDelete(cmd *cobra.Command, args []string) error {
	ctx := getContext()
	projectID, err := scopedProjectID()
	if err != nil {
		return handleCancel(err)
	}
	p, c, err := selectCard(ctx, projectID, args)
	if err != nil {
		return handleCancel(err)
	}

	count, _ := galleryService.CountImages(ctx, p.ID, c.ID)
	fmt.Println(ui.FormatWarning("You are about to delete:"))
	fmt.Printf("  %s %s\n", ui.StyleBold.Render(c.Name), ui.StyleMuted.Render("("+c.ID+")"))
	fmt.Printf("  %d images in output/%s/%s\n", count, p.OutputFolder(), c.OutputFolder())
	fmt.Println()
	if !cardYes && !confirm("Delete card?") {
		fmt.Println("Cancelled.")
		return nil
	}

	report, err := entityService.DeleteCard(ctx, p.ID, c.ID)
	printDeleteReport(report)
	if err != nil {
		return err
	}
	fmt.Println(ui.FormatSuccess("Card deleted."))
	return nil
}

func runCardFind(cmd *cobra.Command, args []string) error {
	ctx := getContext()
	projectID, err := scopedProjectID()
	if err != nil {
		return handleCancel(err)
	}

	matches, err := finderService.FindCards(ctx, args[0], projectID)
	if err := warnUnreadable(err); err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Println(ui.FormatWarning("No cards match " + strconv.Quote(args[0])))
		return nil
	}

	table := ui.NewTable([]ui.TableColumn{
		{Header: "Score", Align: "right"},
		{Header: "Name", MaxWidth: 28},
		{Header: "ID"},
		{Header: "Project", MaxWidth: 24},
		{Header: "Prompt", MaxWidth: 40},
	})
	for _, m := range matches {
		projectName := m.Card.ProjectID
		if m.Project != nil {
			projectName = m.Project.Name
		}
		table.AddRow([]string{strconv.Itoa(m.Score), m.Card.Name, m.Card.ID, projectName, m.Card.Prompt})
	}
	fmt.Println(table.Render())
	return nil
}
