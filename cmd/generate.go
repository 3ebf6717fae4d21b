package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/services"
	"github.com/kamal-hamza/cardforge/pkg/ui"
)

var (
	genCount   int
	genPrompt  string
	genAspect  string
	genRes     string
	genKey     string
	genKeyName string
	genCopy    bool
	genOpen    bool
)

var generateCmd = &cobra.Command{
	Use:     "generate [card]",
	Aliases: []string{"gen", "g"},
	Short:   "Generate images for a card (alias: gen, g)",
	Long: `Generate images for a card and save them to its output folder.

Each image gets the next free number for the card, e.g. the-moon_3.png, and
carries its prompt as embedded metadata. When some images fail the others
are still saved.`,
	Example: `  cf generate "the moon" -n 4
  cf gen fox -p woodland --aspect 16:9 --resolution 2K
  cf gen fox --prompt "a fox asleep under ferns" --key-name work`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&projectFlag, "project", "p", "", "Project id or name")
	generateCmd.Flags().IntVarP(&genCount, "count", "n", 0, fmt.Sprintf("Number of images (1-%d, default from config)", services.MaxImagesPerRequest))
	generateCmd.Flags().StringVar(&genPrompt, "prompt", "", "Use this text instead of the card prompt")
	generateCmd.Flags().StringVar(&genAspect, "aspect", "", "Aspect ratio for this run")
	generateCmd.Flags().StringVar(&genRes, "resolution", "", "Resolution for this run")
	generateCmd.Flags().StringVar(&genKey, "key", "", "API key for this run (not stored)")
	generateCmd.Flags().StringVar(&genKeyName, "key-name", "", "Stored key to use")
	generateCmd.Flags().BoolVar(&genCopy, "copy", false, "Copy the path of the last image to the clipboard")
	generateCmd.Flags().BoolVar(&genOpen, "open", false, "Open the last image when done")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := getContext()
	projectID, err := scopedProjectID()
	if err != nil {
		return handleCancel(err)
	}
	p, c, err := selectCard(ctx, projectID, args)
	if err != nil {
		return handleCancel(err)
	}

	action, job, err := toolService.StartGeneration(ctx, services.GenerateRequest{
		ProjectID:      p.ID,
		CardID:         c.ID,
		PromptOverride: genPrompt,
		AspectRatio:    genAspect,
		Resolution:     genRes,
		Count:          genCount,
		Credentials:    services.Credentials{APIKey: genKey, KeyName: genKeyName},
	})
	if err != nil {
		return err
	}
	fmt.Println(renderAction(action))

	result, err := job.Wait(ctx)
	if result != nil {
		printGenerateResult(result)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println(ui.FormatWarning("Interrupted"))
		}
		return err
	}
	if len(result.Paths) == 0 {
		return nil
	}

	last := absPath(result.Paths[len(result.Paths)-1])
	if genCopy {
		if err := clipboard.WriteAll(last); err != nil {
			fmt.Println(ui.FormatWarning("Could not copy to clipboard: " + err.Error()))
		} else {
			fmt.Println(ui.FormatInfo("Copied path to clipboard"))
		}
	}
	if genOpen {
		return newOpener().Open(ctx, last)
	}
	return nil
}

func printGenerateResult(result *services.GenerateResult) {
	for _, path := range result.Paths {
		fmt.Printf("  %s %s\n", ui.StyleSuccess.Render(ui.IconSuccess), path)
	}
	for _, f := range result.Failures {
		fmt.Printf("  %s image %d: %s\n", ui.StyleError.Render(ui.IconError), f.Index, f.Err)
	}
	for _, err := range result.ProvenanceErrs {
		fmt.Println(ui.FormatWarning("Saved without metadata: " + err.Error()))
	}

	summary := fmt.Sprintf("%d of %d images saved", len(result.Paths), result.Requested())
	switch {
	case len(result.Failures) == 0:
		fmt.Println(ui.FormatSuccess(summary))
	case len(result.Paths) > 0:
		fmt.Println(ui.FormatWarning(summary))
	}
}

// renderAction describes a tool action for the terminal
func renderAction(action domain.Action) string {
	switch a := action.(type) {
	case domain.CardUpdated:
		return ui.FormatSuccess("Card updated: " + ui.StyleBold.Render(a.Card.Name))
	case domain.Navigated:
		return ui.FormatInfo("Selected card " + a.CardID + " in " + a.ProjectID)
	case domain.GenerationStarted:
		noun := "images"
		if a.Count == 1 {
			noun = "image"
		}
		return ui.FormatRocket(fmt.Sprintf("Generating %d %s for %s", a.Count, noun, a.CardID)) +
			"\n" + ui.StyleMuted.Render("  "+ui.Truncate(a.Prompt, 100))
	default:
		return ui.FormatWarning(fmt.Sprintf("unknown action %T", action))
	}
}

// absPath turns a data root relative path into an absolute one
func absPath(rel string) string {
	return filepath.Join(appVault.RootPath, filepath.FromSlash(strings.TrimPrefix(rel, "/")))
}
