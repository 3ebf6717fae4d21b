package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kamal-hamza/cardforge/pkg/config"
	"github.com/kamal-hamza/cardforge/pkg/ui"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the cardforge vault",
	Long: `Initialize the cardforge data directory.

This creates the vault at ~/.local/share/cardforge/ with the following structure:
  - records/    : Project, card and keyring records (JSON)
  - output/     : Generated images, one folder per project and card
  - cache/      : Thumbnails and other disposable files

A default config.yaml is written to ~/.config/cardforge/ if none exists.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	// Check if already initialized
	if appVault.Exists() {
		fmt.Println(ui.FormatWarning("Vault already initialized"))
		fmt.Println(ui.FormatMuted("Location: " + appVault.RootPath))
		return nil
	}

	fmt.Println(ui.FormatRocket("Initializing cardforge vault..."))
	fmt.Println()

	if err := appVault.Initialize(); err != nil {
		fmt.Println(ui.FormatError("Failed to initialize vault"))
		return err
	}

	if err := writeDefaultConfig(appVault.ConfigPath); err != nil {
		// config is optional
		fmt.Println(ui.FormatWarning("Failed to create default config: " + err.Error()))
	}

	fmt.Println(ui.FormatSuccess("Vault initialized successfully!"))
	fmt.Println()
	fmt.Println(ui.RenderKeyValue("Location", appVault.RootPath))
	if appVault.ConfigPath != "" {
		fmt.Println(ui.RenderKeyValue("Config", appVault.ConfigPath))
	}
	fmt.Println()
	fmt.Println(ui.FormatInfo("Next steps:"))
	fmt.Println(ui.FormatMuted("  1. Create a project: cf project create \"Tarot Deck\""))
	fmt.Println(ui.FormatMuted("  2. Add a card:       cf card create -p <project> \"The Fool\" --prompt \"a jester at a cliff edge\""))
	fmt.Println(ui.FormatMuted("  3. Generate:         cf generate \"fool\" -n 2"))

	return nil
}

// writeDefaultConfig saves the defaults unless a config already exists
func writeDefaultConfig(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return config.DefaultConfig().Save(path)
}
