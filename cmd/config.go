package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kamal-hamza/cardforge/pkg/ui"
)

var configShow bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Edit the cardforge configuration file",
	Long: `Open config.yaml in your editor, creating it with defaults first if needed.

Use --show to print the effective settings instead.`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShow, "show", false, "Print the effective configuration")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if configShow {
		printConfig()
		return nil
	}

	path := appVault.ConfigPath
	if path == "" {
		return fmt.Errorf("no config location available")
	}
	if err := writeDefaultConfig(path); err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}

	fmt.Println(ui.FormatInfo("Opening config: " + path))

	c := exec.Command(GetPreferredEditor(), path)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}

func printConfig() {
	fmt.Println(ui.FormatTitle("Configuration"))
	fmt.Println(ui.RenderKeyValue("Config file", appVault.ConfigPath))
	fmt.Println(ui.RenderKeyValue("Data root", appVault.RootPath))
	fmt.Println(ui.RenderKeyValue("Provider", appConfig.Provider.Kind))
	if appConfig.Provider.Endpoint != "" {
		fmt.Println(ui.RenderKeyValue("Endpoint", appConfig.Provider.Endpoint))
	}
	fmt.Println(ui.RenderKeyValue("Aspect ratio", appConfig.DefaultAspectRatio))
	fmt.Println(ui.RenderKeyValue("Resolution", appConfig.DefaultResolution))
	fmt.Println(ui.RenderKeyValue("Images per run", strconv.Itoa(appConfig.DefaultCount)))
	fmt.Println(ui.RenderKeyValue("Requests/min", strconv.Itoa(appConfig.Provider.RequestsPerMinute)))
	fmt.Println(ui.RenderKeyValue("Log level", appConfig.LogLevel))
}
