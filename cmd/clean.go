package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kamal-hamza/cardforge/pkg/ui"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove cached thumbnails",
	Long: `Remove everything under the cache directory.

Thumbnails are rebuilt on demand; generated images and records are not
touched.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func runClean(cmd *cobra.Command, args []string) error {
	fmt.Print(ui.StyleWarning.Render("Cleaning cache... "))

	if err := appVault.CleanCache(); err != nil {
		fmt.Println(ui.FormatError("Failed"))
		return err
	}

	fmt.Println(ui.FormatSuccess("Done"))
	fmt.Println(ui.FormatMuted("Cleared " + appVault.CachePath))
	return nil
}
