package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kamal-hamza/cardforge/pkg/ui"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage stored API keys",
	Long: `Store named API keys for the image service.

A generate run uses --key, then --key-name, then default_key_name from the
config, then the first stored key.`,
}

var keyAddCmd = &cobra.Command{
	Use:   "add <name> [key]",
	Short: "Store or replace a named key (reads stdin when key is omitted)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runKeyAdd,
}

var keyListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored keys (masked)",
	RunE:    runKeyList,
}

func init() {
	keyCmd.AddCommand(keyAddCmd, keyListCmd)
}

func runKeyAdd(cmd *cobra.Command, args []string) error {
	name := args[0]
	var value string
	if len(args) == 2 {
		value = args[1]
	} else {
		if isInteractive() {
			fmt.Print(ui.StyleInfo.Render("Key for " + name + ": "))
		}
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read key: %w", err)
		}
		value = strings.TrimSpace(line)
	}

	if err := keyRepo.SaveKey(getContext(), name, value); err != nil {
		return err
	}
	fmt.Println(ui.FormatSuccess(ui.IconKey + " Stored key " + ui.StyleBold.Render(name)))
	return nil
}

func runKeyList(cmd *cobra.Command, args []string) error {
	keys, err := keyRepo.GetKeys(getContext())
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Println(ui.FormatWarning("No keys stored"))
		fmt.Println(ui.FormatMuted("Add one with: cf key add <name>"))
		return nil
	}

	def := ""
	if appConfig != nil {
		def = appConfig.DefaultKeyName
	}

	table := ui.NewTable([]ui.TableColumn{
		{Header: "Name"},
		{Header: "Key"},
		{Header: " "},
	})
	for i, k := range keys {
		mark := ""
		if k.Name == def || (def == "" && i == 0) {
			mark = "default"
		}
		table.AddRow([]string{k.Name, k.Masked(), mark})
	}
	fmt.Println(table.Render())
	return nil
}
