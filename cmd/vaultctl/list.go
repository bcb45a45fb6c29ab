package main

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sealedbox/vaultcore/cmd"
)

var (
	listHeaderStyle = lipgloss.NewStyle().Bold(true)
	listSubtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func listMain(command *cobra.Command, arguments []string) error {
	vault, err := openVault()
	if err != nil {
		return err
	}
	defer closeVault(vault)

	names := make([]string, 0)
	for name := range vault.AllNames() {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		fmt.Println(listSubtleStyle.Render("No records stored yet."))
		return nil
	}

	header := fmt.Sprintf("%d record(s), last modified %s", len(names), humanize.Time(vault.Modified()))
	fmt.Println(listHeaderStyle.Render(header))
	for _, name := range names {
		fmt.Println("  " + name)
	}
	return nil
}

var listCommand = &cobra.Command{
	Use:   "list",
	Short: "List the names of every record in the vault",
	Args:  cmd.DisallowArguments,
	Run:   cmd.Mainify(listMain),
}
