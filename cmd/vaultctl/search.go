package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sealedbox/vaultcore/cmd"
)

// searchDefaultCandidates mirrors pkg/vault/plaindir's default candidate
// count; it's repeated here only as the CLI's default flag value, not a
// storage-layer invariant.
const searchDefaultCandidates = 9

func searchMain(command *cobra.Command, arguments []string) error {
	query := arguments[0]

	vault, err := openVault()
	if err != nil {
		return err
	}
	defer closeVault(vault)

	results := vault.Search(query, searchConfiguration.limit)
	if len(results) == 0 {
		fmt.Println(listSubtleStyle.Render("No matching records."))
		return nil
	}

	fmt.Println(listHeaderStyle.Render(fmt.Sprintf("%d match(es) for %q", len(results), query)))
	for _, name := range results {
		fmt.Println("  " + name)
	}
	return nil
}

var searchCommand = &cobra.Command{
	Use:   "search <query>",
	Short: "Fuzzy-search record names",
	Args:  cobra.ExactArgs(1),
	Run:   cmd.Mainify(searchMain),
}

var searchConfiguration struct {
	// help indicates whether or not to show help information and exit.
	help bool
	// limit caps the number of results returned.
	limit int
}

func init() {
	flags := searchCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&searchConfiguration.help, "help", "h", false, "Show help information")
	flags.IntVarP(&searchConfiguration.limit, "limit", "n", searchDefaultCandidates, "Maximum number of results to return")
}
