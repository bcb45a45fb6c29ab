package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sealedbox/vaultcore/cmd"
)

func replicasMain(command *cobra.Command, arguments []string) error {
	paths, err := resolveReplicas()
	if err != nil {
		return err
	}

	fmt.Println(listHeaderStyle.Render(fmt.Sprintf("%d configured replica(s)", len(paths))))
	for _, path := range paths {
		status := "not yet initialized"
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			status = "initialized"
		}
		fmt.Printf("  %s  %s\n", replicaDisplayPath(path), listSubtleStyle.Render("("+status+")"))
	}

	return nil
}

func replicasStatusMain(command *cobra.Command, arguments []string) error {
	vault, err := openVault()
	if err != nil {
		return err
	}
	defer closeVault(vault)

	fmt.Println(listHeaderStyle.Render("Replica status"))
	fmt.Printf("  %d replica(s), last modified %s\n", len(vault.Directories()), humanize.Time(vault.Modified()))
	return nil
}

var replicasCommand = &cobra.Command{
	Use:   "replicas",
	Short: "List configured replica directories",
	Args:  cmd.DisallowArguments,
	Run:   cmd.Mainify(replicasMain),
}

var replicasStatusCommand = &cobra.Command{
	Use:   "status",
	Short: "Open the vault and report freshness across replicas",
	Args:  cmd.DisallowArguments,
	Run:   cmd.Mainify(replicasStatusMain),
}

func init() {
	replicasCommand.AddCommand(replicasStatusCommand)
}
