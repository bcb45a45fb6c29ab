package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sealedbox/vaultcore/cmd"
	"github.com/sealedbox/vaultcore/pkg/vault/vaulterrors"
)

func getMain(command *cobra.Command, arguments []string) error {
	name := arguments[0]

	vault, err := openVault()
	if err != nil {
		return err
	}
	defer closeVault(vault)

	data, err := vault.Read(name)
	if err != nil {
		if errors.Is(err, vaulterrors.ErrNotFound) {
			return errors.Errorf("no record named %q", name)
		}
		return errors.Wrapf(err, "unable to read record %q", name)
	}

	if getConfiguration.output == "-" || getConfiguration.output == "" {
		os.Stdout.Write(data)
		if getConfiguration.newline {
			fmt.Println()
		}
		return nil
	}

	if err := os.WriteFile(getConfiguration.output, data, 0600); err != nil {
		return errors.Wrapf(err, "unable to write record to %q", getConfiguration.output)
	}
	return nil
}

var getCommand = &cobra.Command{
	Use:   "get <name>",
	Short: "Print the record stored under name",
	Args:  cobra.ExactArgs(1),
	Run:   cmd.Mainify(getMain),
}

var getConfiguration struct {
	// help indicates whether or not to show help information and exit.
	help bool
	// output is a file path to write the record to, instead of standard
	// output.
	output string
	// newline appends a trailing newline when writing to standard output.
	newline bool
}

func init() {
	flags := getCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&getConfiguration.help, "help", "h", false, "Show help information")
	flags.StringVarP(&getConfiguration.output, "output", "o", "", "Write the record to a file instead of standard output")
	flags.BoolVar(&getConfiguration.newline, "newline", false, "Append a trailing newline when printing to standard output")
}
