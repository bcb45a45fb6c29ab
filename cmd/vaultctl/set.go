package main

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sealedbox/vaultcore/cmd"
)

func setMain(command *cobra.Command, arguments []string) error {
	name := arguments[0]

	var data []byte
	var err error
	if setConfiguration.value != "" {
		data = []byte(setConfiguration.value)
	} else if setConfiguration.input != "" {
		data, err = os.ReadFile(setConfiguration.input)
		if err != nil {
			return errors.Wrapf(err, "unable to read %q", setConfiguration.input)
		}
	} else {
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return errors.Wrap(err, "unable to read standard input")
		}
	}

	vault, err := openVault()
	if err != nil {
		return err
	}
	defer closeVault(vault)

	if err := vault.Write(name, data); err != nil {
		return errors.Wrapf(err, "unable to write record %q", name)
	}

	return nil
}

var setCommand = &cobra.Command{
	Use:   "set <name>",
	Short: "Store a record under name, overwriting any existing value",
	Args:  cobra.ExactArgs(1),
	Run:   cmd.Mainify(setMain),
}

var setConfiguration struct {
	// help indicates whether or not to show help information and exit.
	help bool
	// value is the record payload supplied directly on the command line.
	value string
	// input is a file path to read the record payload from.
	input string
}

func init() {
	flags := setCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&setConfiguration.help, "help", "h", false, "Show help information")
	flags.StringVar(&setConfiguration.value, "value", "", "Record payload (default: read from --input or standard input)")
	flags.StringVarP(&setConfiguration.input, "input", "i", "", "Read the record payload from a file")
}
