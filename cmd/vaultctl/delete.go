package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sealedbox/vaultcore/cmd"
	"github.com/sealedbox/vaultcore/pkg/vault/vaulterrors"
)

func deleteMain(command *cobra.Command, arguments []string) error {
	name := arguments[0]

	vault, err := openVault()
	if err != nil {
		return err
	}
	defer closeVault(vault)

	if err := vault.Delete(name); err != nil {
		if errors.Is(err, vaulterrors.ErrNotFound) {
			return errors.Errorf("no record named %q", name)
		}
		return errors.Wrapf(err, "unable to delete record %q", name)
	}

	return nil
}

var deleteCommand = &cobra.Command{
	Use:     "delete <name>",
	Aliases: []string{"rm"},
	Short:   "Remove the record stored under name from every replica",
	Args:    cobra.ExactArgs(1),
	Run:     cmd.Mainify(deleteMain),
}

var deleteConfiguration struct {
	// help indicates whether or not to show help information and exit.
	help bool
}

func init() {
	flags := deleteCommand.Flags()
	flags.BoolVarP(&deleteConfiguration.help, "help", "h", false, "Show help information")
}
