package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sealedbox/vaultcore/cmd"
)

func rekeyMain(command *cobra.Command, arguments []string) error {
	vault, err := openVault()
	if err != nil {
		return err
	}
	defer closeVault(vault)

	newPassphrase, err := promptForPassphrase("New vault passphrase: ")
	if err != nil {
		return errors.Wrap(err, "unable to read new passphrase")
	}
	confirmation, err := promptForPassphrase("Confirm new vault passphrase: ")
	if err != nil {
		return errors.Wrap(err, "unable to read passphrase confirmation")
	}
	if newPassphrase != confirmation {
		return errors.New("passphrases do not match")
	}

	if err := vault.ChangeKey(deriveLogicalKey(newPassphrase)); err != nil {
		return errors.Wrap(err, "unable to rotate vault key")
	}

	fmt.Println(color.GreenString("Vault key rotated across %d replica(s).", len(vault.Directories())))
	return nil
}

var rekeyCommand = &cobra.Command{
	Use:   "rekey",
	Short: "Re-encrypt every record under a new passphrase",
	Long: `Re-encrypt every record in every replica under a newly chosen passphrase.

Rotation is crash-safe within each replica: if the process is interrupted
before a replica's control record is rewritten, that replica still opens with
the old passphrase; if it is interrupted after, the next open with the new
passphrase finishes that replica's rotation automatically. Replicas are
rotated one after another, so an interruption between two replicas leaves
them under different passphrases, and the vault then opens with neither.`,
	Args: cmd.DisallowArguments,
	Run:  cmd.Mainify(rekeyMain),
}

var rekeyConfiguration struct {
	// help indicates whether or not to show help information and exit.
	help bool
}

func init() {
	flags := rekeyCommand.Flags()
	flags.BoolVarP(&rekeyConfiguration.help, "help", "h", false, "Show help information")
}
