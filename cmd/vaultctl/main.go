// Command vaultctl is a thin reference command-line client for the
// encrypted replicated directory store implemented by pkg/vault. It
// operates strictly at the raw record level (a filename-safe name and an
// opaque byte payload) and has no notion of structured records, accounts,
// or any other front-end concept — those are explicitly out of scope for
// the storage engine this tool exercises.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sealedbox/vaultcore/pkg/logging"
	"github.com/sealedbox/vaultcore/pkg/vaultcore"
)

func rootMain(command *cobra.Command, arguments []string) {
	if rootConfiguration.version {
		fmt.Println(vaultcore.Version)
		return
	}
	command.Help()
}

var rootCommand = &cobra.Command{
	Use:   "vaultctl",
	Short: "vaultctl reads and writes records in an encrypted, replicated directory vault",
	Run:   rootMain,
}

var rootConfiguration struct {
	// help indicates whether or not to show help information and exit.
	help bool
	// version indicates whether or not to show version information and
	// exit.
	version bool
	// debug enables verbose debug-level logging. It's a coarser shorthand
	// for "--log-level debug".
	debug bool
	// logLevel names an explicit logging.Level (disabled, error, warn, info,
	// debug, trace), taking precedence over debug if both are set.
	logLevel string
	// config is the path to an explicit configuration file, overriding the
	// XDG-resolved default.
	config string
	// replicas is the list of replica directory paths, overriding any value
	// configured via file or environment.
	replicas []string
	// key is a vault passphrase supplied directly on the command line. This
	// is provided for scripting convenience; VAULTCTL_KEY or an interactive
	// prompt should be preferred since command-line arguments are visible to
	// other processes on most systems.
	key string
}

func init() {
	flags := rootCommand.PersistentFlags()
	flags.SortFlags = false

	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVarP(&rootConfiguration.version, "version", "V", false, "Show version information")
	flags.BoolVar(&rootConfiguration.debug, "debug", false, "Enable verbose debug logging")
	flags.StringVar(&rootConfiguration.logLevel, "log-level", "", "Log verbosity: disabled, error, warn, info, debug, or trace (overrides --debug)")
	flags.StringVar(&rootConfiguration.config, "config", "", "Configuration file (default is $XDG_CONFIG_HOME/vaultctl/config.toml)")
	flags.StringArrayVar(&rootConfiguration.replicas, "replica", nil, "A replica directory path (may be specified multiple times)")
	flags.StringVar(&rootConfiguration.key, "key", "", "Vault passphrase (prefer VAULTCTL_KEY or the interactive prompt)")

	cobra.EnableCommandSorting = false
	cobra.OnInitialize(func() {
		vaultcore.DebugEnabled = rootConfiguration.debug && rootConfiguration.logLevel == ""
		if rootConfiguration.logLevel != "" {
			if level, ok := logging.NameToLevel(rootConfiguration.logLevel); ok {
				logging.SetLevel(level)
			} else {
				cobra.CheckErr(fmt.Sprintf("invalid --log-level: %q", rootConfiguration.logLevel))
			}
		}
		initConfig()
	})

	rootCommand.AddCommand(
		getCommand,
		setCommand,
		deleteCommand,
		listCommand,
		searchCommand,
		rekeyCommand,
		replicasCommand,
	)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
