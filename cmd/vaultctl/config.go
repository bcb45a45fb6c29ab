package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// defaultReplicaSubdirectory is where vaultctl keeps its default single
// replica when none is configured via flag, environment, or config file.
const defaultReplicaSubdirectory = "vaultctl/replica"

func init() {
	// Load a .env file from the current directory if one is present. This
	// is a development convenience (VAULTCTL_KEY, VAULTCTL_REPLICAS) and its
	// absence is never an error.
	_ = godotenv.Load()
}

// initConfig wires viper's defaults, config file, and environment sources.
// It's invoked by cobra.OnInitialize once flags have been parsed.
func initConfig() {
	viper.SetEnvPrefix("vaultctl")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	defaultReplica, err := xdg.DataFile(defaultReplicaSubdirectory)
	if err == nil {
		viper.SetDefault("replicas", []string{defaultReplica})
	}

	if rootConfiguration.config != "" {
		viper.SetConfigFile(rootConfiguration.config)
		viper.SetConfigType("toml")
		if err := viper.ReadInConfig(); err != nil {
			cobra.CheckErr(err)
		}
		return
	}

	defaultConfigPath, err := xdg.ConfigFile("vaultctl/config.toml")
	if err != nil {
		return
	}
	if _, err := os.Stat(defaultConfigPath); errors.Is(err, os.ErrNotExist) {
		return
	}

	viper.SetConfigFile(defaultConfigPath)
	viper.SetConfigType("toml")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return
		}
		cobra.CheckErr(err)
	}
}

// resolveReplicas returns the configured replica directory paths, giving
// precedence to --replica flags, then VAULTCTL_REPLICAS (colon-separated,
// matching $PATH conventions), then the config file, then the XDG-resolved
// single-replica default.
func resolveReplicas() ([]string, error) {
	if len(rootConfiguration.replicas) > 0 {
		return rootConfiguration.replicas, nil
	}

	if raw := os.Getenv("VAULTCTL_REPLICAS"); raw != "" {
		return splitReplicaList(raw), nil
	}

	replicas := viper.GetStringSlice("replicas")
	if len(replicas) == 0 {
		return nil, errors.New("no replica directories configured (use --replica, VAULTCTL_REPLICAS, or a config file)")
	}
	return replicas, nil
}

// splitReplicaList splits a colon-separated (or, on Windows, semicolon
// separated) list of replica paths, trimming empty entries.
func splitReplicaList(raw string) []string {
	separator := string(os.PathListSeparator)
	parts := strings.Split(raw, separator)
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// resolvePassphrase returns the vault passphrase, giving precedence to
// --key, then VAULTCTL_KEY, then an interactive terminal prompt.
func resolvePassphrase() (string, error) {
	if rootConfiguration.key != "" {
		return rootConfiguration.key, nil
	}
	if key := viper.GetString("key"); key != "" {
		return key, nil
	}
	return promptForPassphrase("Vault passphrase: ")
}

// replicaDisplayPath renders a replica path relative to the working
// directory when possible, for more readable CLI output.
func replicaDisplayPath(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	relative, err := filepath.Rel(wd, path)
	if err != nil || strings.HasPrefix(relative, "..") {
		return path
	}
	return relative
}
