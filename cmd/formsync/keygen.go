package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/formsync/internal/config"
	"github.com/TheMichaelB/formsync/internal/crypto"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a credential encryption key",
	Long: `Keygen prints a random key for security.encryption_key. Export it as
FORMSYNC_SECURITY_ENCRYPTION_KEY (or ENCRYPTION_KEY). Changing the key
makes previously stored credentials unreadable.`,
	Annotations: map[string]string{skipClient: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := crypto.GenerateKey()
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(map[string]string{"encryption_key": key})
		} else {
			fmt.Println(key)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:         "init [path]",
	Short:       "Write an example config file",
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{skipClient: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "formsync.yaml"
		if len(args) == 1 {
			path = args[0]
		}

		if err := config.SaveExample(path); err != nil {
			return fail("Write config", err)
		}

		printSuccess("Wrote %s", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Print the effective configuration",
	Annotations: map[string]string{skipClient: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := *cfg
		if shown.Security.EncryptionKey != "" {
			shown.Security.EncryptionKey = "[REDACTED]"
		}
		printJSON(shown)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(keygenCmd, configCmd)
}
