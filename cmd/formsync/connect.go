package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/TheMichaelB/formsync/internal/models"
)

var connectCmd = &cobra.Command{
	Use:   "connect <project-id>",
	Short: "Validate and store credentials for a project",
	Long: `Connect checks the credentials against the remote service, then
stores them encrypted. Connecting an existing project replaces its
credentials and keeps its sync status.`,
	Example: `  formsync connect 7 --url https://central.example.org --username collector@example.org
  formsync connect 7 --url https://central.example.org --username collector@example.org --start`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

var (
	connectURL      string
	connectUsername string
	connectPassword string
	connectStart    bool
)

func init() {
	rootCmd.AddCommand(connectCmd)

	connectCmd.Flags().StringVarP(&connectURL, "url", "u", "",
		"Base URL of the remote service (required)")
	connectCmd.Flags().StringVarP(&connectUsername, "username", "U", "",
		"Account username (required)")
	connectCmd.Flags().StringVarP(&connectPassword, "password", "p", "",
		"Account password (will prompt if not provided)")
	connectCmd.Flags().BoolVar(&connectStart, "start", false,
		"Start syncing in the foreground after connecting")

	_ = connectCmd.MarkFlagRequired("url")
	_ = connectCmd.MarkFlagRequired("username")
}

func runConnect(cmd *cobra.Command, args []string) error {
	projectID := args[0]
	ctx := cmd.Context()

	if connectPassword == "" {
		var err error
		connectPassword, err = promptPassword("Password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
	}

	creds := models.Credentials{
		BaseURL:   connectURL,
		Username:  connectUsername,
		Password:  connectPassword,
		ProjectID: projectID,
	}

	result, err := apiClient.Sync.Connect(ctx, projectID, creds)
	if err != nil {
		return fail("Connect failed", err)
	}

	if jsonOutput && !connectStart {
		printJSON(map[string]interface{}{
			"success": true,
			"created": result.Created,
			"status":  result.Status,
		})
	} else if !jsonOutput {
		verb := "Updated credentials for"
		if result.Created {
			verb = "Connected"
		}
		printSuccess("%s project %s (status: %s)", verb, projectID, result.Status.Status)
	}

	if connectStart {
		return runForeground(ctx, projectID)
	}
	return nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	// Read password without echo
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr) // New line after password

	if err != nil {
		return "", err
	}

	return string(password), nil
}
