package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/formsync/internal/client"
	"github.com/TheMichaelB/formsync/internal/config"
	"github.com/TheMichaelB/formsync/internal/events"
	"github.com/TheMichaelB/formsync/internal/models"
)

// skipClient marks commands that run without stores or a remote client.
const skipClient = "skip-client"

var (
	cfgFile    string
	jsonOutput bool
	logLevel   string

	cfg       *config.Config
	logger    *events.Logger
	apiClient *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "formsync",
	Short: "Mirror form-collection projects into a document store",
	Long: `formsync stores encrypted credentials for remote form-collection
projects and keeps their forms and submissions mirrored into a local
or MongoDB document store on a fixed interval.`,
	Version:           Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"formsync version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Config file (default: formsync.yaml or ~/.config/formsync/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
}

func setup(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return err
	}
	events.SetDefault(logger)

	if loader.ConfigFile() != "" {
		logger.WithField("file", loader.ConfigFile()).Debug("Loaded config")
	}

	if cmd.Annotations[skipClient] != "" {
		return nil
	}

	apiClient, err = client.New(cmd.Context(), cfg, logger)
	return err
}

// teardown runs after every command, including failed ones.
func teardown() error {
	var err error
	if apiClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err = apiClient.Close(ctx)
		apiClient = nil
	}
	if logger != nil {
		_ = logger.Close()
	}
	return err
}

// exitCode maps error classes onto process exit codes.
func exitCode(err error) int {
	switch models.Classify(err) {
	case models.ClassBadInput:
		return 2
	case models.ClassRemote:
		return 3
	default:
		return 1
	}
}

// Output helpers

func printSuccess(format string, args ...interface{}) {
	fmt.Println(color.GreenString("✓ "+format, args...))
}

func printError(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, color.RedString("✗ "+format, args...))
}

func printWarning(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, color.YellowString("! "+format, args...))
}

func printInfo(format string, args ...interface{}) {
	fmt.Println(color.CyanString(format, args...))
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// reportedError has already been shown to the user.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

// fail reports err in the selected output mode and returns it.
func fail(prefix string, err error) error {
	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": false,
			"class":   models.Classify(err),
			"error":   err.Error(),
		})
	} else {
		printError("%s: %v", prefix, err)
	}
	return &reportedError{err: err}
}
